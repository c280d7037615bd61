package p2p

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/alerts"
	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/metrics"
	"github.com/opay-dz/opay/internal/realtime"
	"github.com/opay-dz/opay/internal/settings"
)

var logger = logging.NewPackageLogger("p2p")

var (
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrEmptyMessage  = errors.New("message is empty")
)

// Actor is whoever asks for a transition.
type Actor struct {
	ID     string
	Admin  bool
	System bool
}

// Service owns the ad registry, the order lifecycle and reputation.
type Service struct {
	store    Store
	settings settings.Source
	bus      realtime.Bus
	alerts   alerts.Sink
	now      func() time.Time
}

func NewService(store Store, src settings.Source, bus realtime.Bus, sink alerts.Sink) *Service {
	return &Service{store: store, settings: src, bus: bus, alerts: sink, now: time.Now}
}

// =========================
// Ads
// =========================

// CreateAd stores a new active ad owned by ad.UserID.
func (s *Service) CreateAd(ctx context.Context, ad Ad) (Ad, error) {
	if err := ValidateAd(ad); err != nil {
		return Ad{}, err
	}
	if ad.PaymentWindowMinutes <= 0 {
		ad.PaymentWindowMinutes = int(s.settings.Current().PaymentWindow / time.Minute)
	}
	ad.IsActive = true
	ad.TotalVolume = decimal.Zero
	ad.CreatedAt = s.now()

	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertAd(ctx, &ad); err != nil {
			return err
		}
		return tx.EnsureTraderProfile(ctx, ad.UserID)
	})
	if err != nil {
		return Ad{}, err
	}
	logger.Info().Str("ad_id", ad.ID).Str(logging.USER, ad.UserID).Str("type", string(ad.AdType)).Msg("ad created")
	return ad, nil
}

// DeactivateAd hides an ad from matching. Only the owner may do it.
func (s *Service) DeactivateAd(ctx context.Context, adID, ownerID string) error {
	return s.store.WithTx(ctx, func(tx Tx) error {
		return tx.SetAdActive(ctx, adID, ownerID, false)
	})
}

func (s *Service) ListAds(ctx context.Context, adType AdType) ([]Ad, error) {
	return s.store.ListAds(ctx, adType, 100)
}

func (s *Service) GetAd(ctx context.Context, id string) (Ad, error) {
	return s.store.GetAd(ctx, id)
}

// =========================
// Orders
// =========================

// CreateOrder takes amount from ad for takerID. The seller's funds are moved
// to escrow in the same transaction as the order insert. A repeated request
// with the same idempotency key returns the first order with created=false.
func (s *Service) CreateOrder(ctx context.Context, takerID, adID string, amount decimal.Decimal, key string) (o Order, created bool, err error) {
	key = strings.TrimSpace(key)
	if key != "" {
		if prev, err := s.store.OrderByKey(ctx, takerID, key); err == nil {
			return prev.withRemaining(s.now()), false, nil
		} else if !errors.Is(err, ErrNotFound) {
			return Order{}, false, err
		}
	}

	now := s.now()
	pct := s.settings.Current().Fees.P2PFeePercentage
	var msg Message
	err = s.store.WithTx(ctx, func(tx Tx) error {
		ad, err := tx.LockAd(ctx, adID)
		if err != nil {
			return err
		}
		planned, err := PlanOrder(ad, takerID, amount, pct, now)
		if err != nil {
			return err
		}
		planned.IdempotencyKey = key
		if err := tx.InsertOrder(ctx, &planned); err != nil {
			return err
		}
		if err := tx.LockWallets(ctx, planned.SellerID); err != nil {
			return err
		}
		if err := tx.Hold(ctx, planned.SellerID, planned.Amount, planned.ID); err != nil {
			return err
		}
		if err := tx.AdjustAd(ctx, ad.ID, planned.Amount.Neg(), 0, decimal.Zero); err != nil {
			return err
		}
		msg = Message{OrderID: planned.ID, Message: SystemMessage(planned), IsSystem: true, CreatedAt: now}
		if err := tx.InsertMessage(ctx, &msg); err != nil {
			return err
		}
		counterparty := ad.UserID
		if err := tx.Notify(ctx, counterparty, "p2p:order_created", "New P2P order",
			"A trader opened an order on your ad for "+planned.Amount.String(), planned.ID); err != nil {
			return err
		}
		o = planned
		return nil
	})
	if errors.Is(err, ErrDuplicateOrder) && key != "" {
		prev, lookupErr := s.store.OrderByKey(ctx, takerID, key)
		if lookupErr != nil {
			return Order{}, false, lookupErr
		}
		return prev.withRemaining(s.now()), false, nil
	}
	if err != nil {
		return Order{}, false, err
	}

	metrics.OrderTransitions.WithLabelValues(string(StatusPending), string(o.Status)).Inc()
	s.publish(o, msg)
	s.alerts.Enqueue(ctx, "p2p_order", o)
	logger.Info().Str("order_id", o.ID).Str("buyer", o.BuyerID).Str("seller", o.SellerID).Str("amount", o.Amount.String()).Msg("order created")
	return o.withRemaining(now), true, nil
}

// GetOrder returns an order visible to viewer.
func (s *Service) GetOrder(ctx context.Context, orderID string, viewer Actor) (Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !viewer.Admin && RoleOf(o, viewer.ID) == RoleNone {
		return Order{}, ErrNotParticipant
	}
	return o.withRemaining(s.now()), nil
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.store.ListOrdersForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range orders {
		orders[i] = orders[i].withRemaining(now)
	}
	return orders, nil
}

// ListDisputes returns orders waiting for an admin decision.
func (s *Service) ListDisputes(ctx context.Context) ([]Order, error) {
	return s.store.ListOrdersByStatus(ctx, StatusDisputed)
}

func (s *Service) MarkPaid(ctx context.Context, orderID, userID string) (Order, error) {
	return s.Transition(ctx, orderID, Actor{ID: userID}, ActionMarkPaid, "")
}

func (s *Service) ConfirmPayment(ctx context.Context, orderID, userID string) (Order, error) {
	return s.Transition(ctx, orderID, Actor{ID: userID}, ActionConfirm, "")
}

func (s *Service) Release(ctx context.Context, orderID, userID string) (Order, error) {
	return s.Transition(ctx, orderID, Actor{ID: userID}, ActionRelease, "")
}

func (s *Service) Dispute(ctx context.Context, orderID, userID, reason string) (Order, error) {
	if strings.TrimSpace(reason) == "" {
		return Order{}, ErrReasonRequired
	}
	return s.Transition(ctx, orderID, Actor{ID: userID}, ActionDispute, reason)
}

func (s *Service) Cancel(ctx context.Context, orderID, userID string) (Order, error) {
	return s.Transition(ctx, orderID, Actor{ID: userID}, ActionCancel, "")
}

// Resolve closes a dispute by releasing escrow to the buyer or refunding the seller.
func (s *Service) Resolve(ctx context.Context, orderID, adminID, resolution string) (Order, error) {
	if resolution != ResolutionRelease && resolution != ResolutionRefund {
		return Order{}, ErrInvalidResolution
	}
	return s.Transition(ctx, orderID, Actor{ID: adminID, Admin: true}, ActionResolve, resolution)
}

// Transition applies action to the order as actor. The status change, its
// balance effects, reputation updates and the system message commit together.
func (s *Service) Transition(ctx context.Context, orderID string, actor Actor, action Action, detail string) (Order, error) {
	now := s.now()
	var (
		o    Order
		from Status
		msg  Message
	)
	err := s.store.WithTx(ctx, func(tx Tx) error {
		cur, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		role := RoleOf(cur, actor.ID)
		switch {
		case actor.System:
			role = RoleSystem
		case actor.Admin && action == ActionResolve:
			role = RoleAdmin
		case role == RoleNone:
			return ErrNotParticipant
		}

		to, err := Next(cur, role, action, now)
		if err != nil {
			return err
		}
		from = cur.Status
		switch to {
		case StatusDisputed:
			cur.DisputeReason = detail
		case StatusDisputeResolved:
			cur.Resolution = detail
		}
		stamp(&cur, to, now)

		if err := s.settle(ctx, tx, cur); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, cur); err != nil {
			return err
		}
		msg = Message{OrderID: cur.ID, Message: SystemMessage(cur), IsSystem: true, CreatedAt: now}
		if err := tx.InsertMessage(ctx, &msg); err != nil {
			return err
		}
		for _, uid := range []string{cur.BuyerID, cur.SellerID} {
			if uid == actor.ID {
				continue
			}
			if err := tx.Notify(ctx, uid, "p2p:"+string(to), "P2P order update", msg.Message, cur.ID); err != nil {
				return err
			}
		}
		o = cur
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	metrics.OrderTransitions.WithLabelValues(string(from), string(o.Status)).Inc()
	s.publish(o, msg)
	if o.Status == StatusDisputed {
		s.alerts.Enqueue(ctx, "p2p_dispute", o)
		realtime.Publish(s.bus, realtime.AdminTopic, realtime.ReviewPending, map[string]string{"kind": "p2p_dispute", "id": o.ID})
	}
	logger.Info().Str("order_id", o.ID).Str("from", string(from)).Str("to", string(o.Status)).Str("actor", actor.ID).Msg("order transition")
	return o.withRemaining(now), nil
}

// settle moves funds and updates counters for terminal transitions.
func (s *Service) settle(ctx context.Context, tx Tx, o Order) error {
	release := o.Status == StatusCompleted ||
		(o.Status == StatusDisputeResolved && o.Resolution == ResolutionRelease)
	refund := o.Status == StatusCancelled ||
		(o.Status == StatusDisputeResolved && o.Resolution == ResolutionRefund)
	if !release && !refund {
		return nil
	}

	// fixed lock order: ad, then wallets by user id
	if _, err := tx.LockAd(ctx, o.AdID); err != nil {
		return err
	}
	if err := tx.LockWallets(ctx, o.BuyerID, o.SellerID); err != nil {
		return err
	}

	if release {
		if err := tx.ReleaseHold(ctx, o.SellerID, o.Amount, o.ID); err != nil {
			return err
		}
		if credit := o.Amount.Sub(o.FeeUnits()); credit.IsPositive() {
			if err := tx.Credit(ctx, o.BuyerID, credit, o.ID); err != nil {
				return err
			}
		}
		if err := tx.AdjustAd(ctx, o.AdID, decimal.Zero, 1, o.Amount); err != nil {
			return err
		}
		if err := tx.RecordTrade(ctx, o.BuyerID, true, 0); err != nil {
			return err
		}
		return tx.RecordTrade(ctx, o.SellerID, true, releaseDuration(o))
	}

	if err := tx.RefundHold(ctx, o.SellerID, o.Amount, o.ID); err != nil {
		return err
	}
	if err := tx.AdjustAd(ctx, o.AdID, o.Amount, 0, decimal.Zero); err != nil {
		return err
	}
	if err := tx.RecordTrade(ctx, o.BuyerID, false, 0); err != nil {
		return err
	}
	return tx.RecordTrade(ctx, o.SellerID, false, 0)
}

func (s *Service) publish(o Order, msg Message) {
	topic := realtime.OrderTopic(o.ID)
	realtime.Publish(s.bus, topic, realtime.OrderStatus, o.withRemaining(s.now()))
	realtime.Publish(s.bus, topic, realtime.MessageNew, msg)
}

// ExpireOverdue cancels every escrow_locked order past its deadline and
// returns how many were cancelled.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	ids, err := s.store.OverdueOrders(ctx, s.now())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if _, err := s.Transition(ctx, id, Actor{System: true}, ActionCancel, ""); err != nil {
			// another actor may have moved the order since the scan
			if !errors.Is(err, ErrInvalidTransition) {
				logger.Warn().Err(err).Str("order_id", id).Msg("could not expire order")
			}
			continue
		}
		n++
	}
	return n, nil
}

// =========================
// Messages
// =========================

// SendMessage appends a participant's chat message.
func (s *Service) SendMessage(ctx context.Context, orderID, senderID, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return Message{}, err
	}
	if RoleOf(o, senderID) == RoleNone {
		return Message{}, ErrNotParticipant
	}
	m := Message{OrderID: orderID, SenderID: senderID, Message: text, CreatedAt: s.now()}
	err = s.store.WithTx(ctx, func(tx Tx) error {
		return tx.InsertMessage(ctx, &m)
	})
	if err != nil {
		return Message{}, err
	}
	realtime.Publish(s.bus, realtime.OrderTopic(orderID), realtime.MessageNew, m)
	return m, nil
}

// ListMessages returns the chat of an order visible to viewer.
func (s *Service) ListMessages(ctx context.Context, orderID string, viewer Actor) ([]Message, error) {
	if _, err := s.GetOrder(ctx, orderID, viewer); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, orderID)
}

// =========================
// Reputation
// =========================

// Rate lets a participant score the counterparty of a completed order once.
func (s *Service) Rate(ctx context.Context, orderID, raterID string, rating int, comment string) (Rating, error) {
	if rating < 1 || rating > 5 {
		return Rating{}, ErrInvalidRating
	}
	var r Rating
	err := s.store.WithTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		var ratee string
		switch RoleOf(o, raterID) {
		case RoleBuyer:
			ratee = o.SellerID
		case RoleSeller:
			ratee = o.BuyerID
		default:
			return ErrNotParticipant
		}
		if o.Status != StatusCompleted {
			return ErrInvalidTransition
		}
		r = Rating{OrderID: orderID, RaterID: raterID, RateeID: ratee, Rating: rating, Comment: strings.TrimSpace(comment), CreatedAt: s.now()}
		if err := tx.InsertRating(ctx, r); err != nil {
			return err
		}
		return tx.ApplyRating(ctx, ratee, rating)
	})
	return r, err
}

func (s *Service) TraderProfile(ctx context.Context, userID string) (TraderProfile, error) {
	return s.store.GetTraderProfile(ctx, userID)
}

// SetVerifiedTrader is an admin action.
func (s *Service) SetVerifiedTrader(ctx context.Context, userID string, verified bool) error {
	return s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.EnsureTraderProfile(ctx, userID); err != nil {
			return err
		}
		return tx.SetVerifiedTrader(ctx, userID, verified)
	})
}
