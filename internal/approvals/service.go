package approvals

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/alerts"
	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/metrics"
	"github.com/opay-dz/opay/internal/realtime"
	"github.com/opay-dz/opay/internal/wallet"
)

var logger = logging.NewPackageLogger("approvals")

// Service runs submissions and admin decisions.
type Service struct {
	store  Store
	bus    realtime.Bus
	alerts alerts.Sink
	now    func() time.Time
}

func NewService(store Store, bus realtime.Bus, sink alerts.Sink) *Service {
	return &Service{store: store, bus: bus, alerts: sink, now: time.Now}
}

// Submit creates a pending request of a submittable kind. Hold kinds move
// amount into escrow in the same transaction.
func (s *Service) Submit(ctx context.Context, userID, kindName string, amount decimal.Decimal, details map[string]any) (Request, error) {
	k, err := Lookup(kindName)
	if err != nil {
		return Request{}, err
	}
	if !k.Submittable {
		return Request{}, ErrNotSubmittable
	}
	if k.Effect != EffectNone && !amount.IsPositive() {
		return Request{}, ErrInvalidAmount
	}
	if details == nil {
		details = map[string]any{}
	}
	if err := k.CheckDetails(details); err != nil {
		return Request{}, err
	}

	r := Request{UserID: userID, Kind: k.Name, Amount: amount, Status: StatusPending, Details: details, CreatedAt: s.now()}
	if k.Effect == EffectNone {
		r.Amount = decimal.Zero
	}
	if k.Effect == EffectCredit {
		r.CreditAmount = amount
	}
	err = s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.Insert(ctx, k, &r); err != nil {
			return err
		}
		if k.Effect != EffectHold {
			return nil
		}
		if err := tx.LockWallet(ctx, userID); err != nil {
			return err
		}
		return tx.Hold(ctx, userID, r.Amount, wallet.Entry{Type: wallet.TxEscrowHold, Reference: r.ID, Description: k.Name + " pending review"})
	})
	if err != nil {
		return Request{}, err
	}

	s.alerts.Enqueue(ctx, k.Name, r)
	realtime.Publish(s.bus, realtime.AdminTopic, realtime.ReviewPending, map[string]string{"kind": k.Name, "id": r.ID, "status": r.Status})
	logger.Info().Str("kind", k.Name).Str("id", r.ID).Str(logging.USER, userID).Msg("request submitted")
	return r, nil
}

func (s *Service) Approve(ctx context.Context, adminID, kindName, id, proofURL, note string) (Request, error) {
	return s.Review(ctx, adminID, kindName, id, Approve, proofURL, note)
}

func (s *Service) Reject(ctx context.Context, adminID, kindName, id, note string) (Request, error) {
	return s.Review(ctx, adminID, kindName, id, Reject, "", note)
}

// Review applies decision to a pending request. The proof update, the wallet
// movement, the status flip and the audit note commit together.
func (s *Service) Review(ctx context.Context, adminID, kindName, id, decision, proofURL, note string) (Request, error) {
	k, err := Lookup(kindName)
	if err != nil {
		return Request{}, err
	}
	var r Request
	err = s.store.WithTx(ctx, func(tx Tx) error {
		cur, err := tx.Lock(ctx, k, id)
		if err != nil {
			return err
		}
		move, err := Decide(k, cur.Status, decision)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, tx, k, cur, move); err != nil {
			return err
		}

		now := s.now()
		cur.Status = StatusRejected
		if decision == Approve {
			cur.Status = StatusApproved
		}
		if p := strings.TrimSpace(proofURL); p != "" {
			cur.ProofURL = p
		}
		cur.AdminNote = strings.TrimSpace(note)
		cur.ReviewedBy = adminID
		cur.ReviewedAt = &now
		if err := tx.Finish(ctx, k, cur); err != nil {
			return err
		}
		r = cur
		return tx.Notify(ctx, notification(k, cur))
	})
	if err != nil {
		return Request{}, err
	}

	metrics.Reviews.WithLabelValues(k.Name, r.Status).Inc()
	s.alerts.Enqueue(ctx, k.Name, r)
	realtime.Publish(s.bus, realtime.AdminTopic, realtime.ReviewPending, map[string]string{"kind": k.Name, "id": r.ID, "status": r.Status})
	logger.Info().Str("kind", k.Name).Str("id", r.ID).Str("status", r.Status).Str("admin", adminID).Msg("request reviewed")
	return r, nil
}

func (s *Service) apply(ctx context.Context, tx Tx, k Kind, r Request, move Movement) error {
	entry := wallet.Entry{Type: k.TxType, Reference: r.ID}
	switch move {
	case MoveConsumeHold:
		entry.Description = k.Name + " approved"
		if err := tx.LockWallet(ctx, r.UserID); err != nil {
			return err
		}
		return tx.ReleaseHold(ctx, r.UserID, r.Amount, entry)
	case MoveRefundHold:
		entry.Type = wallet.TxEscrowRefund
		entry.Description = k.Name + " rejected"
		if err := tx.LockWallet(ctx, r.UserID); err != nil {
			return err
		}
		return tx.RefundHold(ctx, r.UserID, r.Amount, entry)
	case MoveCredit:
		if !r.CreditAmount.IsPositive() {
			return nil
		}
		entry.Description = k.Name + " approved"
		if err := tx.LockWallet(ctx, r.UserID); err != nil {
			return err
		}
		return tx.Credit(ctx, r.UserID, r.CreditAmount, entry)
	case MoveVerify:
		return tx.MarkVerified(ctx, r.UserID)
	}
	return nil
}

func notification(k Kind, r Request) alerts.Notification {
	title := "Request approved"
	if r.Status == StatusRejected {
		title = "Request rejected"
	}
	body := strings.ReplaceAll(k.Name, "_", " ") + " request " + r.Status
	if r.AdminNote != "" {
		body += ": " + r.AdminNote
	}
	return alerts.Notification{
		UserID:    r.UserID,
		Type:      k.Name + ":" + r.Status,
		Title:     title,
		Body:      body,
		Reference: r.ID,
	}
}

// List returns requests of a kind, optionally filtered by status, newest first.
func (s *Service) List(ctx context.Context, kindName, status string) ([]Request, error) {
	k, err := Lookup(kindName)
	if err != nil {
		return nil, err
	}
	return s.store.List(ctx, k, status, 200)
}

// Mine returns the caller's requests of a kind.
func (s *Service) Mine(ctx context.Context, userID, kindName string) ([]Request, error) {
	k, err := Lookup(kindName)
	if err != nil {
		return nil, err
	}
	return s.store.ListForUser(ctx, k, userID)
}

// PendingCounts returns the number of pending requests per kind.
func (s *Service) PendingCounts(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, len(kinds))
	for _, name := range Kinds() {
		n, err := s.store.PendingCount(ctx, kinds[name])
		if err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, nil
}
