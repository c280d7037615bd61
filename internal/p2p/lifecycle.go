package p2p

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/fees"
)

var (
	ErrInvalidTransition = errors.New("order cannot move to that status")
	ErrNotParticipant    = errors.New("not a participant in this order")
	ErrSelfTrade         = errors.New("you cannot trade with your own ad")
	ErrAdInactive        = errors.New("ad is not active")
	ErrBelowMinimum      = errors.New("amount is below the ad minimum")
	ErrAboveMaximum      = errors.New("amount is above the ad maximum")
	ErrAboveAvailable    = errors.New("amount exceeds what the ad has left")
	ErrInvalidAd         = errors.New("invalid ad: require 0 < min_amount <= max_amount <= amount and a positive price")
	ErrNoPaymentMethods  = errors.New("at least one payment method is required")
	ErrInvalidResolution = errors.New("resolution must be release or refund")
	ErrReasonRequired    = errors.New("a dispute reason is required")
)

// Role is how an actor relates to an order.
type Role int

const (
	RoleNone Role = iota
	RoleBuyer
	RoleSeller
	RoleAdmin
	// RoleSystem is the deadline sweeper.
	RoleSystem
)

// Action is a requested transition.
type Action string

const (
	ActionMarkPaid Action = "mark_paid"
	ActionConfirm  Action = "confirm_payment"
	ActionRelease  Action = "release"
	ActionDispute  Action = "dispute"
	ActionCancel   Action = "cancel"
	ActionResolve  Action = "resolve"
)

// RoleOf returns the participant role of userID in o.
func RoleOf(o Order, userID string) Role {
	switch userID {
	case o.BuyerID:
		return RoleBuyer
	case o.SellerID:
		return RoleSeller
	}
	return RoleNone
}

// Next validates (status, role, action) against the order lifecycle and
// returns the resulting status. The payment deadline is judged against now.
func Next(o Order, role Role, action Action, now time.Time) (Status, error) {
	expired := !now.Before(o.PaymentDeadline)
	switch action {
	case ActionMarkPaid:
		if role == RoleBuyer && o.Status == StatusEscrowLocked {
			return StatusPaymentSent, nil
		}
	case ActionConfirm:
		if role == RoleSeller && o.Status == StatusPaymentSent {
			return StatusPaymentConfirmed, nil
		}
	case ActionRelease:
		if role == RoleSeller && (o.Status == StatusPaymentSent || o.Status == StatusPaymentConfirmed) {
			return StatusCompleted, nil
		}
	case ActionDispute:
		// payment_confirmed stays disputable: it has no cancel or expiry edge.
		if (role == RoleBuyer || role == RoleSeller) &&
			(o.Status == StatusEscrowLocked || o.Status == StatusPaymentSent || o.Status == StatusPaymentConfirmed) {
			return StatusDisputed, nil
		}
	case ActionCancel:
		if o.Status != StatusEscrowLocked {
			break
		}
		switch {
		case role == RoleBuyer:
			return StatusCancelled, nil
		case (role == RoleSeller || role == RoleSystem) && expired:
			return StatusCancelled, nil
		}
	case ActionResolve:
		if role == RoleAdmin && o.Status == StatusDisputed {
			return StatusDisputeResolved, nil
		}
	}
	return "", ErrInvalidTransition
}

// ValidateAd checks a new ad before it is stored.
func ValidateAd(ad Ad) error {
	if ad.AdType != AdBuy && ad.AdType != AdSell {
		return ErrInvalidAd
	}
	if !ad.MinAmount.IsPositive() || ad.MinAmount.GreaterThan(ad.MaxAmount) ||
		ad.MaxAmount.GreaterThan(ad.Amount) || !ad.PricePerUnit.IsPositive() {
		return ErrInvalidAd
	}
	methods := 0
	for _, m := range ad.PaymentMethods {
		if strings.TrimSpace(m) != "" {
			methods++
		}
	}
	if methods == 0 {
		return ErrNoPaymentMethods
	}
	return nil
}

// PlanOrder checks a taker's request against ad and prices it. The returned
// order is at escrow_locked with its deadline set; ids are left empty.
func PlanOrder(ad Ad, takerID string, amount, feePercentage decimal.Decimal, now time.Time) (Order, error) {
	if ad.UserID == takerID {
		return Order{}, ErrSelfTrade
	}
	if !ad.IsActive {
		return Order{}, ErrAdInactive
	}
	if amount.LessThan(ad.MinAmount) {
		return Order{}, ErrBelowMinimum
	}
	if amount.GreaterThan(ad.MaxAmount) {
		return Order{}, ErrAboveMaximum
	}
	if amount.GreaterThan(ad.Amount) {
		return Order{}, ErrAboveAvailable
	}
	quote, err := fees.P2PFee(amount, ad.PricePerUnit, feePercentage)
	if err != nil {
		return Order{}, err
	}

	o := Order{
		AdID:         ad.ID,
		TakerID:      takerID,
		Amount:       amount,
		PricePerUnit: ad.PricePerUnit,
		TotalPrice:   quote.TotalPrice,
		PlatformFee:  quote.PlatformFee,
		Status:       StatusEscrowLocked,
		CreatedAt:    now,
	}
	if ad.AdType == AdSell {
		o.SellerID, o.BuyerID = ad.UserID, takerID
	} else {
		o.BuyerID, o.SellerID = ad.UserID, takerID
	}
	window := ad.PaymentWindowMinutes
	if window <= 0 {
		window = 15
	}
	o.PaymentDeadline = now.Add(time.Duration(window) * time.Minute)
	return o, nil
}

// stamp records the transition time on the matching timestamp field.
func stamp(o *Order, to Status, now time.Time) {
	t := now
	switch to {
	case StatusPaymentSent:
		o.PaidAt = &t
	case StatusPaymentConfirmed:
		o.ConfirmedAt = &t
	case StatusCompleted:
		o.CompletedAt = &t
	case StatusCancelled:
		o.CancelledAt = &t
	case StatusDisputed:
		o.DisputedAt = &t
	case StatusDisputeResolved:
		o.ResolvedAt = &t
	}
	o.Status = to
}

// SystemMessage is the chat notice written with each status change.
func SystemMessage(o Order) string {
	switch o.Status {
	case StatusEscrowLocked:
		return "Order created. The seller's funds are locked in escrow. Buyer, please send the payment before the deadline."
	case StatusPaymentSent:
		return "The buyer marked the payment as sent. Seller, please check your account."
	case StatusPaymentConfirmed:
		return "The seller confirmed receiving the payment."
	case StatusCompleted:
		return "The seller released the escrow. Order completed."
	case StatusCancelled:
		return "Order cancelled. The escrowed funds were returned to the seller."
	case StatusDisputed:
		return "A dispute was opened: " + o.DisputeReason
	case StatusDisputeResolved:
		if o.Resolution == ResolutionRelease {
			return "Dispute resolved by support: escrow released to the buyer."
		}
		return "Dispute resolved by support: escrow refunded to the seller."
	}
	return "Order status changed to " + string(o.Status)
}

// releaseDuration is how long the seller took to release after payment.
func releaseDuration(o Order) time.Duration {
	if o.CompletedAt == nil {
		return 0
	}
	from := o.CreatedAt
	if o.PaidAt != nil {
		from = *o.PaidAt
	}
	if d := o.CompletedAt.Sub(from); d > 0 {
		return d
	}
	return 0
}
