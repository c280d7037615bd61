package p2p

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdType is the side the ad owner takes.
type AdType string

const (
	AdBuy  AdType = "buy"
	AdSell AdType = "sell"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending          Status = "pending"
	StatusEscrowLocked     Status = "escrow_locked"
	StatusPaymentSent      Status = "payment_sent"
	StatusPaymentConfirmed Status = "payment_confirmed"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
	StatusDisputed         Status = "disputed"
	StatusDisputeResolved  Status = "dispute_resolved"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusDisputeResolved
}

// Resolution of a dispute.
const (
	ResolutionRelease = "release"
	ResolutionRefund  = "refund"
)

// Ad is a standing buy or sell offer.
type Ad struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"user_id"`
	AdType               AdType          `json:"ad_type"`
	Amount               decimal.Decimal `json:"amount"`
	MinAmount            decimal.Decimal `json:"min_amount"`
	MaxAmount            decimal.Decimal `json:"max_amount"`
	PricePerUnit         decimal.Decimal `json:"price_per_unit"`
	PaymentMethods       []string        `json:"payment_methods"`
	Terms                string          `json:"terms,omitempty"`
	PaymentWindowMinutes int             `json:"payment_window_minutes"`
	IsActive             bool            `json:"is_active"`
	CompletedTrades      int             `json:"completed_trades"`
	TotalVolume          decimal.Decimal `json:"total_volume"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Order is one trade against an ad.
type Order struct {
	ID              string          `json:"id"`
	AdID            string          `json:"ad_id"`
	BuyerID         string          `json:"buyer_id"`
	SellerID        string          `json:"seller_id"`
	// TakerID is the party that answered the ad; idempotency keys are scoped to it.
	TakerID         string          `json:"-"`
	Amount          decimal.Decimal `json:"amount"`
	PricePerUnit    decimal.Decimal `json:"price_per_unit"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	Status          Status          `json:"status"`
	IdempotencyKey  string          `json:"-"`
	DisputeReason   string          `json:"dispute_reason,omitempty"`
	Resolution      string          `json:"resolution,omitempty"`
	PaymentDeadline time.Time       `json:"payment_deadline"`
	CreatedAt       time.Time       `json:"created_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	ConfirmedAt     *time.Time      `json:"confirmed_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	DisputedAt      *time.Time      `json:"disputed_at,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`

	// RemainingSeconds is derived from the server clock on every read.
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// FeeUnits is the platform fee expressed in the traded asset, at the rate
// that was in force when the order was created.
func (o Order) FeeUnits() decimal.Decimal {
	if !o.TotalPrice.IsPositive() {
		return decimal.Zero
	}
	return o.Amount.Mul(o.PlatformFee).Div(o.TotalPrice).Round(2)
}

// withRemaining fills RemainingSeconds relative to now.
func (o Order) withRemaining(now time.Time) Order {
	o.RemainingSeconds = 0
	if o.Status == StatusEscrowLocked || o.Status == StatusPending {
		if left := o.PaymentDeadline.Sub(now); left > 0 {
			o.RemainingSeconds = int64(left.Seconds())
		}
	}
	return o
}

// Message is one entry of an order's chat. System messages have no sender.
type Message struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	SenderID  string    `json:"sender_id,omitempty"`
	Message   string    `json:"message"`
	IsSystem  bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
}

// TraderProfile aggregates a user's trading reputation.
type TraderProfile struct {
	UserID           string          `json:"user_id"`
	TotalTrades      int             `json:"total_trades"`
	SuccessfulTrades int             `json:"successful_trades"`
	AvgRating        decimal.Decimal `json:"avg_rating"`
	RatingCount      int             `json:"rating_count"`
	AvgReleaseTime   int             `json:"avg_release_time"` // seconds
	IsVerifiedTrader bool            `json:"is_verified_trader"`
}

// Rating is a counterparty's score of a completed order.
type Rating struct {
	OrderID   string    `json:"order_id"`
	RaterID   string    `json:"rater_id"`
	RateeID   string    `json:"ratee_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
