package approvals

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/alerts"
	"github.com/opay-dz/opay/internal/wallet"
)

// Request is one row of a reviewable table.
type Request struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Kind         string          `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
	Status       string          `json:"status"`
	Details      map[string]any  `json:"details"`
	ProofURL     string          `json:"proof_url,omitempty"`
	AdminNote    string          `json:"admin_note,omitempty"`
	ReviewedBy   string          `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Store persists requests of every kind.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	List(ctx context.Context, k Kind, status string, limit int) ([]Request, error)
	ListForUser(ctx context.Context, k Kind, userID string) ([]Request, error)
	PendingCount(ctx context.Context, k Kind) (int, error)
}

// Tx is the transactional part of Store.
type Tx interface {
	Insert(ctx context.Context, k Kind, r *Request) error
	// Lock reads the request FOR UPDATE.
	Lock(ctx context.Context, k Kind, id string) (Request, error)
	// Finish writes status, proof, note and reviewer of r.
	Finish(ctx context.Context, k Kind, r Request) error

	LockWallet(ctx context.Context, userID string) error
	Hold(ctx context.Context, userID string, amount decimal.Decimal, e wallet.Entry) error
	ReleaseHold(ctx context.Context, userID string, amount decimal.Decimal, e wallet.Entry) error
	RefundHold(ctx context.Context, userID string, amount decimal.Decimal, e wallet.Entry) error
	Credit(ctx context.Context, userID string, amount decimal.Decimal, e wallet.Entry) error
	MarkVerified(ctx context.Context, userID string) error
	Notify(ctx context.Context, n alerts.Notification) error
}
