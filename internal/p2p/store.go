package p2p

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateOrder = errors.New("an order with this idempotency key already exists")
	ErrAlreadyRated   = errors.New("you already rated this order")
)

// Store reads P2P state and opens transactions for every mutation.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	ListAds(ctx context.Context, adType AdType, limit int) ([]Ad, error)
	GetAd(ctx context.Context, id string) (Ad, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	OrderByKey(ctx context.Context, takerID, key string) (Order, error)
	ListOrdersForUser(ctx context.Context, userID string) ([]Order, error)
	ListOrdersByStatus(ctx context.Context, status Status) ([]Order, error)
	OverdueOrders(ctx context.Context, now time.Time) ([]string, error)
	ListMessages(ctx context.Context, orderID string) ([]Message, error)
	GetTraderProfile(ctx context.Context, userID string) (TraderProfile, error)
}

// Tx is the set of writes performed atomically by one lifecycle step.
type Tx interface {
	InsertAd(ctx context.Context, ad *Ad) error
	SetAdActive(ctx context.Context, adID, ownerID string, active bool) error
	LockAd(ctx context.Context, id string) (Ad, error)
	// AdjustAd adds remaining to ad.amount, completed to completed_trades
	// and volume to total_volume.
	AdjustAd(ctx context.Context, adID string, remaining decimal.Decimal, completed int, volume decimal.Decimal) error

	InsertOrder(ctx context.Context, o *Order) error
	LockOrder(ctx context.Context, id string) (Order, error)
	SaveOrder(ctx context.Context, o Order) error
	InsertMessage(ctx context.Context, m *Message) error
	Notify(ctx context.Context, userID, notifyType, title, body, reference string) error

	EnsureTraderProfile(ctx context.Context, userID string) error
	RecordTrade(ctx context.Context, userID string, successful bool, release time.Duration) error
	InsertRating(ctx context.Context, r Rating) error
	ApplyRating(ctx context.Context, userID string, rating int) error
	SetVerifiedTrader(ctx context.Context, userID string, verified bool) error

	LockWallets(ctx context.Context, userIDs ...string) error
	Hold(ctx context.Context, userID string, amount decimal.Decimal, reference string) error
	ReleaseHold(ctx context.Context, userID string, amount decimal.Decimal, reference string) error
	RefundHold(ctx context.Context, userID string, amount decimal.Decimal, reference string) error
	Credit(ctx context.Context, userID string, amount decimal.Decimal, reference string) error
}
