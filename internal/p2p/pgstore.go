package p2p

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/alerts"
	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/wallet"
)

// PGStore is the Postgres implementation of Store.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

const adColumns = `id::text, user_id::text, ad_type, amount, min_amount, max_amount, price_per_unit,
	payment_methods, COALESCE(terms, ''), payment_window_minutes, is_active, completed_trades,
	total_volume, created_at`

func scanAd(row pgx.Row) (Ad, error) {
	var a Ad
	err := row.Scan(&a.ID, &a.UserID, &a.AdType, &a.Amount, &a.MinAmount, &a.MaxAmount, &a.PricePerUnit,
		&a.PaymentMethods, &a.Terms, &a.PaymentWindowMinutes, &a.IsActive, &a.CompletedTrades,
		&a.TotalVolume, &a.CreatedAt)
	if db.IsNoRows(err) {
		return Ad{}, ErrNotFound
	}
	return a, errors.Wrap(err, "scan ad")
}

const orderColumns = `id::text, ad_id::text, buyer_id::text, seller_id::text, taker_id::text, amount, price_per_unit,
	total_price, platform_fee, status, COALESCE(idempotency_key, ''), COALESCE(dispute_reason, ''),
	COALESCE(resolution, ''), payment_deadline, created_at, paid_at, confirmed_at, completed_at,
	cancelled_at, disputed_at, resolved_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.AdID, &o.BuyerID, &o.SellerID, &o.TakerID, &o.Amount, &o.PricePerUnit,
		&o.TotalPrice, &o.PlatformFee, &o.Status, &o.IdempotencyKey, &o.DisputeReason,
		&o.Resolution, &o.PaymentDeadline, &o.CreatedAt, &o.PaidAt, &o.ConfirmedAt, &o.CompletedAt,
		&o.CancelledAt, &o.DisputedAt, &o.ResolvedAt)
	if db.IsNoRows(err) {
		return Order{}, ErrNotFound
	}
	return o, errors.Wrap(err, "scan order")
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PGStore) ListAds(ctx context.Context, adType AdType, limit int) ([]Ad, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+adColumns+` FROM p2p_ads
		 WHERE is_active AND amount >= min_amount AND ($1 = '' OR ad_type = $1)
		 ORDER BY price_per_unit ASC, created_at ASC LIMIT $2`, string(adType), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list ads")
	}
	return collect(rows, scanAd)
}

func (s *PGStore) GetAd(ctx context.Context, id string) (Ad, error) {
	return scanAd(s.pool.QueryRow(ctx, `SELECT `+adColumns+` FROM p2p_ads WHERE id = $1`, id))
}

func (s *PGStore) GetOrder(ctx context.Context, id string) (Order, error) {
	return scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM p2p_orders WHERE id = $1`, id))
}

func (s *PGStore) OrderByKey(ctx context.Context, takerID, key string) (Order, error) {
	return scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM p2p_orders WHERE taker_id = $1 AND idempotency_key = $2`, takerID, key))
}

func (s *PGStore) ListOrdersForUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM p2p_orders WHERE buyer_id = $1 OR seller_id = $1
		 ORDER BY created_at DESC LIMIT 200`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return collect(rows, scanOrder)
}

func (s *PGStore) ListOrdersByStatus(ctx context.Context, status Status) ([]Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM p2p_orders WHERE status = $1 ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, errors.Wrap(err, "list orders by status")
	}
	return collect(rows, scanOrder)
}

func (s *PGStore) OverdueOrders(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text FROM p2p_orders WHERE status = 'escrow_locked' AND payment_deadline <= $1
		 ORDER BY payment_deadline LIMIT 500`, now)
	if err != nil {
		return nil, errors.Wrap(err, "overdue orders")
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PGStore) ListMessages(ctx context.Context, orderID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, order_id::text, COALESCE(sender_id::text, ''), message, is_system, created_at
		 FROM p2p_messages WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	return collect(rows, func(r pgx.Row) (Message, error) {
		var m Message
		err := r.Scan(&m.ID, &m.OrderID, &m.SenderID, &m.Message, &m.IsSystem, &m.CreatedAt)
		return m, err
	})
}

func (s *PGStore) GetTraderProfile(ctx context.Context, userID string) (TraderProfile, error) {
	var p TraderProfile
	err := s.pool.QueryRow(ctx,
		`SELECT user_id::text, total_trades, successful_trades, avg_rating, rating_count,
		        avg_release_time, is_verified_trader
		 FROM p2p_trader_profiles WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.TotalTrades, &p.SuccessfulTrades, &p.AvgRating, &p.RatingCount,
			&p.AvgReleaseTime, &p.IsVerifiedTrader)
	if db.IsNoRows(err) {
		return TraderProfile{}, ErrNotFound
	}
	return p, errors.Wrap(err, "get trader profile")
}

// pgTx implements Tx on one pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertAd(ctx context.Context, ad *Ad) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO p2p_ads (user_id, ad_type, amount, min_amount, max_amount, price_per_unit,
		                      payment_methods, terms, payment_window_minutes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		 RETURNING id::text, created_at`,
		ad.UserID, string(ad.AdType), ad.Amount, ad.MinAmount, ad.MaxAmount, ad.PricePerUnit,
		ad.PaymentMethods, ad.Terms, ad.PaymentWindowMinutes,
	).Scan(&ad.ID, &ad.CreatedAt)
	return errors.Wrap(err, "insert ad")
}

func (t *pgTx) SetAdActive(ctx context.Context, adID, ownerID string, active bool) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE p2p_ads SET is_active = $1, updated_at = NOW() WHERE id = $2 AND user_id = $3`,
		active, adID, ownerID)
	if err != nil {
		return errors.Wrap(err, "update ad")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) LockAd(ctx context.Context, id string) (Ad, error) {
	return scanAd(t.tx.QueryRow(ctx, `SELECT `+adColumns+` FROM p2p_ads WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) AdjustAd(ctx context.Context, adID string, remaining decimal.Decimal, completed int, volume decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE p2p_ads SET amount = amount + $1, completed_trades = completed_trades + $2,
		        total_volume = total_volume + $3, updated_at = NOW()
		 WHERE id = $4`,
		remaining, completed, volume, adID)
	return errors.Wrap(err, "adjust ad")
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO p2p_orders (ad_id, buyer_id, seller_id, taker_id, amount, price_per_unit, total_price,
		                         platform_fee, status, idempotency_key, payment_deadline, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12)
		 RETURNING id::text`,
		o.AdID, o.BuyerID, o.SellerID, o.TakerID, o.Amount, o.PricePerUnit, o.TotalPrice, o.PlatformFee,
		string(o.Status), o.IdempotencyKey, o.PaymentDeadline, o.CreatedAt,
	).Scan(&o.ID)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateOrder
	}
	return errors.Wrap(err, "insert order")
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM p2p_orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) SaveOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE p2p_orders SET status = $1, dispute_reason = NULLIF($2, ''), resolution = NULLIF($3, ''),
		        paid_at = $4, confirmed_at = $5, completed_at = $6, cancelled_at = $7,
		        disputed_at = $8, resolved_at = $9, updated_at = NOW()
		 WHERE id = $10`,
		string(o.Status), o.DisputeReason, o.Resolution, o.PaidAt, o.ConfirmedAt, o.CompletedAt,
		o.CancelledAt, o.DisputedAt, o.ResolvedAt, o.ID)
	return errors.Wrap(err, "save order")
}

func (t *pgTx) InsertMessage(ctx context.Context, m *Message) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO p2p_messages (order_id, sender_id, message, is_system)
		 VALUES ($1, NULLIF($2, '')::uuid, $3, $4) RETURNING id::text, created_at`,
		m.OrderID, m.SenderID, m.Message, m.IsSystem,
	).Scan(&m.ID, &m.CreatedAt)
	return errors.Wrap(err, "insert message")
}

func (t *pgTx) Notify(ctx context.Context, userID, notifyType, title, body, reference string) error {
	return alerts.CreateNotification(ctx, t.tx, alerts.Notification{
		UserID: userID, Type: notifyType, Title: title, Body: body, Reference: reference,
	})
}

func (t *pgTx) EnsureTraderProfile(ctx context.Context, userID string) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO p2p_trader_profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	return errors.Wrap(err, "ensure trader profile")
}

func (t *pgTx) RecordTrade(ctx context.Context, userID string, successful bool, release time.Duration) error {
	if err := t.EnsureTraderProfile(ctx, userID); err != nil {
		return err
	}
	secs := int(release / time.Second)
	_, err := t.tx.Exec(ctx,
		`UPDATE p2p_trader_profiles SET
		    total_trades = total_trades + 1,
		    successful_trades = successful_trades + CASE WHEN $2 THEN 1 ELSE 0 END,
		    avg_release_time = CASE WHEN $2 AND $3 > 0
		        THEN ((avg_release_time * successful_trades) + $3) / (successful_trades + 1)
		        ELSE avg_release_time END,
		    updated_at = NOW()
		 WHERE user_id = $1`,
		userID, successful, secs)
	return errors.Wrap(err, "record trade")
}

func (t *pgTx) InsertRating(ctx context.Context, r Rating) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO p2p_ratings (order_id, rater_id, ratee_id, rating, comment)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
		r.OrderID, r.RaterID, r.RateeID, r.Rating, r.Comment)
	if db.IsUniqueViolation(err) {
		return ErrAlreadyRated
	}
	return errors.Wrap(err, "insert rating")
}

func (t *pgTx) ApplyRating(ctx context.Context, userID string, rating int) error {
	if err := t.EnsureTraderProfile(ctx, userID); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx,
		`UPDATE p2p_trader_profiles SET
		    avg_rating = ROUND(((avg_rating * rating_count) + $2)::numeric / (rating_count + 1), 2),
		    rating_count = rating_count + 1,
		    updated_at = NOW()
		 WHERE user_id = $1`, userID, rating)
	return errors.Wrap(err, "apply rating")
}

func (t *pgTx) SetVerifiedTrader(ctx context.Context, userID string, verified bool) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE p2p_trader_profiles SET is_verified_trader = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, verified)
	return errors.Wrap(err, "set verified trader")
}

func (t *pgTx) LockWallets(ctx context.Context, userIDs ...string) error {
	return wallet.Lock(ctx, t.tx, userIDs...)
}

func (t *pgTx) Hold(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	return wallet.Hold(ctx, t.tx, userID, amount, wallet.Entry{Type: wallet.TxEscrowHold, Reference: ref, Description: "P2P escrow"})
}

func (t *pgTx) ReleaseHold(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	return wallet.ReleaseHold(ctx, t.tx, userID, amount, wallet.Entry{Type: wallet.TxEscrowRelease, Reference: ref, Description: "P2P escrow released"})
}

func (t *pgTx) RefundHold(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	return wallet.RefundHold(ctx, t.tx, userID, amount, wallet.Entry{Type: wallet.TxEscrowRefund, Reference: ref, Description: "P2P escrow refunded"})
}

func (t *pgTx) Credit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	return wallet.Credit(ctx, t.tx, userID, amount, wallet.Entry{Type: wallet.TxP2PCredit, Reference: ref, Description: "P2P purchase"})
}
