package giftcard

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/alerts"
	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/wallet"
)

var logger = logging.NewPackageLogger("giftcard")

var (
	ErrLocked       = errors.New("too many failed attempts, try again later")
	ErrInvalidCode  = errors.New("invalid or already used gift card code")
	ErrInvalidBatch = errors.New("count must be between 1 and 500 and amount greater than zero")
)

type Card struct {
	ID         string          `json:"id"`
	Code       string          `json:"code"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	RedeemedBy string          `json:"redeemed_by,omitempty"`
	RedeemedAt *time.Time      `json:"redeemed_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Result is the outcome of a redemption attempt. LockedUntil is set whenever
// the user is locked out, including by this attempt.
type Result struct {
	Amount            decimal.Decimal `json:"amount,omitempty"`
	LockedUntil       *time.Time      `json:"locked_until,omitempty"`
	RemainingSeconds  int             `json:"remaining_seconds,omitempty"`
	AttemptsRemaining int             `json:"attempts_remaining,omitempty"`
}

type Service struct {
	pool   *pgxpool.Pool
	alerts alerts.Sink
	now    func() time.Time
}

func NewService(pool *pgxpool.Pool, sink alerts.Sink) *Service {
	return &Service{pool: pool, alerts: sink, now: time.Now}
}

// Redeem credits the card amount to userID. Failed attempts are committed even
// though the call returns an error.
func (s *Service) Redeem(ctx context.Context, userID, code string) (Result, error) {
	code = NormalizeCode(code)
	now := s.now()
	var (
		res    Result
		outErr error
	)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var until time.Time
		err := tx.QueryRow(ctx,
			`SELECT locked_until FROM gift_card_lockouts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&until)
		if err != nil && !db.IsNoRows(err) {
			return pkgerrors.Wrap(err, "read lockout")
		}
		if until.After(now) {
			res.LockedUntil = &until
			res.RemainingSeconds = RemainingSeconds(until, now)
			outErr = ErrLocked
			return nil
		}

		var (
			cardID string
			amount decimal.Decimal
		)
		err = tx.QueryRow(ctx,
			`SELECT id::text, amount FROM gift_cards WHERE code = $1 AND status = 'active' FOR UPDATE`, code,
		).Scan(&cardID, &amount)
		if db.IsNoRows(err) {
			outErr = ErrInvalidCode
			return s.recordFailure(ctx, tx, userID, code, now, &res)
		}
		if err != nil {
			return pkgerrors.Wrap(err, "read gift card")
		}

		if _, err := tx.Exec(ctx,
			`UPDATE gift_cards SET status = 'redeemed', redeemed_by = $2, redeemed_at = $3 WHERE id = $1`,
			cardID, userID, now); err != nil {
			return pkgerrors.Wrap(err, "mark gift card redeemed")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO gift_card_attempts (user_id, code, success, created_at) VALUES ($1, $2, TRUE, $3)`,
			userID, code, now); err != nil {
			return pkgerrors.Wrap(err, "record attempt")
		}
		if err := wallet.Lock(ctx, tx, userID); err != nil {
			return err
		}
		if err := wallet.Credit(ctx, tx, userID, amount, wallet.Entry{Type: wallet.TxGiftCard, Reference: cardID, Description: "gift card"}); err != nil {
			return err
		}
		res.Amount = amount
		return alerts.CreateNotification(ctx, tx, alerts.Notification{
			UserID:    userID,
			Type:      "gift_card:redeemed",
			Title:     "Gift card redeemed",
			Body:      amount.StringFixed(2) + " DZD added to your wallet",
			Reference: cardID,
		})
	})
	if err != nil {
		return Result{}, err
	}
	if outErr != nil {
		if res.LockedUntil != nil {
			logger.Warn().Str(logging.USER, userID).Time("locked_until", *res.LockedUntil).Msg("gift card redemption locked")
		}
		return res, outErr
	}

	s.alerts.Enqueue(ctx, "gift_card", map[string]any{"user_id": userID, "code": code, "amount": res.Amount})
	logger.Info().Str(logging.USER, userID).Str("amount", res.Amount.String()).Msg("gift card redeemed")
	return res, nil
}

func (s *Service) recordFailure(ctx context.Context, tx pgx.Tx, userID, code string, now time.Time, res *Result) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO gift_card_attempts (user_id, code, success, created_at) VALUES ($1, $2, FALSE, $3)`,
		userID, code, now); err != nil {
		return pkgerrors.Wrap(err, "record attempt")
	}
	rows, err := tx.Query(ctx,
		`SELECT created_at FROM gift_card_attempts
		 WHERE user_id = $1 AND NOT success AND created_at > $2`, userID, now.Add(-FailureWindow))
	if err != nil {
		return pkgerrors.Wrap(err, "count failed attempts")
	}
	failures, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return pkgerrors.Wrap(err, "scan failed attempts")
	}
	if !ShouldLock(failures, now) {
		res.AttemptsRemaining = MaxFailures - len(failures)
		return nil
	}

	until := now.Add(LockoutDuration)
	if _, err := tx.Exec(ctx,
		`INSERT INTO gift_card_lockouts (user_id, locked_until) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET locked_until = EXCLUDED.locked_until`, userID, until); err != nil {
		return pkgerrors.Wrap(err, "lock user")
	}
	res.LockedUntil = &until
	res.RemainingSeconds = RemainingSeconds(until, now)
	return nil
}

// CreateBatch issues count new active cards worth amount each.
func (s *Service) CreateBatch(ctx context.Context, adminID string, amount decimal.Decimal, count int) ([]Card, error) {
	if count < 1 || count > 500 || !amount.IsPositive() {
		return nil, ErrInvalidBatch
	}
	cards := make([]Card, 0, count)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			c := Card{Code: NewCode(), Amount: amount, Status: "active"}
			err := tx.QueryRow(ctx,
				`INSERT INTO gift_cards (code, amount, created_by) VALUES ($1, $2, NULLIF($3, '')::uuid)
				 RETURNING id::text, created_at`, c.Code, amount, adminID,
			).Scan(&c.ID, &c.CreatedAt)
			if err != nil {
				return pkgerrors.Wrap(err, "insert gift card")
			}
			cards = append(cards, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Str("admin", adminID).Int("count", count).Str("amount", amount.String()).Msg("gift cards issued")
	return cards, nil
}

func (s *Service) List(ctx context.Context, status string, limit int) ([]Card, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, code, amount, status, COALESCE(redeemed_by::text, ''), redeemed_at, created_at
		 FROM gift_cards WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2`, status, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list gift cards")
	}
	defer rows.Close()
	out := []Card{}
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.ID, &c.Code, &c.Amount, &c.Status, &c.RedeemedBy, &c.RedeemedAt, &c.CreatedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "scan gift card")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Disable retires an unused card.
func (s *Service) Disable(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE gift_cards SET status = 'disabled' WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return pkgerrors.Wrap(err, "disable gift card")
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidCode
	}
	return nil
}
