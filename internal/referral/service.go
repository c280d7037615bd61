package referral

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/alerts"
	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/fees"
	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/settings"
	"github.com/opay-dz/opay/internal/wallet"
)

var logger = logging.NewPackageLogger("referral")

var (
	ErrUnknownCode      = errors.New("referral code not found")
	ErrSelfReferral     = errors.New("cannot use your own referral code")
	ErrNoRewards        = errors.New("no rewards available to withdraw")
	ErrWithdrawalLocked = errors.New("at least 20 active referrals are required to withdraw rewards")
	ErrNotFound         = errors.New("referral not found")
	ErrUserNotFound     = errors.New("user not found")
)

type Stats struct {
	Code            string          `json:"referral_code"`
	TotalReferrals  int             `json:"total_referrals"`
	ActiveReferrals int             `json:"active_referrals"`
	Earned          decimal.Decimal `json:"earned"`
	Withdrawn       decimal.Decimal `json:"withdrawn"`
	FeePercentage   decimal.Decimal `json:"withdrawal_fee_percentage"`
}

type Withdrawal struct {
	Total           decimal.Decimal `json:"total"`
	Fee             decimal.Decimal `json:"fee"`
	Withdrawable    decimal.Decimal `json:"withdrawable"`
	ActiveReferrals int             `json:"active_referrals"`
}

type Flagged struct {
	ReferrerID string              `json:"referrer_id"`
	Flagged    int                 `json:"flagged"`
	Groups     map[string][]string `json:"groups"`
}

type Service struct {
	pool     *pgxpool.Pool
	settings settings.Source
	alerts   alerts.Sink
	now      func() time.Time
}

func NewService(pool *pgxpool.Pool, src settings.Source, sink alerts.Sink) *Service {
	return &Service{pool: pool, settings: src, alerts: sink, now: time.Now}
}

// EnsureCode returns the user's referral code, creating one on first use.
func (s *Service) EnsureCode(ctx context.Context, userID string) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		var code string
		err := s.pool.QueryRow(ctx,
			`UPDATE profiles SET referral_code = COALESCE(referral_code, $2)
			 WHERE id = $1 RETURNING referral_code`, userID, NewCode()).Scan(&code)
		if db.IsNoRows(err) {
			return "", ErrUserNotFound
		}
		if db.IsUniqueViolation(err) {
			continue
		}
		if err != nil {
			return "", pkgerrors.Wrap(err, "ensure referral code")
		}
		return code, nil
	}
	return "", errors.New("could not allocate a unique referral code")
}

// RecordSignup links a new user to the owner of code and books the referrer's
// reward. It runs inside the signup transaction.
func (s *Service) RecordSignup(ctx context.Context, tx pgx.Tx, referredID, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	var referrerID string
	err := tx.QueryRow(ctx, `SELECT id::text FROM profiles WHERE referral_code = $1 AND NOT is_banned`, code).Scan(&referrerID)
	if db.IsNoRows(err) {
		return ErrUnknownCode
	}
	if err != nil {
		return pkgerrors.Wrap(err, "find referrer")
	}
	if referrerID == referredID {
		return ErrSelfReferral
	}

	var referralID string
	err = tx.QueryRow(ctx,
		`INSERT INTO referrals (referrer_id, referred_id) VALUES ($1, $2) RETURNING id::text`,
		referrerID, referredID).Scan(&referralID)
	if err != nil {
		return pkgerrors.Wrap(err, "insert referral")
	}
	if _, err := tx.Exec(ctx, `UPDATE profiles SET referred_by = $2 WHERE id = $1`, referredID, referrerID); err != nil {
		return pkgerrors.Wrap(err, "set referred_by")
	}
	reward := s.settings.Current().ReferralReward
	if reward.IsPositive() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO referral_rewards (referral_id, referrer_id, amount) VALUES ($1, $2, $3)`,
			referralID, referrerID, reward); err != nil {
			return pkgerrors.Wrap(err, "insert referral reward")
		}
	}
	return alerts.CreateNotification(ctx, tx, alerts.Notification{
		UserID: referrerID,
		Type:   "referral:signup",
		Title:  "New referral",
		Body:   "Someone joined with your code. Your reward unlocks once they make a deposit.",
	})
}

// activate marks pending referrals active once the referred user has an approved deposit.
func activate(ctx context.Context, q db.Querier, referrerID string) (int, error) {
	if _, err := q.Exec(ctx,
		`UPDATE referrals r SET status = 'active'
		 WHERE r.referrer_id = $1 AND r.status = 'pending' AND NOT r.is_flagged
		   AND EXISTS (SELECT 1 FROM deposits d WHERE d.user_id = r.referred_id AND d.status = 'approved')`,
		referrerID); err != nil {
		return 0, pkgerrors.Wrap(err, "activate referrals")
	}
	var n int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM referrals WHERE referrer_id = $1 AND status = 'active'`, referrerID).Scan(&n)
	return n, pkgerrors.Wrap(err, "count active referrals")
}

func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	code, err := s.EnsureCode(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Code: code}
	if st.ActiveReferrals, err = activate(ctx, s.pool, userID); err != nil {
		return Stats{}, err
	}
	err = s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM referrals WHERE referrer_id = $1),
		        COALESCE((SELECT SUM(amount) FROM referral_rewards WHERE referrer_id = $1 AND status = 'earned'), 0),
		        COALESCE((SELECT SUM(amount) FROM referral_rewards WHERE referrer_id = $1 AND status = 'withdrawn'), 0)`,
		userID).Scan(&st.TotalReferrals, &st.Earned, &st.Withdrawn)
	if err != nil {
		return Stats{}, pkgerrors.Wrap(err, "referral stats")
	}
	st.FeePercentage = fees.ReferralWithdrawalFee(st.ActiveReferrals)
	return st, nil
}

// Withdraw pays earned rewards into the wallet minus the tiered fee. A 100% fee
// refuses the withdrawal and leaves the rewards untouched.
func (s *Service) Withdraw(ctx context.Context, userID string) (Withdrawal, error) {
	var w Withdrawal
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := wallet.Lock(ctx, tx, userID); err != nil {
			return err
		}
		active, err := activate(ctx, tx, userID)
		if err != nil {
			return err
		}
		w.ActiveReferrals = active

		rows, err := tx.Query(ctx,
			`SELECT rw.id::text, rw.amount, r.status, r.is_flagged
			   FROM referral_rewards rw JOIN referrals r ON r.id = rw.referral_id
			  WHERE rw.referrer_id = $1 AND rw.status = 'earned'
			  FOR UPDATE OF rw`, userID)
		if err != nil {
			return pkgerrors.Wrap(err, "lock rewards")
		}
		rewards, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Reward, error) {
			var r Reward
			err := row.Scan(&r.ID, &r.Amount, &r.ReferralStatus, &r.Flagged)
			return r, err
		})
		if err != nil {
			return pkgerrors.Wrap(err, "scan rewards")
		}
		var ids []string
		w.Total, ids = Payable(rewards)
		if !w.Total.IsPositive() {
			return ErrNoRewards
		}
		w.Fee, w.Withdrawable = fees.ReferralWithdrawable(w.Total, active)
		if !w.Withdrawable.IsPositive() {
			return ErrWithdrawalLocked
		}

		if _, err := tx.Exec(ctx,
			`UPDATE referral_rewards SET status = 'withdrawn', withdrawn_at = $2
			 WHERE id = ANY($1::uuid[]) AND status = 'earned'`, ids, s.now()); err != nil {
			return pkgerrors.Wrap(err, "mark rewards withdrawn")
		}
		return wallet.Credit(ctx, tx, userID, w.Withdrawable, wallet.Entry{
			Type:        wallet.TxReferral,
			Description: "referral rewards, fee " + w.Fee.StringFixed(2),
		})
	})
	if err != nil {
		return Withdrawal{}, err
	}
	logger.Info().Str(logging.USER, userID).Str("paid", w.Withdrawable.String()).Int("active", w.ActiveReferrals).Msg("referral rewards withdrawn")
	return w, nil
}

// FlagSuspicious flags referrals of referrerID whose referred users share a phone.
func (s *Service) FlagSuspicious(ctx context.Context, referrerID string) (Flagged, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id::text, COALESCE(p.phone, '') FROM referrals r JOIN profiles p ON p.id = r.referred_id
		 WHERE r.referrer_id = $1 AND r.status <> 'cancelled'`, referrerID)
	if err != nil {
		return Flagged{}, pkgerrors.Wrap(err, "load referrals")
	}
	refs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Referred, error) {
		var r Referred
		err := row.Scan(&r.ReferralID, &r.Phone)
		return r, err
	})
	if err != nil {
		return Flagged{}, pkgerrors.Wrap(err, "scan referrals")
	}

	groups := SuspiciousReferrals(refs)
	out := Flagged{ReferrerID: referrerID, Groups: groups}
	if len(groups) == 0 {
		return out, nil
	}
	var ids []string
	for _, g := range groups {
		ids = append(ids, g...)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE referrals SET is_flagged = TRUE, flag_reason = 'duplicate phone number'
		 WHERE id = ANY($1::uuid[]) AND NOT is_flagged`, ids)
	if err != nil {
		return Flagged{}, pkgerrors.Wrap(err, "flag referrals")
	}
	out.Flagged = int(tag.RowsAffected())
	if out.Flagged > 0 {
		s.alerts.Enqueue(ctx, "fraud_alert", map[string]any{
			"user_id": referrerID, "reason": "duplicate phone numbers across referrals", "referrals": ids,
		})
	}
	return out, nil
}

func fraudAttempt(ctx context.Context, tx pgx.Tx, userID, kind, adminID string, details map[string]any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return pkgerrors.Wrap(err, "encode fraud details")
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO fraud_attempts (user_id, kind, details, created_by) VALUES ($1, $2, $3::jsonb, NULLIF($4, '')::uuid)`,
		userID, kind, string(raw), adminID)
	return pkgerrors.Wrap(err, "record fraud attempt")
}

// CancelFraudulent cancels a referral and its unpaid rewards.
func (s *Service) CancelFraudulent(ctx context.Context, adminID, referralID, reason string) error {
	var referrerID string
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE referrals SET status = 'cancelled', is_flagged = TRUE, flag_reason = COALESCE(NULLIF($2, ''), flag_reason)
			 WHERE id = $1 RETURNING referrer_id::text`, referralID, reason).Scan(&referrerID)
		if db.IsNoRows(err) {
			return ErrNotFound
		}
		if err != nil {
			return pkgerrors.Wrap(err, "cancel referral")
		}
		if _, err := tx.Exec(ctx,
			`UPDATE referral_rewards SET status = 'cancelled' WHERE referral_id = $1 AND status = 'earned'`, referralID); err != nil {
			return pkgerrors.Wrap(err, "cancel rewards")
		}
		return fraudAttempt(ctx, tx, referrerID, "referral_cancelled", adminID, map[string]any{"referral_id": referralID, "reason": reason})
	})
	if err != nil {
		return err
	}
	s.alerts.Enqueue(ctx, "fraud_alert", map[string]any{"user_id": referrerID, "reason": reason, "referral_id": referralID})
	logger.Warn().Str("admin", adminID).Str("referral", referralID).Msg("referral cancelled as fraudulent")
	return nil
}

// BanUser bans a profile and voids its unpaid referral rewards.
func (s *Service) BanUser(ctx context.Context, adminID, userID, reason string) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE profiles SET is_banned = TRUE, ban_reason = NULLIF($2, '') WHERE id = $1 AND role <> 'admin'`, userID, reason)
		if err != nil {
			return pkgerrors.Wrap(err, "ban user")
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		if _, err := tx.Exec(ctx,
			`UPDATE referral_rewards SET status = 'cancelled' WHERE referrer_id = $1 AND status = 'earned'`, userID); err != nil {
			return pkgerrors.Wrap(err, "cancel rewards")
		}
		if _, err := tx.Exec(ctx,
			`UPDATE referrals SET status = 'cancelled' WHERE referrer_id = $1 AND status = 'pending'`, userID); err != nil {
			return pkgerrors.Wrap(err, "cancel referrals")
		}
		return fraudAttempt(ctx, tx, userID, "ban", adminID, map[string]any{"reason": reason})
	})
	if err != nil {
		return err
	}
	s.alerts.Enqueue(ctx, "fraud_alert", map[string]any{"user_id": userID, "reason": reason, "action": "ban"})
	logger.Warn().Str("admin", adminID).Str(logging.USER, userID).Msg("user banned")
	return nil
}

type FlaggedReferral struct {
	ID         string    `json:"id"`
	ReferrerID string    `json:"referrer_id"`
	ReferredID string    `json:"referred_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"flag_reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListFlagged returns flagged referrals for the admin review page.
func (s *Service) ListFlagged(ctx context.Context) ([]FlaggedReferral, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, referrer_id::text, referred_id::text, status, COALESCE(flag_reason, ''), created_at
		 FROM referrals WHERE is_flagged ORDER BY created_at DESC LIMIT 500`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list flagged referrals")
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[FlaggedReferral])
}
