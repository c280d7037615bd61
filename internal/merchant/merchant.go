// Package merchant handles partner accounts that top up customer wallets
// against cash and earn a tiered commission.
package merchant

import (
	"context"
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

var logger = logging.NewPackageLogger("merchant")

var (
	ErrNotMerchant      = errors.New("merchant account not found")
	ErrInactive         = errors.New("merchant account is disabled")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrSelfTopup        = errors.New("merchants cannot top up their own wallet")
	ErrInvalidTier      = errors.New("tier must be bronze, silver, gold or platinum")
	ErrUnknownTierRate  = errors.New("no commission rate configured for tier")
)

type Account struct {
	UserID          string          `json:"user_id"`
	BusinessName    string          `json:"business_name"`
	Tier            fees.Tier       `json:"tier"`
	CommissionRate  decimal.Decimal `json:"commission_rate"`
	IsActive        bool            `json:"is_active"`
	TotalTopups     decimal.Decimal `json:"total_topups"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Topup struct {
	ID           string          `json:"id"`
	MerchantID   string          `json:"merchant_id"`
	CustomerID   string          `json:"customer_id"`
	Amount       decimal.Decimal `json:"amount"`
	Commission   decimal.Decimal `json:"commission"`
	CustomerPays decimal.Decimal `json:"customer_pays"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Quote prices a top-up for a merchant of tier.
func Quote(tier fees.Tier, amount decimal.Decimal, rates map[fees.Tier]decimal.Decimal) (fees.MerchantQuote, error) {
	if !tier.Valid() {
		return fees.MerchantQuote{}, ErrInvalidTier
	}
	rate, ok := rates[tier]
	if !ok {
		return fees.MerchantQuote{}, ErrUnknownTierRate
	}
	return fees.MerchantCommission(amount, rate)
}

// Service runs merchant operations against Postgres.
type Service struct {
	pool     *pgxpool.Pool
	settings settings.Source
	alerts   alerts.Sink
}

func NewService(pool *pgxpool.Pool, src settings.Source, sink alerts.Sink) *Service {
	return &Service{pool: pool, settings: src, alerts: sink}
}

const accountColumns = `user_id::text, business_name, tier, is_active, total_topups, total_commission, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.UserID, &a.BusinessName, &a.Tier, &a.IsActive, &a.TotalTopups, &a.TotalCommission, &a.CreatedAt)
	if db.IsNoRows(err) {
		return Account{}, ErrNotMerchant
	}
	return a, pkgerrors.Wrap(err, "scan merchant account")
}

func (s *Service) withRate(a Account) Account {
	a.CommissionRate = s.settings.Current().Fees.MerchantTiers[a.Tier]
	return a
}

func (s *Service) Account(ctx context.Context, userID string) (Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM merchant_accounts WHERE user_id = $1`, userID))
	if err != nil {
		return Account{}, err
	}
	return s.withRate(a), nil
}

// TopUp credits a customer found by phone. The merchant's wallet pays amount
// and earns the commission; the customer's cash markup never enters the ledger.
func (s *Service) TopUp(ctx context.Context, merchantID, customerPhone string, amount decimal.Decimal) (Topup, fees.MerchantQuote, error) {
	var (
		t Topup
		q fees.MerchantQuote
	)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		a, err := scanAccount(tx.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM merchant_accounts WHERE user_id = $1 FOR UPDATE`, merchantID))
		if err != nil {
			return err
		}
		if !a.IsActive {
			return ErrInactive
		}
		q, err = Quote(a.Tier, amount, s.settings.Current().Fees.MerchantTiers)
		if err != nil {
			return err
		}

		customer, err := wallet.FindRecipient(ctx, tx, "", strings.TrimSpace(customerPhone))
		if errors.Is(err, wallet.ErrRecipientNotFound) {
			return ErrCustomerNotFound
		}
		if err != nil {
			return err
		}
		if customer == merchantID {
			return ErrSelfTopup
		}
		if err := wallet.Lock(ctx, tx, merchantID, customer); err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO merchant_topups (merchant_id, customer_id, amount, commission, customer_pays)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id::text, created_at`,
			merchantID, customer, q.Amount, q.Commission, q.CustomerPays,
		).Scan(&t.ID, &t.CreatedAt)
		if err != nil {
			return pkgerrors.Wrap(err, "insert merchant topup")
		}
		t.MerchantID, t.CustomerID = merchantID, customer
		t.Amount, t.Commission, t.CustomerPays = q.Amount, q.Commission, q.CustomerPays

		if err := wallet.Debit(ctx, tx, merchantID, q.WalletDebit, wallet.Entry{Type: wallet.TxMerchantTopup, Reference: t.ID, Description: "top-up for " + customerPhone}); err != nil {
			return err
		}
		if err := wallet.Credit(ctx, tx, customer, q.Amount, wallet.Entry{Type: wallet.TxMerchantTopup, Reference: t.ID, Description: a.BusinessName}); err != nil {
			return err
		}
		if q.Commission.IsPositive() {
			if err := wallet.Credit(ctx, tx, merchantID, q.Commission, wallet.Entry{Type: wallet.TxMerchantCredit, Reference: t.ID}); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx,
			`UPDATE merchant_accounts SET total_topups = total_topups + $2, total_commission = total_commission + $3
			 WHERE user_id = $1`, merchantID, q.Amount, q.Commission); err != nil {
			return pkgerrors.Wrap(err, "update merchant totals")
		}
		return alerts.CreateNotification(ctx, tx, alerts.Notification{
			UserID:    customer,
			Type:      "merchant:topup",
			Title:     "Wallet topped up",
			Body:      a.BusinessName + " added " + q.Amount.StringFixed(2) + " DZD to your wallet",
			Reference: t.ID,
		})
	})
	if err != nil {
		return Topup{}, fees.MerchantQuote{}, err
	}

	s.alerts.Enqueue(ctx, "merchant_topup", t)
	logger.Info().Str(logging.USER, merchantID).Str("customer", t.CustomerID).Str("amount", t.Amount.String()).Msg("merchant top-up")
	return t, q, nil
}

func (s *Service) History(ctx context.Context, merchantID string, limit int) ([]Topup, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, merchant_id::text, customer_id::text, amount, commission, customer_pays, created_at
		 FROM merchant_topups WHERE merchant_id = $1 ORDER BY created_at DESC LIMIT $2`, merchantID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list merchant topups")
	}
	defer rows.Close()
	out := []Topup{}
	for rows.Next() {
		var t Topup
		if err := rows.Scan(&t.ID, &t.MerchantID, &t.CustomerID, &t.Amount, &t.Commission, &t.CustomerPays, &t.CreatedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "scan merchant topup")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Promote opens (or updates) a merchant account and gives the profile the merchant role.
func (s *Service) Promote(ctx context.Context, userID, businessName string, tier fees.Tier) (Account, error) {
	if !tier.Valid() {
		return Account{}, ErrInvalidTier
	}
	var a Account
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE profiles SET role = 'merchant' WHERE id = $1 AND role <> 'admin'`, userID)
		if err != nil {
			return pkgerrors.Wrap(err, "promote profile")
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)`, userID).Scan(&exists); err != nil {
				return pkgerrors.Wrap(err, "check profile")
			}
			if !exists {
				return ErrCustomerNotFound
			}
		}
		a, err = scanAccount(tx.QueryRow(ctx,
			`INSERT INTO merchant_accounts (user_id, business_name, tier) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id) DO UPDATE SET business_name = EXCLUDED.business_name, tier = EXCLUDED.tier, is_active = TRUE
			 RETURNING `+accountColumns, userID, businessName, string(tier)))
		return err
	})
	if err != nil {
		return Account{}, err
	}
	logger.Info().Str(logging.USER, userID).Str("tier", string(tier)).Msg("merchant promoted")
	return s.withRate(a), nil
}

// SetActive enables or disables a merchant account.
func (s *Service) SetActive(ctx context.Context, userID string, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE merchant_accounts SET is_active = $2 WHERE user_id = $1`, userID, active)
	if err != nil {
		return pkgerrors.Wrap(err, "set merchant active")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotMerchant
	}
	return nil
}
