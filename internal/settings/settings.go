package settings

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/fees"
	"github.com/opay-dz/opay/internal/logging"
)

var logger = logging.NewPackageLogger("settings")

// platform_settings keys
const (
	KeyFees           = "fees"
	KeyReferralReward = "referral_reward"
	KeyPaymentWindow  = "p2p_payment_window_minutes"
	KeyExchangeRate   = "usd_exchange_rate"
)

// Settings is the typed view of platform_settings.
type Settings struct {
	Fees           fees.Config     `json:"fees"`
	ReferralReward decimal.Decimal `json:"referral_reward"`
	PaymentWindow  time.Duration   `json:"payment_window"`
	ExchangeRate   decimal.Decimal `json:"usd_exchange_rate"`
}

// Defaults returns the settings used when the table is empty.
func Defaults() Settings {
	return Settings{
		Fees:           fees.DefaultConfig(),
		ReferralReward: decimal.NewFromInt(100),
		PaymentWindow:  15 * time.Minute,
		ExchangeRate:   decimal.NewFromInt(135),
	}
}

// Apply overlays one platform_settings row onto s. Fee overrides are merged
// field by field so a partial JSON object keeps the remaining defaults.
func Apply(s *Settings, key string, raw []byte) error {
	switch key {
	case KeyFees:
		return errors.Wrap(json.Unmarshal(raw, &s.Fees), "decode fees")
	case KeyReferralReward:
		return errors.Wrap(json.Unmarshal(raw, &s.ReferralReward), "decode referral reward")
	case KeyExchangeRate:
		return errors.Wrap(json.Unmarshal(raw, &s.ExchangeRate), "decode exchange rate")
	case KeyPaymentWindow:
		var minutes int
		if err := json.Unmarshal(raw, &minutes); err != nil {
			return errors.Wrap(err, "decode payment window")
		}
		if minutes > 0 {
			s.PaymentWindow = time.Duration(minutes) * time.Minute
		}
		return nil
	default:
		return nil
	}
}

// Source supplies the current settings.
type Source interface {
	Current() Settings
}

// Static is a Source that never changes.
type Static Settings

func (s Static) Current() Settings { return Settings(s) }

// Store caches platform_settings and reloads them on demand.
type Store struct {
	pool interface {
		Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	}
	mu  sync.RWMutex
	cur Settings
}

// NewStore returns a store holding the defaults until Reload succeeds.
func NewStore(pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}) *Store {
	return &Store{pool: pool, cur: Defaults()}
}

func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Reload reads every platform_settings row. Rows that fail to decode are logged and skipped.
func (s *Store) Reload(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `SELECT key, value::text FROM platform_settings`)
	if err != nil {
		return errors.Wrap(err, "query platform_settings")
	}
	defer rows.Close()

	next := Defaults()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return errors.Wrap(err, "scan platform_settings")
		}
		if err := Apply(&next, key, []byte(value)); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("ignoring invalid platform setting")
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate platform_settings")
	}

	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	return nil
}
