// Package betting verifies the sportsbook accounts users fund through the
// wallet. Deposits and withdrawals themselves are approval kinds.
package betting

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"

	"github.com/opay-dz/opay/internal/logging"
)

var logger = logging.NewPackageLogger("betting")

var (
	ErrUnsupportedPlatform = errors.New("unsupported betting platform")
	ErrInvalidAccountID    = errors.New("account id must be 6 to 12 digits")
)

// Platforms accepted by ValidateAccount.
var Platforms = []string{"1xbet", "melbet", "linebet", "betwinner", "22bet", "mostbet"}

var accountID = regexp.MustCompile(`^\d{6,12}$`)

type Account struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Platform   string    `json:"platform"`
	AccountID  string    `json:"account_id"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidateAccount normalises and checks a platform/account pair.
func ValidateAccount(platform, id string) (string, string, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	id = strings.TrimSpace(id)
	supported := false
	for _, p := range Platforms {
		if p == platform {
			supported = true
			break
		}
	}
	if !supported {
		return "", "", ErrUnsupportedPlatform
	}
	if !accountID.MatchString(id) {
		return "", "", ErrInvalidAccountID
	}
	return platform, id, nil
}

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Verify validates the account and upserts it as verified for userID.
func (s *Service) Verify(ctx context.Context, userID, platform, id string) (Account, error) {
	platform, id, err := ValidateAccount(platform, id)
	if err != nil {
		return Account{}, err
	}
	a := Account{UserID: userID, Platform: platform, AccountID: id, IsVerified: true}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO betting_accounts (user_id, platform, account_id, is_verified) VALUES ($1, $2, $3, TRUE)
		 ON CONFLICT (user_id, platform, account_id) DO UPDATE SET is_verified = TRUE
		 RETURNING id::text, created_at`, userID, platform, id,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return Account{}, pkgerrors.Wrap(err, "upsert betting account")
	}
	logger.Info().Str(logging.USER, userID).Str("platform", platform).Msg("betting account verified")
	return a, nil
}

func (s *Service) Accounts(ctx context.Context, userID string) ([]Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, user_id::text, platform, account_id, is_verified, created_at
		 FROM betting_accounts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list betting accounts")
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Account])
}
