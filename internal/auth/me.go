package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/logging"
)

// Account is the caller's own view of their profile and wallet.
type Account struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	Role         string          `json:"role"`
	IsVerified   bool            `json:"is_verified"`
	ReferralCode *string         `json:"referral_code"`
	Balance      decimal.Decimal `json:"balance"`
	Escrow       decimal.Decimal `json:"escrow"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Me returns the currently authenticated user's account
// GET /auth/me
func (h *Handler) Me(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var a Account
	err := h.pool.QueryRow(c.Request().Context(), `
		SELECT p.id::text, p.name, p.email, COALESCE(p.phone, ''), p.role, p.is_verified, p.referral_code,
		       COALESCE(b.balance, 0), COALESCE(b.escrow, 0), p.created_at
		FROM profiles p
		LEFT JOIN user_balances b ON b.user_id = p.id
		WHERE p.id = $1
	`, userID).Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.Role, &a.IsVerified, &a.ReferralCode,
		&a.Balance, &a.Escrow, &a.CreatedAt)
	if db.IsNoRows(err) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	if err != nil {
		logger.Error().Err(err).Str(logging.USER, userID).Msg("me lookup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load account"})
	}
	return c.JSON(http.StatusOK, a)
}
