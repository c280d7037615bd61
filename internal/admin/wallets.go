package admin

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type AdminWallet struct {
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Balance   decimal.Decimal `json:"balance"`
	Escrow    decimal.Decimal `json:"escrow"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// GET /admin/wallets, largest balances first
func (h *Handler) ListWallets(c echo.Context) error {
	limit, offset := page(c)
	rows, err := h.pool.Query(c.Request().Context(), `
		SELECT b.user_id::text, p.name, p.email, b.balance, b.escrow, b.updated_at
		FROM user_balances b
		JOIN profiles p ON p.id = b.user_id
		ORDER BY b.balance + b.escrow DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		logger.Error().Err(err).Msg("list wallets failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch wallets"})
	}
	defer rows.Close()

	wallets := []AdminWallet{}
	for rows.Next() {
		var w AdminWallet
		if err := rows.Scan(&w.UserID, &w.Name, &w.Email, &w.Balance, &w.Escrow, &w.UpdatedAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read wallet record"})
		}
		wallets = append(wallets, w)
	}
	return c.JSON(http.StatusOK, echo.Map{"wallets": wallets})
}
