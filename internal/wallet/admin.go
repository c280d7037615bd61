package wallet

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// AdminTransactions returns every ledger line for monitoring
// GET /admin/transactions
func (h *Handler) AdminTransactions(c echo.Context) error {
	limit, offset := page(c)
	txs, err := ListTransactions(c.Request().Context(), h.pool, "", limit, offset)
	if err != nil {
		logger.Error().Err(err).Msg("admin list transactions")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch transactions"})
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}

// AdminUserTransactions returns one user's ledger
// GET /admin/transactions/user/:id
func (h *Handler) AdminUserTransactions(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user ID is required"})
	}
	limit, offset := page(c)
	txs, err := ListTransactions(c.Request().Context(), h.pool, userID, limit, offset)
	if err != nil {
		logger.Error().Err(err).Str("user", userID).Msg("admin list user transactions")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch user transactions"})
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}

// AdminBalance shows a user's wallet
// GET /admin/wallets/:id
func (h *Handler) AdminBalance(c echo.Context) error {
	b, err := GetBalance(c.Request().Context(), h.pool, c.Param("id"))
	if err == ErrWalletNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "wallet not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch wallet"})
	}
	return c.JSON(http.StatusOK, b)
}
