package wallet

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/db"
)

var errNotPending = errors.New("withdrawal is no longer pending")

// CancelWithdrawal lets the owner withdraw a request an admin has not reviewed yet.
// The hold is refunded.
// POST /wallet/withdrawals/:id/cancel
func (h *Handler) CancelWithdrawal(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id := c.Param("id")
	ctx := c.Request().Context()

	err := db.WithTx(ctx, h.pool, func(tx pgx.Tx) error {
		var (
			amount decimal.Decimal
			status string
		)
		err := tx.QueryRow(ctx,
			`SELECT amount, status FROM withdrawals WHERE id::text = $1 AND user_id = $2 FOR UPDATE`, id, uid,
		).Scan(&amount, &status)
		if err != nil {
			return err
		}
		if status != "pending" {
			return errNotPending
		}
		if err := Lock(ctx, tx, uid); err != nil {
			return err
		}
		if err := RefundHold(ctx, tx, uid, amount, Entry{Type: TxWithdrawal, Reference: id, Description: "withdrawal cancelled"}); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE withdrawals SET status = 'rejected', admin_note = 'cancelled by user', reviewed_at = NOW() WHERE id::text = $1`, id)
		return pkgerrors.Wrap(err, "cancel withdrawal")
	})
	switch {
	case db.IsNoRows(err):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "withdrawal not found"})
	case errors.Is(err, errNotPending):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case err != nil:
		logger.Error().Err(err).Str("withdrawal", id).Msg("cancel withdrawal")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not cancel withdrawal"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "withdrawal cancelled and funds released"})
}

// Register mounts the user routes on g and the admin routes on admin.
func (h *Handler) Register(g, admin *echo.Group) {
	g.GET("/wallet/balance", h.Balance)
	g.GET("/wallet/transactions", h.Transactions)
	g.POST("/wallet/transfer", h.Transfer)
	g.POST("/wallet/deposits", h.Deposit)
	g.POST("/wallet/withdrawals", h.Withdraw)
	g.POST("/wallet/withdrawals/:id/cancel", h.CancelWithdrawal)

	admin.GET("/transactions", h.AdminTransactions)
	admin.GET("/transactions/user/:id", h.AdminUserTransactions)
	admin.GET("/wallets/:id", h.AdminBalance)
}
