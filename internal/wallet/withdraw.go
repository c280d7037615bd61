package wallet

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/logging"
)

var minWithdrawal = decimal.NewFromInt(500)

type WithdrawRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method" validate:"required,oneof=ccp baridimob"`
	AccountNumber string          `json:"account_number" validate:"required,min=6,max=30"`
	AccountName   string          `json:"account_name" validate:"required,max=100"`
}

// Withdraw holds the amount and queues a withdrawal for admin review.
// Approval consumes the hold, rejection refunds it.
// POST /wallet/withdrawals
func (h *Handler) Withdraw(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized or invalid user"})
	}
	var req WithdrawRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if req.Amount.LessThan(minWithdrawal) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "minimum withdrawal is " + minWithdrawal.String() + " DZD"})
	}

	ctx := c.Request().Context()
	w := Withdrawal{UserID: uid, Amount: req.Amount, Status: "pending", Details: map[string]any{
		"method": req.Method, "account_number": req.AccountNumber, "account_name": req.AccountName,
	}}
	err := db.WithTx(ctx, h.pool, func(tx pgx.Tx) error {
		if err := Lock(ctx, tx, uid); err != nil {
			return err
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO withdrawals (user_id, amount, details) VALUES ($1, $2, $3)
			 RETURNING id::text, created_at`,
			uid, req.Amount, w.Details,
		).Scan(&w.ID, &w.CreatedAt)
		if err != nil {
			return pkgerrors.Wrap(err, "insert withdrawal")
		}
		return Hold(ctx, tx, uid, req.Amount, Entry{Type: TxWithdrawal, Reference: w.ID, Description: "withdrawal pending review"})
	})
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "insufficient balance"})
	case errors.Is(err, ErrWalletNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case err != nil:
		logger.Error().Err(err).Str(logging.USER, uid).Msg("withdrawal request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create withdrawal"})
	}

	h.alerts.Enqueue(ctx, "withdrawal", w)
	h.reviewPending("withdrawal", w.ID)
	return c.JSON(http.StatusCreated, echo.Map{
		"withdrawal": w,
		"message":    "Withdrawal submitted; funds are held until review",
	})
}
