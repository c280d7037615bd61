package wallet

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/alerts"
	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/logging"
)

var ErrRecipientNotFound = errors.New("recipient not found")

type TransferRequest struct {
	RecipientID    string          `json:"recipient_id"`
	RecipientPhone string          `json:"recipient_phone"`
	Amount         decimal.Decimal `json:"amount"`
	Note           string          `json:"note" validate:"max=200"`
}

// FindRecipient resolves a user by id or phone. Banned users cannot receive.
func FindRecipient(ctx context.Context, q db.Querier, id, phone string) (string, error) {
	var (
		userID string
		banned bool
	)
	err := q.QueryRow(ctx,
		`SELECT id::text, is_banned FROM profiles
		 WHERE ($1 <> '' AND id::text = $1) OR ($1 = '' AND phone = $2)
		 LIMIT 1`, id, phone,
	).Scan(&userID, &banned)
	if db.IsNoRows(err) || banned {
		return "", ErrRecipientNotFound
	}
	return userID, pkgerrors.Wrap(err, "find recipient")
}

// Transfer sends money to another user. The sender pays amount plus the transfer fee.
// POST /wallet/transfer
func (h *Handler) Transfer(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req TransferRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	req.RecipientID = strings.TrimSpace(req.RecipientID)
	req.RecipientPhone = strings.TrimSpace(req.RecipientPhone)
	if req.RecipientID == "" && req.RecipientPhone == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "recipient_id or recipient_phone is required"})
	}

	ctx := c.Request().Context()
	recipient, err := FindRecipient(ctx, h.pool, req.RecipientID, req.RecipientPhone)
	if errors.Is(err, ErrRecipientNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	}
	if err != nil {
		logger.Error().Err(err).Msg("recipient lookup")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not resolve recipient"})
	}

	plan, err := PlanTransfer(uid, recipient, req.Amount, h.settings.Current().Fees.Transfer)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	var ref string
	err = db.WithTx(ctx, h.pool, func(tx pgx.Tx) error {
		if err := Lock(ctx, tx, uid, recipient); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `SELECT gen_random_uuid()::text`).Scan(&ref); err != nil {
			return pkgerrors.Wrap(err, "reference")
		}
		out := Entry{Type: TxTransferOut, Reference: ref, Description: req.Note}
		if err := Debit(ctx, tx, uid, plan.Amount, out); err != nil {
			return err
		}
		if plan.Fee.IsPositive() {
			if err := Debit(ctx, tx, uid, plan.Fee, Entry{Type: TxTransferFee, Reference: ref}); err != nil {
				return err
			}
		}
		if err := Credit(ctx, tx, recipient, plan.Amount, Entry{Type: TxTransferIn, Reference: ref, Description: req.Note}); err != nil {
			return err
		}
		return alerts.CreateNotification(ctx, tx, alerts.Notification{
			UserID:    recipient,
			Type:      "wallet:transfer_in",
			Title:     "Money received",
			Body:      "You received " + plan.Amount.StringFixed(2) + " DZD",
			Reference: ref,
		})
	})
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "insufficient balance", "required": plan.Total})
	case errors.Is(err, ErrWalletNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case err != nil:
		logger.Error().Err(err).Str(logging.USER, uid).Msg("transfer failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transfer failed"})
	}

	h.alerts.Enqueue(ctx, "transfer", map[string]any{
		"sender_id": uid, "recipient_id": recipient, "amount": plan.Amount, "fee": plan.Fee, "reference": ref,
	})
	logger.Info().Str(logging.USER, uid).Str("recipient", recipient).Str("amount", plan.Amount.String()).Msg("transfer completed")
	return c.JSON(http.StatusOK, echo.Map{
		"reference": ref,
		"amount":    plan.Amount,
		"fee":       plan.Fee,
		"total":     plan.Total,
		"message":   "Transfer successful",
	})
}
