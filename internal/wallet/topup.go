package wallet

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/fees"
	"github.com/opay-dz/opay/internal/logging"
)

type DepositRequest struct {
	Method   string          `json:"method" validate:"required,oneof=flexy baridimob ccp"`
	Phone    string          `json:"phone"`
	ProofURL string          `json:"proof_url" validate:"omitempty,url"`
	Amount   decimal.Decimal `json:"amount"`
}

func recentFlexy(ctx context.Context, q db.Querier, userID string, since time.Time) ([]fees.FlexyRequest, error) {
	rows, err := q.Query(ctx,
		`SELECT amount, COALESCE(phone, ''), created_at FROM deposits
		 WHERE user_id = $1 AND method = 'flexy' AND created_at >= $2 AND status <> 'rejected'`,
		userID, since)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "recent deposits")
	}
	defer rows.Close()
	var out []fees.FlexyRequest
	for rows.Next() {
		r := fees.FlexyRequest{UserID: userID}
		if err := rows.Scan(&r.Amount, &r.Phone, &r.CreatedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "scan deposit")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Deposit stores a pending deposit request for admin review. Approval credits the net amount.
// POST /wallet/deposits
func (h *Handler) Deposit(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req DepositRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx := c.Request().Context()
	var dep Deposit
	err := db.WithTx(ctx, h.pool, func(tx pgx.Tx) error {
		// serialise deposit requests of one user so the duplicate guard sees them all
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "deposit:"+uid); err != nil {
			return pkgerrors.Wrap(err, "deposit lock")
		}
		now := time.Now()
		recent, err := recentFlexy(ctx, tx, uid, now.Add(-fees.FlexyDuplicateWindow))
		if err != nil {
			return err
		}
		plan, err := PlanDeposit(uid, req.Method, req.Phone, req.ProofURL, req.Amount, h.settings.Current().Fees.Flexy, recent, now)
		if err != nil {
			return err
		}
		dep = Deposit{UserID: uid, Method: plan.Method, Phone: plan.Phone, Amount: plan.Amount, Fee: plan.Fee, CreditAmount: plan.Net, Status: "pending"}
		return tx.QueryRow(ctx,
			`INSERT INTO deposits (user_id, method, phone, amount, fee, credit_amount, details, created_at)
			 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, jsonb_build_object('proof_url', $7::text), $8)
			 RETURNING id::text, created_at`,
			uid, plan.Method, plan.Phone, plan.Amount, plan.Fee, plan.Net, req.ProofURL, now,
		).Scan(&dep.ID, &dep.CreatedAt)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateDeposit) {
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		if errors.Is(err, ErrNonPositive) || errors.Is(err, fees.ErrInvalidPhone) ||
			errors.Is(err, ErrProofRequired) || errors.Is(err, ErrUnknownMethod) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		logger.Error().Err(err).Str(logging.USER, uid).Msg("deposit request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create deposit"})
	}

	h.alerts.Enqueue(ctx, "deposit", dep)
	h.reviewPending("deposit", dep.ID)
	return c.JSON(http.StatusCreated, echo.Map{
		"deposit": dep,
		"message": "Deposit submitted and awaiting review",
	})
}
