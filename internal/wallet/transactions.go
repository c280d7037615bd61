package wallet

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	pkgerrors "github.com/pkg/errors"

	"github.com/opay-dz/opay/internal/db"
)

const maxPage = 200

// ListTransactions returns ledger lines newest first. An empty userID lists every user.
func ListTransactions(ctx context.Context, q db.Querier, userID string, limit, offset int) ([]Transaction, error) {
	rows, err := q.Query(ctx,
		`SELECT id::text, user_id::text, type, amount, status, COALESCE(reference, ''), COALESCE(description, ''), created_at
		 FROM transactions
		 WHERE ($1 = '' OR user_id::text = $1)
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query transactions")
	}
	defer rows.Close()

	txs := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Status, &t.Reference, &t.Description, &t.CreatedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "scan transaction")
		}
		txs = append(txs, t)
	}
	return txs, pkgerrors.Wrap(rows.Err(), "iterate transactions")
}

// page reads ?limit=&offset= with sane bounds.
func page(c echo.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	offset, _ = strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 || limit > maxPage {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Transactions returns the authenticated user's ledger
func (h *Handler) Transactions(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	limit, offset := page(c)
	txs, err := ListTransactions(c.Request().Context(), h.pool, uid, limit, offset)
	if err != nil {
		logger.Error().Err(err).Msg("list transactions")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch transactions"})
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}
