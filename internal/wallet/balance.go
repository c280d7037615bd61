package wallet

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	pkgerrors "github.com/pkg/errors"

	"github.com/opay-dz/opay/internal/alerts"
	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/realtime"
	"github.com/opay-dz/opay/internal/settings"
)

var logger = logging.NewPackageLogger("wallet")

// Handler serves the caller's wallet.
type Handler struct {
	pool     *pgxpool.Pool
	settings settings.Source
	alerts   alerts.Sink
	bus      realtime.Bus
}

func NewHandler(pool *pgxpool.Pool, src settings.Source, sink alerts.Sink, bus realtime.Bus) *Handler {
	return &Handler{pool: pool, settings: src, alerts: sink, bus: bus}
}

// reviewPending tells admin sockets a new request is waiting.
func (h *Handler) reviewPending(kind, id string) {
	realtime.Publish(h.bus, realtime.AdminTopic, realtime.ReviewPending, map[string]string{"kind": kind, "id": id})
}

// GetBalance reads a wallet without locking it.
func GetBalance(ctx context.Context, q db.Querier, userID string) (Balance, error) {
	var b Balance
	err := q.QueryRow(ctx,
		`SELECT user_id::text, balance, escrow, updated_at FROM user_balances WHERE user_id = $1`, userID,
	).Scan(&b.UserID, &b.Balance, &b.Escrow, &b.UpdatedAt)
	if db.IsNoRows(err) {
		return Balance{}, ErrWalletNotFound
	}
	return b, pkgerrors.Wrap(err, "read balance")
}

// Balance returns the authenticated user's wallet balance
func (h *Handler) Balance(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	b, err := GetBalance(c.Request().Context(), h.pool, userID)
	if err == ErrWalletNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "wallet not found"})
	}
	if err != nil {
		logger.Error().Err(err).Str(logging.USER, userID).Msg("balance lookup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch wallet balance"})
	}
	return c.JSON(http.StatusOK, b)
}
