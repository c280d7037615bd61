package user

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/p2p"
)

var logger = logging.NewPackageLogger("user")

// Traders reads P2P reputation.
type Traders interface {
	TraderProfile(ctx context.Context, userID string) (p2p.TraderProfile, error)
}

type Handler struct {
	pool    *pgxpool.Pool
	traders Traders
}

func NewHandler(pool *pgxpool.Pool, traders Traders) *Handler {
	return &Handler{pool: pool, traders: traders}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/users/:id/profile", h.GetPublicProfile)
	g.PATCH("/user/profile", h.UpdateProfile)
}
