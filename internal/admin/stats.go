package admin

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/opay-dz/opay/internal/logging"
)

var logger = logging.NewPackageLogger("admin")

// Pending counts requests waiting for review, per kind.
type Pending interface {
	PendingCounts(ctx context.Context) (map[string]int, error)
}

// Banner bans a profile and voids what it earned through referrals.
type Banner interface {
	BanUser(ctx context.Context, adminID, userID, reason string) error
}

type Handler struct {
	pool    *pgxpool.Pool
	pending Pending
	banner  Banner
}

func NewHandler(pool *pgxpool.Pool, pending Pending, banner Banner) *Handler {
	return &Handler{pool: pool, pending: pending, banner: banner}
}

type Stats struct {
	Users          int             `json:"users"`
	Banned         int             `json:"banned"`
	Verified       int             `json:"verified"`
	Merchants      int             `json:"merchants"`
	TotalBalance   decimal.Decimal `json:"total_balance"`
	TotalEscrow    decimal.Decimal `json:"total_escrow"`
	ActiveAds      int             `json:"active_ads"`
	OpenOrders     int             `json:"open_orders"`
	DisputedOrders int             `json:"disputed_orders"`
	Pending        map[string]int  `json:"pending"`
}

// GET /admin/stats
func (h *Handler) Stats(c echo.Context) error {
	var st Stats
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() error {
		return h.pool.QueryRow(ctx, `
			SELECT COUNT(*),
			       COUNT(*) FILTER (WHERE is_banned),
			       COUNT(*) FILTER (WHERE is_verified),
			       COUNT(*) FILTER (WHERE role = 'merchant')
			FROM profiles`).Scan(&st.Users, &st.Banned, &st.Verified, &st.Merchants)
	})
	g.Go(func() error {
		return h.pool.QueryRow(ctx,
			`SELECT COALESCE(SUM(balance), 0), COALESCE(SUM(escrow), 0) FROM user_balances`).
			Scan(&st.TotalBalance, &st.TotalEscrow)
	})
	g.Go(func() error {
		return h.pool.QueryRow(ctx, `
			SELECT (SELECT COUNT(*) FROM p2p_ads WHERE is_active),
			       COUNT(*) FILTER (WHERE status IN ('escrow_locked','payment_sent','payment_confirmed')),
			       COUNT(*) FILTER (WHERE status = 'disputed')
			FROM p2p_orders`).Scan(&st.ActiveAds, &st.OpenOrders, &st.DisputedOrders)
	})
	g.Go(func() error {
		counts, err := h.pending.PendingCounts(ctx)
		st.Pending = counts
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("stats query failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load stats"})
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Register(admin *echo.Group) {
	admin.GET("/stats", h.Stats)
	admin.GET("/users", h.ListUsers)
	admin.POST("/users/:id/ban", h.BanUser)
	admin.POST("/users/:id/unban", h.UnbanUser)
	admin.GET("/wallets", h.ListWallets)
}
