package user

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/p2p"
)

var errUserNotFound = errors.New("user not found")

// GET /users/:id/profile
func (h *Handler) GetPublicProfile(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing user id"})
	}

	var (
		profile PublicProfile
		trader  p2p.TraderProfile
		traded  bool
	)
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() error {
		err := h.pool.QueryRow(ctx, `
			SELECT id::text, name, role, is_verified, created_at
			FROM profiles
			WHERE id = $1 AND NOT is_banned
		`, userID).Scan(&profile.ID, &profile.Name, &profile.Role, &profile.IsVerified, &profile.CreatedAt)
		if db.IsNoRows(err) {
			return errUserNotFound
		}
		return err
	})
	g.Go(func() error {
		p, err := h.traders.TraderProfile(ctx, userID)
		if errors.Is(err, p2p.ErrNotFound) {
			return nil
		}
		trader, traded = p, err == nil
		return err
	})

	err := g.Wait()
	if errors.Is(err, errUserNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	}
	if err != nil {
		logger.Error().Err(err).Str("profile", userID).Msg("public profile lookup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch user"})
	}
	if traded {
		profile.Trader = &trader
	}
	return c.JSON(http.StatusOK, profile)
}
