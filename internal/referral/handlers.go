package referral

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opay-dz/opay/internal/wallet"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// StatusFor maps referral errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUserNotFound), errors.Is(err, ErrUnknownCode):
		return http.StatusNotFound
	case errors.Is(err, ErrNoRewards), errors.Is(err, ErrWithdrawalLocked), errors.Is(err, ErrSelfReferral):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrWalletNotFound):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func fail(c echo.Context, err error, op string) error {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("op", op).Msg("referral request failed")
		return c.JSON(status, echo.Map{"error": "failed to " + op})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

// Stats - GET /referrals
func (h *Handler) Stats(c echo.Context) error {
	uid, _ := c.Get("user_id").(string)
	st, err := h.svc.Stats(c.Request().Context(), uid)
	if err != nil {
		return fail(c, err, "load referral stats")
	}
	return c.JSON(http.StatusOK, st)
}

// Withdraw - POST /referrals/withdraw
func (h *Handler) Withdraw(c echo.Context) error {
	uid, _ := c.Get("user_id").(string)
	w, err := h.svc.Withdraw(c.Request().Context(), uid)
	if err != nil {
		return fail(c, err, "withdraw rewards")
	}
	return c.JSON(http.StatusOK, w)
}

// Flagged - GET /admin/referrals/flagged
func (h *Handler) Flagged(c echo.Context) error {
	items, err := h.svc.ListFlagged(c.Request().Context())
	if err != nil {
		return fail(c, err, "list flagged referrals")
	}
	return c.JSON(http.StatusOK, echo.Map{"referrals": items})
}

func (h *Handler) Register(g, admin *echo.Group) {
	g.GET("/referrals", h.Stats)
	g.POST("/referrals/withdraw", h.Withdraw)

	admin.GET("/referrals/flagged", h.Flagged)
}
