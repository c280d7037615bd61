package giftcard

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Redeem - POST /gift-cards/redeem {code}
func (h *Handler) Redeem(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req struct {
		Code string `json:"code" validate:"required,max=64"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	res, err := h.svc.Redeem(c.Request().Context(), uid, req.Code)
	switch {
	case errors.Is(err, ErrLocked):
		return c.JSON(http.StatusTooManyRequests, echo.Map{
			"error": err.Error(), "locked_until": res.LockedUntil, "remaining_seconds": res.RemainingSeconds,
		})
	case errors.Is(err, ErrInvalidCode):
		body := echo.Map{"error": err.Error()}
		if res.LockedUntil != nil {
			body["locked_until"] = res.LockedUntil
			body["remaining_seconds"] = res.RemainingSeconds
		} else {
			body["attempts_remaining"] = res.AttemptsRemaining
		}
		return c.JSON(http.StatusBadRequest, body)
	case err != nil:
		logger.Error().Err(err).Msg("redeem gift card")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to redeem gift card"})
	}
	return c.JSON(http.StatusOK, echo.Map{"amount": res.Amount, "message": "Gift card redeemed"})
}

// CreateBatch - POST /admin/gift-cards {amount, count}
func (h *Handler) CreateBatch(c echo.Context) error {
	adminID, _ := c.Get("user_id").(string)
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Count  int             `json:"count" validate:"gte=1,lte=500"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	cards, err := h.svc.CreateBatch(c.Request().Context(), adminID, req.Amount, req.Count)
	if errors.Is(err, ErrInvalidBatch) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err != nil {
		logger.Error().Err(err).Msg("create gift cards")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create gift cards"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"cards": cards})
}

// List - GET /admin/gift-cards?status=
func (h *Handler) List(c echo.Context) error {
	cards, err := h.svc.List(c.Request().Context(), c.QueryParam("status"), 500)
	if err != nil {
		logger.Error().Err(err).Msg("list gift cards")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list gift cards"})
	}
	return c.JSON(http.StatusOK, echo.Map{"cards": cards})
}

// Disable - POST /admin/gift-cards/:id/disable
func (h *Handler) Disable(c echo.Context) error {
	err := h.svc.Disable(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrInvalidCode) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "active gift card not found"})
	}
	if err != nil {
		logger.Error().Err(err).Msg("disable gift card")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to disable gift card"})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Register(g, admin *echo.Group) {
	g.POST("/gift-cards/redeem", h.Redeem)

	admin.POST("/gift-cards", h.CreateBatch)
	admin.GET("/gift-cards", h.List)
	admin.POST("/gift-cards/:id/disable", h.Disable)
}
