package betting

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Accounts - GET /betting/accounts
func (h *Handler) Accounts(c echo.Context) error {
	uid, _ := c.Get("user_id").(string)
	items, err := h.svc.Accounts(c.Request().Context(), uid)
	if err != nil {
		logger.Error().Err(err).Msg("list betting accounts")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list betting accounts"})
	}
	return c.JSON(http.StatusOK, echo.Map{"accounts": items, "platforms": Platforms})
}

// Verify - POST /betting/accounts {platform, account_id}
func (h *Handler) Verify(c echo.Context) error {
	uid, _ := c.Get("user_id").(string)
	var req struct {
		Platform  string `json:"platform"`
		AccountID string `json:"account_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	a, err := h.svc.Verify(c.Request().Context(), uid, req.Platform, req.AccountID)
	switch {
	case errors.Is(err, ErrUnsupportedPlatform), errors.Is(err, ErrInvalidAccountID):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case err != nil:
		logger.Error().Err(err).Msg("verify betting account")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to verify account"})
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/betting/accounts", h.Accounts)
	g.POST("/betting/accounts", h.Verify)
}
