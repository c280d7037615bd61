package telegram

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type notifyRequest struct {
	Type   string `json:"type" validate:"required"`
	Record Record `json:"record"`
}

// Handler exposes the relay as the telegram-notify function.
type Handler struct {
	relay *Relay
}

func NewHandler(relay *Relay) *Handler {
	return &Handler{relay: relay}
}

// POST /functions/telegram-notify
func (h *Handler) Notify(c echo.Context) error {
	var req notifyRequest
	if err := c.Bind(&req); err != nil || req.Type == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "type is required"})
	}
	if req.Record == nil {
		req.Record = Record{}
	}

	res, err := h.relay.Notify(c.Request().Context(), req.Type, req.Record)
	if err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{
			"success": false,
			"sent":    res.Sent,
			"failed":  res.Failed,
			"error":   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, res)
}
