package messaging

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opay-dz/opay/internal/p2p"
	"github.com/opay-dz/opay/internal/realtime"
)

// Orders is the part of the P2P service the chat needs.
type Orders interface {
	GetOrder(ctx context.Context, orderID string, viewer p2p.Actor) (p2p.Order, error)
	SendMessage(ctx context.Context, orderID, senderID, text string) (p2p.Message, error)
	ListMessages(ctx context.Context, orderID string, viewer p2p.Actor) ([]p2p.Message, error)
}

// Handler serves order chat over REST and websockets.
type Handler struct {
	hub    *Hub
	orders Orders
}

func NewHandler(hub *Hub, orders Orders) *Handler {
	return &Handler{hub: hub, orders: orders}
}

func viewer(c echo.Context) (p2p.Actor, bool) {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return p2p.Actor{}, false
	}
	role, _ := c.Get("role").(string)
	return p2p.Actor{ID: userID, Admin: role == "admin"}, true
}

func fail(c echo.Context, err error) error {
	status := p2p.StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Path()).Msg("chat request failed")
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

// SendMessage - buyer or seller posts to an order thread
// POST /p2p/orders/:id/messages {message}
func (h *Handler) SendMessage(c echo.Context) error {
	me, ok := viewer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Message string `json:"message" validate:"required,max=2000"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	m, err := h.orders.SendMessage(c.Request().Context(), c.Param("id"), me.ID, body.Message)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// ListMessages - the conversation for an order, oldest first.
// GET /p2p/orders/:id/messages?since=RFC3339
func (h *Handler) ListMessages(c echo.Context) error {
	me, ok := viewer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var since time.Time
	if s := c.QueryParam("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid since timestamp, use RFC3339"})
		}
		since = t
	}

	msgs, err := h.orders.ListMessages(c.Request().Context(), c.Param("id"), me)
	if err != nil {
		return fail(c, err)
	}
	out := make([]p2p.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.CreatedAt.After(since) {
			out = append(out, m)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": out})
}

// OrderWS streams message_new and order_status events of one order to a participant.
// GET /ws/orders/:id
func (h *Handler) OrderWS(c echo.Context) error {
	me, ok := viewer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")
	if _, err := h.orders.GetOrder(c.Request().Context(), orderID, me); err != nil {
		return fail(c, err)
	}
	return h.hub.serve(c, realtime.OrderTopic(orderID))
}

// AdminWS streams review_pending events. Mount behind the admin guard.
// GET /ws/admin
func (h *Handler) AdminWS(c echo.Context) error {
	return h.hub.serve(c, realtime.AdminTopic)
}
