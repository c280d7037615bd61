package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opay-dz/opay/internal/middleware"
	"github.com/opay-dz/opay/internal/p2p"
	"github.com/opay-dz/opay/internal/realtime"
)

type fakeOrders struct {
	bus  realtime.Bus
	msgs []p2p.Message
}

func (f *fakeOrders) GetOrder(_ context.Context, orderID string, v p2p.Actor) (p2p.Order, error) {
	if orderID != "o-1" {
		return p2p.Order{}, p2p.ErrNotFound
	}
	if v.ID != "b" && v.ID != "s" && !v.Admin {
		return p2p.Order{}, p2p.ErrNotParticipant
	}
	return p2p.Order{ID: orderID, BuyerID: "b", SellerID: "s"}, nil
}

func (f *fakeOrders) SendMessage(ctx context.Context, orderID, senderID, text string) (p2p.Message, error) {
	if _, err := f.GetOrder(ctx, orderID, p2p.Actor{ID: senderID}); err != nil {
		return p2p.Message{}, err
	}
	m := p2p.Message{ID: "m", OrderID: orderID, SenderID: senderID, Message: text, CreatedAt: time.Now()}
	f.msgs = append(f.msgs, m)
	realtime.Publish(f.bus, realtime.OrderTopic(orderID), realtime.MessageNew, m)
	return m, nil
}

func (f *fakeOrders) ListMessages(ctx context.Context, orderID string, v p2p.Actor) ([]p2p.Message, error) {
	if _, err := f.GetOrder(ctx, orderID, v); err != nil {
		return nil, err
	}
	return f.msgs, nil
}

func newTestServer(t *testing.T, userID string) (*httptest.Server, *Hub, *fakeOrders) {
	t.Helper()
	bus := realtime.NewLocalBus()
	hub := NewHub(bus, []string{"https://opay.dz"})
	orders := &fakeOrders{bus: bus}
	h := NewHandler(hub, orders)

	e := echo.New()
	e.Validator = middleware.NewValidator()
	g := e.Group("", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", userID)
			return next(c)
		}
	})
	g.GET("/ws/orders/:id", h.OrderWS)
	g.POST("/p2p/orders/:id/messages", h.SendMessage)
	g.GET("/p2p/orders/:id/messages", h.ListMessages)
	g.GET("/ws/admin", h.AdminWS)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, hub, orders
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestOrderSocketReceivesMessages(t *testing.T) {
	srv, hub, _ := newTestServer(t, "b")
	conn := dial(t, srv, "/ws/orders/o-1")
	topic := realtime.OrderTopic("o-1")
	require.Eventually(t, func() bool { return hub.Clients(topic) == 1 }, time.Second, 5*time.Millisecond)

	resp, err := http.Post(srv.URL+"/p2p/orders/o-1/messages", echo.MIMEApplicationJSON, strings.NewReader(`{"message":"paid via CCP"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt realtime.Event
	require.NoError(t, json.Unmarshal(raw, &evt))
	assert.Equal(t, realtime.MessageNew, evt.Type)
	assert.Contains(t, string(evt.Data), "paid via CCP")

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients(topic) == 0 }, time.Second, 5*time.Millisecond)
}

func TestOrderSocketRejectsStrangers(t *testing.T) {
	srv, _, _ := newTestServer(t, "x")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/orders/o-1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOrderSocketChecksOrigin(t *testing.T) {
	srv, _, _ := newTestServer(t, "b")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/orders/o-1"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://opay.dz"}})
	require.NoError(t, err)
	conn.Close()
}

func TestListMessagesSince(t *testing.T) {
	srv, _, orders := newTestServer(t, "s")
	old := time.Now().Add(-time.Hour)
	orders.msgs = []p2p.Message{
		{ID: "1", OrderID: "o-1", Message: "old", CreatedAt: old},
		{ID: "2", OrderID: "o-1", Message: "new", CreatedAt: time.Now()},
	}

	since := old.Add(time.Minute).UTC().Format(time.RFC3339)
	resp, err := http.Get(srv.URL + "/p2p/orders/o-1/messages?since=" + since)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Messages []p2p.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "new", body.Messages[0].Message)
}

func TestSlowClientIsDropped(t *testing.T) {
	r := &room{topic: "t", clients: map[*client]struct{}{}}
	joined := make(chan *client, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		up := newUpgrader(nil)
		ws, err := up.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		cl := newClient(ws)
		r.mu.Lock()
		r.clients[cl] = struct{}{}
		r.mu.Unlock()
		joined <- cl
	}))
	defer server.Close()
	dial(t, server, "/")
	cl := <-joined

	// no write pump drains the buffer
	evt, err := realtime.NewEvent(realtime.ReviewPending, map[string]string{"kind": "deposit"})
	require.NoError(t, err)
	for i := 0; i <= sendBuffer; i++ {
		r.broadcast(evt)
	}
	select {
	case <-cl.closed:
	default:
		t.Fatal("slow client was not closed")
	}
}
