package p2p

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opay-dz/opay/internal/middleware"
)

func serve(t *testing.T, h *Handler, method, path, body, userID, role string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Validator = middleware.NewValidator()
	identify := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", userID)
			c.Set("role", role)
			return next(c)
		}
	}
	h.Register(e.Group("", identify), e.Group("/admin", identify))

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestOrderEndpoints(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	body := `{"ad_id":"` + f.ad.ID + `","amount":"100"}`

	rec := serve(t, h, http.MethodPost, "/p2p/orders", body, "b", "user", "Idempotency-Key", "tap-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, StatusEscrowLocked, o.Status)
	assert.EqualValues(t, 900, o.RemainingSeconds)

	rec = serve(t, h, http.MethodPost, "/p2p/orders", body, "b", "user", "Idempotency-Key", "tap-1")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, http.MethodPost, "/p2p/orders/"+o.ID+"/release", "", "s", "user")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(t, h, http.MethodGet, "/p2p/orders/"+o.ID, "", "x", "user")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, h, http.MethodGet, "/p2p/orders/missing", "", "b", "user")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, h, http.MethodPost, "/p2p/orders/"+o.ID+"/mark-paid", "", "b", "user")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, http.MethodPost, "/p2p/orders/"+o.ID+"/dispute", `{"reason":"no answer"}`, "b", "user")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, http.MethodGet, "/admin/p2p/disputes", "", "admin", "admin")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), o.ID)

	rec = serve(t, h, http.MethodPost, "/admin/p2p/orders/"+o.ID+"/resolve", `{"resolution":"refund"}`, "admin", "admin")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, d("1000").Equal(f.store.wallet("s").available))
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)

	rec := serve(t, h, http.MethodPost, "/p2p/orders", `{"amount":"100"}`, "b", "user")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ad_id")

	rec = serve(t, h, http.MethodPost, "/p2p/orders", `{"ad_id":"`+f.ad.ID+`","amount":"5"}`, "b", "user")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.store.fund("s", 10)
	rec = serve(t, h, http.MethodPost, "/p2p/orders", `{"ad_id":"`+f.ad.ID+`","amount":"100"}`, "b", "user")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(t, h, http.MethodPost, "/p2p/orders", `{"ad_id":"`+f.ad.ID+`","amount":"100"}`, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAdEndpoint(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)

	rec := serve(t, h, http.MethodPost, "/p2p/ads",
		`{"ad_type":"buy","amount":"300","min_amount":"10","max_amount":"100","price_per_unit":"238","payment_methods":["ccp"]}`,
		"b", "user")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(t, h, http.MethodPost, "/p2p/ads",
		`{"ad_type":"swap","amount":"300","min_amount":"10","max_amount":"100","price_per_unit":"238","payment_methods":["ccp"]}`,
		"b", "user")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, http.MethodGet, "/p2p/ads?type=buy", "", "b", "user")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ad_type":"buy"`)
}
