package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opay-dz/opay/internal/middleware"
	"github.com/opay-dz/opay/internal/referral"
)

type fakeBanner struct {
	calls  []string
	result error
}

func (f *fakeBanner) BanUser(_ context.Context, adminID, userID, reason string) error {
	f.calls = append(f.calls, adminID+"/"+userID+"/"+reason)
	return f.result
}

func ban(t *testing.T, h *Handler, admin, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Validator = middleware.NewValidator()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(target)
	c.Set("user_id", admin)
	require.NoError(t, h.BanUser(c))
	return rec
}

func TestBanUser(t *testing.T) {
	b := &fakeBanner{}
	h := NewHandler(nil, nil, b)

	rec := ban(t, h, "a-1", "u-1", `{"reason":"shared phone farm"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a-1/u-1/shared phone farm"}, b.calls)

	assert.Equal(t, http.StatusBadRequest, ban(t, h, "a-1", "u-1", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, ban(t, h, "a-1", "a-1", `{"reason":"x"}`).Code)

	b.result = referral.ErrUserNotFound
	assert.Equal(t, http.StatusNotFound, ban(t, h, "a-1", "u-2", `{"reason":"x"}`).Code)
	assert.Len(t, b.calls, 2)
}

func TestPageBounds(t *testing.T) {
	e := echo.New()
	for _, tt := range []struct {
		query         string
		limit, offset int
	}{
		{"", 50, 0},
		{"?limit=10&offset=20", 10, 20},
		{"?limit=100000&offset=-3", 50, 0},
	} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil), httptest.NewRecorder())
		limit, offset := page(c)
		assert.Equal(t, tt.limit, limit, tt.query)
		assert.Equal(t, tt.offset, offset, tt.query)
	}
}
