package user

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/opay-dz/opay/internal/middleware"
)

func TestUpdateProfileRejectsBadInput(t *testing.T) {
	h := NewHandler(nil, nil)
	tests := []struct {
		name string
		body string
		user string
		want int
	}{
		{"needs auth", `{"name":"A"}`, "", http.StatusUnauthorized},
		{"empty update", `{"name":"  "}`, "u-1", http.StatusBadRequest},
		{"phone shape", `{"phone":"12ab"}`, "u-1", http.StatusBadRequest},
		{"malformed", `{`, "u-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Validator = middleware.NewValidator()
			req := httptest.NewRequest(http.MethodPatch, "/user/profile", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			if tt.user != "" {
				c.Set("user_id", tt.user)
			}
			_ = h.UpdateProfile(c)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
