package betting

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAccount(t *testing.T) {
	tests := []struct {
		platform, id string
		err          error
	}{
		{"1xbet", "123456", nil},
		{" MelBet ", "123456789012", nil},
		{"1xbet", "12345", ErrInvalidAccountID},
		{"1xbet", "1234567890123", ErrInvalidAccountID},
		{"1xbet", "12ab5678", ErrInvalidAccountID},
		{"pokerstars", "123456", ErrUnsupportedPlatform},
		{"", "123456", ErrUnsupportedPlatform},
	}
	for _, tt := range tests {
		t.Run(tt.platform+"/"+tt.id, func(t *testing.T) {
			_, _, err := ValidateAccount(tt.platform, tt.id)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}

	p, id, err := ValidateAccount(" MelBet ", " 123456 ")
	require.NoError(t, err)
	assert.Equal(t, "melbet", p)
	assert.Equal(t, "123456", id)
}

func TestVerifyRejectsBeforeStore(t *testing.T) {
	h := NewHandler(NewService(nil))
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"platform":"1xbet","account_id":"12"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", "u")
	require.NoError(t, h.Verify(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
