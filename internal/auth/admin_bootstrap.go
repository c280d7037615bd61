package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opay-dz/opay/internal/middleware"
)

type BootstrapAdminRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Secret string `json:"secret" validate:"required"`
}

// BootstrapAdmin promotes the first admin before any admin exists to do it.
// Disabled unless ADMIN_BOOTSTRAP_SECRET is configured.
// POST /auth/bootstrap-admin
func (h *Handler) BootstrapAdmin(c echo.Context) error {
	if h.bootstrapSecret == "" {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "bootstrap disabled"})
	}
	req := new(BootstrapAdminRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.bootstrapSecret)) != 1 {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid secret"})
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	ct, err := h.pool.Exec(c.Request().Context(), `UPDATE profiles SET role = $2 WHERE email = $1`, email, middleware.RoleAdmin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to promote user"})
	}
	if ct.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	logger.Warn().Str("email", email).Msg("admin bootstrapped")
	return c.JSON(http.StatusOK, echo.Map{"message": "user promoted to admin", "email": email})
}
