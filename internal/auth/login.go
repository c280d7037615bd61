package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/utils"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ===== Login =====
// POST /auth/login
func (h *Handler) Login(c echo.Context) error {
	req := new(LoginRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	var (
		userID    string
		password  string
		role      string
		banned    bool
		banReason string
	)
	err := h.pool.QueryRow(c.Request().Context(), `
		SELECT id::text, password, role, is_banned, COALESCE(ban_reason, '')
		FROM profiles WHERE email = $1
	`, req.Email).Scan(&userID, &password, &role, &banned, &banReason)
	if db.IsNoRows(err) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		logger.Error().Err(err).Msg("login lookup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server error"})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(password), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	// only a caller holding the password learns about the ban
	if banned {
		logger.Warn().Str(logging.USER, userID).Msg("banned user tried to log in")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account banned", "reason": banReason})
	}

	token, err := utils.IssueToken(h.secret, userID, role, h.ttl)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: token, UserID: userID, Role: role})
}
