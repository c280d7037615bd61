package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/logging"
)

const (
	resetPurpose = "password_reset"
	resetTTL     = 30 * time.Minute
)

var errBadResetToken = errors.New("invalid or expired token")

type resetClaims struct {
	UserID  string `json:"user_id"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func issueResetToken(secret, userID string, now time.Time) (string, error) {
	claims := resetClaims{
		UserID:  userID,
		Purpose: resetPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(resetTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// parseResetToken accepts only reset tokens; an access token carries no purpose and is refused.
func parseResetToken(secret, token string) (string, error) {
	claims := &resetClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid || claims.Purpose != resetPurpose || claims.UserID == "" {
		return "", errBadResetToken
	}
	return claims.UserID, nil
}

// IssuePasswordReset lets support hand a one-off reset token to a locked out user.
// POST /admin/users/:id/password-reset
func (h *Handler) IssuePasswordReset(c echo.Context) error {
	userID := c.Param("id")
	var exists bool
	if err := h.pool.QueryRow(c.Request().Context(),
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up user"})
	}
	if !exists {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	token, err := issueResetToken(h.secret, userID, time.Now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}
	adminID, _ := c.Get("user_id").(string)
	logger.Info().Str(logging.USER, userID).Str("admin", adminID).Msg("password reset issued")
	return c.JSON(http.StatusOK, echo.Map{"token": token, "expires_in": int(resetTTL.Seconds())})
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// POST /auth/password/reset
func (h *Handler) ResetPassword(c echo.Context) error {
	req := new(ResetPasswordRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	userID, err := parseResetToken(h.secret, req.Token)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	}
	return h.setPassword(c, userID, req.NewPassword)
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,nefield=CurrentPassword"`
}

// POST /auth/password
func (h *Handler) ChangePassword(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	req := new(ChangePasswordRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	var current string
	err := h.pool.QueryRow(c.Request().Context(), `SELECT password FROM profiles WHERE id = $1`, userID).Scan(&current)
	if db.IsNoRows(err) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server error"})
	}
	if bcrypt.CompareHashAndPassword([]byte(current), []byte(req.CurrentPassword)) != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "current password is incorrect"})
	}
	return h.setPassword(c, userID, req.NewPassword)
}

func (h *Handler) setPassword(c echo.Context, userID, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server error"})
	}
	ct, err := h.pool.Exec(c.Request().Context(), `UPDATE profiles SET password = $1 WHERE id = $2`, string(hashed), userID)
	if err != nil {
		logger.Error().Err(err).Str(logging.USER, userID).Msg("password update failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update password"})
	}
	if ct.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated successfully"})
}
