package admin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/referral"
)

const maxPage = 200

type AdminUser struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Role       string    `json:"role"`
	IsVerified bool      `json:"is_verified"`
	IsBanned   bool      `json:"is_banned"`
	BanReason  string    `json:"ban_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func page(c echo.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	offset, _ = strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 || limit > maxPage {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// GET /admin/users?q=&role=&banned=
func (h *Handler) ListUsers(c echo.Context) error {
	limit, offset := page(c)
	search := strings.TrimSpace(c.QueryParam("q"))
	role := c.QueryParam("role")
	var banned *bool
	if v := c.QueryParam("banned"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "banned must be true or false"})
		}
		banned = &b
	}

	rows, err := h.pool.Query(c.Request().Context(), `
		SELECT id::text, name, email, COALESCE(phone, ''), role, is_verified, is_banned,
		       COALESCE(ban_reason, ''), created_at
		FROM profiles
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%' OR phone = $1)
		  AND ($2 = '' OR role = $2)
		  AND ($3::boolean IS NULL OR is_banned = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`, search, role, banned, limit, offset)
	if err != nil {
		logger.Error().Err(err).Msg("list users failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch users"})
	}
	defer rows.Close()

	users := []AdminUser{}
	for rows.Next() {
		var u AdminUser
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.IsVerified, &u.IsBanned,
			&u.BanReason, &u.CreatedAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read user record"})
		}
		users = append(users, u)
	}
	if rows.Err() != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch users"})
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users, "limit": limit, "offset": offset})
}

type banRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// POST /admin/users/:id/ban {reason}
func (h *Handler) BanUser(c echo.Context) error {
	var req banRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	adminID, _ := c.Get("user_id").(string)
	userID := c.Param("id")
	if userID == adminID {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot ban yourself"})
	}

	err := h.banner.BanUser(c.Request().Context(), adminID, userID, req.Reason)
	if errors.Is(err, referral.ErrUserNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found or is an admin"})
	}
	if err != nil {
		logger.Error().Err(err).Str(logging.USER, userID).Msg("ban failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to ban user"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user banned", "user_id": userID})
}

// POST /admin/users/:id/unban
func (h *Handler) UnbanUser(c echo.Context) error {
	userID := c.Param("id")
	ct, err := h.pool.Exec(c.Request().Context(),
		`UPDATE profiles SET is_banned = FALSE, ban_reason = NULL WHERE id = $1`, userID)
	if err != nil {
		logger.Error().Err(err).Str(logging.USER, userID).Msg("unban failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to unban user"})
	}
	if ct.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	adminID, _ := c.Get("user_id").(string)
	logger.Info().Str("admin", adminID).Str(logging.USER, userID).Msg("user unbanned")
	return c.JSON(http.StatusOK, echo.Map{"message": "user unbanned", "user_id": userID})
}
