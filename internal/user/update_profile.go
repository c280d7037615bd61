package user

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opay-dz/opay/internal/logging"
)

type UpdateProfileRequest struct {
	Name  string `json:"name" validate:"omitempty,max=100"`
	Phone string `json:"phone" validate:"omitempty,numeric,len=10"`
}

// PATCH /user/profile
func (h *Handler) UpdateProfile(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or missing token"})
	}

	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if req.Name == "" && req.Phone == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nothing to update"})
	}

	ct, err := h.pool.Exec(c.Request().Context(), `
		UPDATE profiles
		SET name = COALESCE(NULLIF($1, ''), name),
		    phone = COALESCE(NULLIF($2, ''), phone)
		WHERE id = $3
	`, req.Name, req.Phone, userID)
	if err != nil {
		logger.Error().Err(err).Str(logging.USER, userID).Msg("profile update failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update profile"})
	}
	if ct.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "profile updated successfully"})
}
