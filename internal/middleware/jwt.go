package middleware

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/opay-dz/opay/internal/utils"
)

// JWT authenticates the bearer token and stores user_id and role on the context.
func JWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			// browsers cannot set headers on a websocket handshake
			if header == "" && c.QueryParam("token") != "" && websocket.IsWebSocketUpgrade(c.Request()) {
				header = "Bearer " + c.QueryParam("token")
			}
			tokenStr, err := utils.BearerToken(header)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
			}
			claims, err := utils.ParseToken(secret, tokenStr)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
			}
			c.Set("user_id", claims.UserID)
			c.Set("role", claims.Role)
			return next(c)
		}
	}
}
