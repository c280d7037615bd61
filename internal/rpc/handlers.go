package rpc

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opay-dz/opay/internal/middleware"
)

// Handle - POST /rpc/:name with the JSON arguments as body
func (d *Dispatcher) Handle(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, Result{"success": false, "error": "unauthorized"})
	}
	role, _ := c.Get("role").(string)

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 64<<10))
	if err != nil {
		return c.JSON(http.StatusBadRequest, Result{"success": false, "error": ErrBadArguments.Error()})
	}
	status, res := d.Call(c.Request().Context(), Caller{UserID: uid, Admin: role == middleware.RoleAdmin}, c.Param("name"), body)
	return c.JSON(status, res)
}

func (d *Dispatcher) Register(g *echo.Group) {
	g.POST("/rpc/:name", d.Handle)
}
