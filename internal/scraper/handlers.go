package scraper

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Scrape - POST /functions/scrape-aliexpress {url}
func (h *Handler) Scrape(c echo.Context) error {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.Bind(&req); err != nil || req.URL == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "url is required"})
	}
	res, err := h.svc.Scrape(c.Request().Context(), req.URL)
	if errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrNotAllowed) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err != nil {
		logger.Error().Err(err).Msg("scrape")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "scrape failed"})
	}
	return c.JSON(http.StatusOK, res)
}

// CORS limits browser callers of the /functions endpoints to origins. Mount it
// with e.Use so preflight requests are answered before route matching.
func CORS(origins []string) echo.MiddlewareFunc {
	return echomw.CORSWithConfig(echomw.CORSConfig{
		Skipper: func(c echo.Context) bool {
			return !strings.HasPrefix(c.Request().URL.Path, "/functions/")
		},
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, "apikey", "x-client-info"},
	})
}

// Register mounts the function on g, which carries bearer auth.
func (h *Handler) Register(g *echo.Group) {
	g.POST("/functions/scrape-aliexpress", h.Scrape)
}
