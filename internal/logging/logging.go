package logging

import (
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// logger fields
const (
	PACKAGE = "pkg"
	FUNC    = "func"
	EVENT   = "event"
	ID      = "id"
	USER    = "user_id"
)

// Configure sets the global log level and output.
func Configure(level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(ParseLevel(level))
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// ParseLevel maps DEBUG, INFO, WARN, ERROR (any case) to a zerolog level; anything else is INFO.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewPackageLogger returns a new logger with pkg={pkg}
func NewPackageLogger(pkg string) zerolog.Logger {
	return log.With().Str(PACKAGE, pkg).Logger()
}

// RequestLogger is an echo middleware that writes one zerolog event per request.
func RequestLogger() echo.MiddlewareFunc {
	logger := NewPackageLogger("http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			evt := logger.Info()
			if c.Response().Status >= 500 {
				evt = logger.Error().Err(err)
			}
			uid, _ := c.Get("user_id").(string)
			evt.Str("method", req.Method).
				Str("path", c.Path()).
				Str("uri", req.RequestURI).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("ip", c.RealIP()).
				Str(USER, uid).
				Msg("request")
			return nil
		}
	}
}
