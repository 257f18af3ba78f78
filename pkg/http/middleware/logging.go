package middleware

import (
	"time"

	applogger "FinTrade/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging emits a debug-level access line per request. Failures
// and slow requests surface at higher levels through the metrics
// middleware, so this stays silent at production log levels.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l == nil {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			l.Debug("http request",
				applogger.String("method", c.Request().Method),
				applogger.String("path", c.Request().URL.Path),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("duration_ms", time.Since(start)),
			)
			return err
		}
	}
}
