package middleware

import (
	"time"

	applogger "github.com/mack4pf/telegram-automated-signal/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs HTTP requests. Server errors log at error, rejected
// requests at warn, webhook deliveries at info and everything else (health
// probes, scrapes) at debug.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", c.Path()),
				applogger.String("ip", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Duration("latency_ms", time.Since(start)),
			}
			if s := c.Param("strategy"); s != "" {
				fields = append(fields, applogger.String("strategy", s))
			}

			switch {
			case res.Status >= 500:
				l.Error("http request", fields...)
			case res.Status >= 400:
				l.Warn("http request rejected", fields...)
			case req.Method == "POST":
				l.Info("http request", fields...)
			default:
				l.Debug("http request", fields...)
			}

			return nil
		}
	}
}
