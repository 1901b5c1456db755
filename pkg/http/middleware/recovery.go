package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "github.com/mack4pf/telegram-automated-signal/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a handler panic into a 500 with the same envelope rejected
// webhooks get.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				l.Error("http handler panic",
					applogger.String("route", c.Path()),
					applogger.String("method", c.Request().Method),
					applogger.Error(perr),
					applogger.String("stack", string(debug.Stack())))
				if c.Response().Committed {
					err = nil
					return
				}
				err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"status":  http.StatusInternalServerError,
					"message": http.StatusText(http.StatusInternalServerError),
				})
			}()
			return next(c)
		}
	}
}
