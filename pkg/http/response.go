package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Acknowledge writes the admission acknowledgment.
func Acknowledge(c echo.Context) error {
	return c.JSON(http.StatusOK, AckResponse{Status: "received"})
}

// AppErrorResponse writes err with the status it carries. Errors that are not
// an *AppError become a bare 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.JSON(appErr.Status, ErrorResponse{
			Status:  appErr.Status,
			Message: http.StatusText(appErr.Status),
			Data:    []*AppError{appErr},
		})
	}
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Status:  http.StatusInternalServerError,
		Message: http.StatusText(http.StatusInternalServerError),
	})
}
