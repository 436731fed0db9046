package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mealbuddy/mealbuddy/internal/apperror"
)

// ResponseStatus returns the status the client will receive. Middleware runs
// before the error handler writes the response, so a returned error is
// mapped the same way the handler maps it.
func ResponseStatus(c echo.Context, err error) int {
	if err == nil {
		if status := c.Response().Status; status != 0 {
			return status
		}
		return http.StatusOK
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperror.SafeCode(err)
}
