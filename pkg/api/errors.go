package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/crater/pkg/crerr"
)

// writeError maps a core error to the envelope/status-code pair named in
// §4.6 and §6: {status, result?, error?} with 403 for auth, 404 for
// not-found, 400 for config/validation errors, and 500 for everything else.
func writeError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, crerr.ErrAuth):
		return c.JSON(http.StatusForbidden, failed(statusUnauthorized, err.Error()))
	case errors.Is(err, crerr.ErrNotFound):
		return c.JSON(http.StatusNotFound, failed(statusNotFound, err.Error()))
	case crerr.IsConfigError(err):
		return c.JSON(http.StatusBadRequest, failed(statusInternal, err.Error()))
	default:
		slog.Error("internal API error", "error", err)
		return c.JSON(http.StatusInternalServerError, failed(statusInternal, err.Error()))
	}
}
