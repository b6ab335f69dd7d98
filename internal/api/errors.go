package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"shop-service/internal/service"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

var statusByKind = map[service.ErrorKind]int{
	service.KindValidation:   http.StatusBadRequest,
	service.KindConflict:     http.StatusConflict,
	service.KindUnauthorized: http.StatusUnauthorized,
	service.KindForbidden:    http.StatusForbidden,
	service.KindNotFound:     http.StatusNotFound,
	service.KindGateway:      http.StatusBadGateway,
}

// writeError renders err as {"error": message}. Anything outside the service contract
// becomes a bare 500.
func writeError(c echo.Context, err error) error {
	kind := service.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		var contract *service.Error
		if !errors.As(err, &contract) {
			logger.Error().Err(err).Str("path", c.Path()).Msg("Unhandled error")
			err = service.ErrInternal
		}
		status = http.StatusInternalServerError
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
