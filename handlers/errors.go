package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aarunya/kartapi/race"
)

// httpError maps engine sentinels to HTTP errors, keeping the wrapped
// detail (rider name, current status) in the message so operators see
// what to do next.
func httpError(err error) error {
	var code int
	switch {
	case errors.Is(err, race.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, race.ErrIneligible),
		errors.Is(err, race.ErrInvalidLapTime):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, race.ErrAlreadyActive),
		errors.Is(err, race.ErrAlreadyCompleted),
		errors.Is(err, race.ErrCrossDayConflict),
		errors.Is(err, race.ErrInvalidTransition),
		errors.Is(err, race.ErrTrackOccupied):
		code = http.StatusConflict
	case errors.Is(err, race.ErrNotConfirmed):
		code = http.StatusPreconditionRequired
	case errors.Is(err, race.ErrStoreUnavailable):
		code = http.StatusServiceUnavailable
	default:
		code = http.StatusInternalServerError
	}
	return echo.NewHTTPError(code, err.Error())
}
