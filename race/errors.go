package race

import "errors"

// Typed failures surfaced to operators. Callers wrap these with
// rider/status detail via fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrNotFound          = errors.New("no matching registration")
	ErrIneligible        = errors.New("rider not eligible or payment incomplete")
	ErrAlreadyActive     = errors.New("rider already queued or racing")
	ErrAlreadyCompleted  = errors.New("rider already completed their race")
	ErrCrossDayConflict  = errors.New("rider already ran on another day")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTrackOccupied     = errors.New("another rider is currently racing")
	ErrInvalidLapTime    = errors.New("invalid lap time")
	ErrNotConfirmed      = errors.New("confirmation required")
	ErrStoreUnavailable  = errors.New("store unavailable")
)
