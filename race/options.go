package race

import "time"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithNow overrides the engine's wall clock. Tests use this to drive
// lap times deterministically.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
