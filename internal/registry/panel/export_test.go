package panel

import "time"

// WithClock replaces the service clock for testing purposes.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
