package syncer

import "time"

// WithClock replaces the engine clock for testing purposes.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
