// Package ratelimit paces outgoing product requests.
//
// The Limiter is an additive-increase/multiplicative-decrease gate around
// golang.org/x/time/rate: every successful response nudges the rate up towards
// the configured ceiling, and a throttling response (429 or 503) halves it and
// opens a short cool-off window during which no request is released.
package ratelimit

import (
	"time"
)

// State is a point-in-time view of the limiter.
type State struct {
	// Rate is the current requests-per-second allowance.
	Rate float64 `json:"rate"`

	// Min and Max bound Rate.
	Min float64 `json:"min"`
	Max float64 `json:"max"`

	// CoolUntil is the end of the current cool-off window (zero when none).
	CoolUntil time.Time `json:"cool_until"`
}

// Cooling returns true while a cool-off window is open.
func (s State) Cooling() bool {
	return time.Now().Before(s.CoolUntil)
}

// Throttled returns true when the rate has been pushed below its ceiling.
func (s State) Throttled() bool {
	return s.Rate < s.Max
}
