// Package domain holds the typed value objects shared by the scheduler,
// backtester and their external collaborators. The scheduler never mixes
// units in arithmetic; every quantity that crosses a package boundary is
// one of these types rather than a bare float64.
package domain

import "time"

// Duration is a non-negative time span, carried in milliseconds so that
// JSON payloads from external collaborators (which speak milliseconds)
// round-trip without a conversion layer.
type Duration struct {
	Millis float64
}

// NewDuration builds a Duration from a standard library time.Duration.
func NewDuration(d time.Duration) Duration {
	return Duration{Millis: float64(d) / float64(time.Millisecond)}
}

// Hours returns the duration expressed in hours, the unit the physical
// slot model and the DP both operate in.
func (d Duration) Hours() float64 {
	return d.Millis / 3.6e6
}

// Std converts back to a time.Duration, truncating any fraction of a
// nanosecond.
func (d Duration) Std() time.Duration {
	return time.Duration(d.Millis * float64(time.Millisecond))
}

func (d Duration) IsPositive() bool {
	return d.Millis > 0
}
