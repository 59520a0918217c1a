// Package display shows a PIN as LED pulse trains.
package display

import (
	"time"

	"github.com/robotalks/pinvault/pkg/pin"
)

// Pulser blinks an output count times. It blocks until done.
type Pulser interface {
	Pulse(count int, on, off time.Duration)
}

// PulseFunc is func type of Pulser.
type PulseFunc func(count int, on, off time.Duration)

// Pulse implements Pulser.
func (f PulseFunc) Pulse(count int, on, off time.Duration) {
	f(count, on, off)
}

// Timing defines the durations of a pulse train.
type Timing struct {
	On  time.Duration
	Off time.Duration
	// Gap is the pause after each digit.
	Gap time.Duration
}

// DefaultTiming is slow enough to count by eye.
var DefaultTiming = Timing{
	On:  500 * time.Millisecond,
	Off: 500 * time.Millisecond,
	Gap: 500 * time.Millisecond,
}

// ShowPIN emits one pulse train per digit, the number of pulses being
// the digit value, followed by t.Gap. sleep defaults to time.Sleep.
func ShowPIN(p Pulser, pn pin.PIN, t Timing, sleep func(time.Duration)) {
	if sleep == nil {
		sleep = time.Sleep
	}
	for _, d := range pn {
		p.Pulse(int(d), t.On, t.Off)
		sleep(t.Gap)
	}
}
