// Package pin generates the short numeric PINs used to bind a vault.
package pin

import (
	"errors"
	"fmt"
)

// Digits is the number of digits in a PIN.
const Digits = 2

// ErrInvalidRange indicates a digit Range which can't be used.
var ErrInvalidRange = errors.New("invalid digit range")

// PIN is a bound session PIN.
type PIN [Digits]uint8

// String formats the PIN as decimal digits.
func (p PIN) String() string {
	return fmt.Sprintf("%d%d", p[0], p[1])
}

// Range is the inclusive range of a single digit.
type Range struct {
	Min uint8
	Max uint8
}

// DefaultRange is the range displayable with a short LED pulse train.
var DefaultRange = Range{Min: 1, Max: 4}

// Size returns the number of values in the range.
func (r Range) Size() uint32 {
	return uint32(r.Max) - uint32(r.Min) + 1
}

// Contains checks if d is inside the range.
func (r Range) Contains(d uint8) bool {
	return d >= r.Min && d <= r.Max
}

// Validate checks the range is usable on the wire, where each digit is
// a single ASCII character, and on the display, where a zero digit would
// produce no pulses.
func (r Range) Validate() error {
	if r.Min == 0 || r.Max > 9 || r.Min > r.Max {
		return fmt.Errorf("%w: %d..%d", ErrInvalidRange, r.Min, r.Max)
	}
	return nil
}

// Valid checks all digits of p are inside r.
func (r Range) Valid(p PIN) bool {
	for _, d := range p {
		if !r.Contains(d) {
			return false
		}
	}
	return true
}
