// Package vault guards a secret behind a PIN.
//
// Each lifecycle state is its own type, so only the operations legal in a
// state exist on its value:
//
//	Unbound --Bind--> Locked --Unlock(match)--> Unlocked
//	                  Locked --Unlock(mismatch)--> Locked (attempt counted)
//
// Values are immutable snapshots. A transition returns a new value and
// leaves its receiver untouched; the caller threads the latest value
// through its control flow and drops the old one. There is no way back
// from Unlocked other than starting over with New.
package vault

import "github.com/robotalks/pinvault/pkg/pin"

// Secret is the payload released by an Unlocked vault.
const Secret = "Aww man you found my secret!"

// Unbound is a fresh vault without a PIN.
type Unbound struct{}

// Locked is a vault bound to a PIN.
type Locked struct {
	pin            pin.PIN
	failedAttempts uint32
}

// Unlocked is a vault opened with the matching PIN.
type Unlocked struct {
	pin            pin.PIN
	failedAttempts uint32
	secret         string
}

// New creates an Unbound vault.
func New() Unbound {
	return Unbound{}
}

// Bind attaches p and locks the vault.
func (Unbound) Bind(p pin.PIN) Locked {
	return Locked{pin: p}
}

// Unlock compares attempt with the bound PIN.
// On match, ok is true and unlocked is valid.
// Otherwise locked is the vault with the failed attempt counted.
// There is no limit on the number of attempts.
func (v Locked) Unlock(attempt pin.PIN) (unlocked Unlocked, locked Locked, ok bool) {
	if attempt == v.pin {
		return Unlocked{
			pin:            v.pin,
			failedAttempts: v.failedAttempts,
			secret:         Secret,
		}, Locked{}, true
	}
	return Unlocked{}, Locked{pin: v.pin, failedAttempts: v.failedAttempts + 1}, false
}

// PIN returns the bound PIN.
func (v Locked) PIN() pin.PIN {
	return v.pin
}

// FailedAttempts returns the number of mismatched attempts.
func (v Locked) FailedAttempts() uint32 {
	return v.failedAttempts
}

// PIN returns the PIN the vault was opened with.
func (v Unlocked) PIN() pin.PIN {
	return v.pin
}

// FailedAttempts returns the number of mismatched attempts before unlocking.
func (v Unlocked) FailedAttempts() uint32 {
	return v.failedAttempts
}

// Secret returns a copy of the secret payload.
func (v Unlocked) Secret() []byte {
	return []byte(v.secret)
}
