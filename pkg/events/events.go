// Package events reports vault lifecycle events to observers.
//
// Events never carry the PIN or the secret.
package events

import (
	"context"
	"fmt"
	"time"
)

// Type identifies an event.
type Type string

// Event types.
const (
	TypeConnected    Type = "connected"
	TypeBound        Type = "bound"
	TypeUnlockFailed Type = "unlock_failed"
	TypeUnlocked     Type = "unlocked"
	TypeSecretRead   Type = "secret_read"
	TypeReleased     Type = "released"
	TypeInvalid      Type = "invalid_command"
	TypeDisconnected Type = "disconnected"
)

// Event is a lifecycle event of a vault session.
type Event struct {
	Type    Type   `json:"type"`
	Device  string `json:"device,omitempty"`
	Session uint64 `json:"session"`
	// Attempts is the failed attempt count at the time of the event.
	Attempts uint32    `json:"attempts"`
	Phase    string    `json:"phase,omitempty"`
	Time     time.Time `json:"time"`
}

// String formats the event for humans.
func (e Event) String() string {
	s := fmt.Sprintf("%s session=%d attempts=%d", e.Type, e.Session, e.Attempts)
	if e.Phase != "" {
		s += " phase=" + e.Phase
	}
	return s
}

// Observer receives events. Observe must not block the session for long.
type Observer interface {
	Observe(context.Context, Event)
}

// ObserveFunc is func type of Observer.
type ObserveFunc func(context.Context, Event)

// Observe implements Observer.
func (f ObserveFunc) Observe(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Nop discards events.
var Nop Observer = ObserveFunc(func(context.Context, Event) {})

// Multi fans out events to multiple observers.
type Multi []Observer

// Observe implements Observer.
func (m Multi) Observe(ctx context.Context, ev Event) {
	for _, o := range m {
		o.Observe(ctx, ev)
	}
}
