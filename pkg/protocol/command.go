package protocol

import (
	"fmt"
	"io"

	"github.com/robotalks/pinvault/pkg/pin"
)

// Phase selects the grammar accepted by the Parser.
type Phase int

const (
	// PhaseBind waits for a bind request.
	PhaseBind Phase = iota
	// PhaseUnlock waits for PIN attempts.
	PhaseUnlock
	// PhaseUnlocked waits for query or release.
	PhaseUnlocked
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseBind:
		return "bind"
	case PhaseUnlock:
		return "unlock"
	case PhaseUnlocked:
		return "unlocked"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// FrameLen returns the full frame length of the phase.
func (p Phase) FrameLen() int {
	if p == PhaseUnlock {
		return 5
	}
	return 3
}

// Kind is the type of a Command.
type Kind int

// Command kinds.
const (
	KindBind Kind = iota + 1
	KindUnlock
	KindQuery
	KindRelease
)

// Leading bytes of the frames.
const (
	LeadBind    byte = 'x'
	LeadUnlock  byte = 'g'
	LeadQuery   byte = 'q'
	LeadRelease byte = 'u'
)

// Replies written back to the operator.
const (
	ReplyBound        = "Device Bound"
	ReplyUnlocked     = "Device unlocked"
	ReplyIncorrectPIN = "Incorrect pin\r\n"
	ReplyInvalid      = "Invalid Command"
)

// Command is a validated frame.
type Command struct {
	Kind Kind
	// PIN is only set for KindUnlock.
	PIN pin.PIN
}

// Phase returns the phase in which the command is accepted.
func (c Command) Phase() Phase {
	switch c.Kind {
	case KindUnlock:
		return PhaseUnlock
	case KindQuery, KindRelease:
		return PhaseUnlocked
	}
	return PhaseBind
}

// String implements fmt.Stringer.
func (c Command) String() string {
	switch c.Kind {
	case KindBind:
		return "bind"
	case KindUnlock:
		return "unlock " + c.PIN.String()
	case KindQuery:
		return "query"
	case KindRelease:
		return "release"
	}
	return fmt.Sprintf("kind(%d)", int(c.Kind))
}

// Bytes returns the encoded frame.
func (c Command) Bytes() []byte {
	switch c.Kind {
	case KindBind:
		return []byte{LeadBind, '\r', '\n'}
	case KindUnlock:
		return []byte{LeadUnlock, '0' + c.PIN[0], '0' + c.PIN[1], '\r', '\n'}
	case KindQuery:
		return []byte{LeadQuery, '\r', '\n'}
	case KindRelease:
		return []byte{LeadRelease, '\r', '\n'}
	}
	return nil
}

// WriteTo writes the encoded frame.
func (c Command) WriteTo(w io.Writer) (int64, error) {
	b := c.Bytes()
	if b == nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidCommand, c)
	}
	n, err := w.Write(b)
	return int64(n), err
}
