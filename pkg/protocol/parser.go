package protocol

import "github.com/robotalks/pinvault/pkg/pin"

// MaxLineLen bounds how many bytes of a rejected frame are drained while
// looking for the line feed.
const MaxLineLen = 64

// Parser validates frames one byte at a time.
type Parser struct {
	// Range bounds the unlock digits, pin.DefaultRange if zero.
	Range pin.Range

	phase   Phase
	state   parseState
	cmd     Command
	err     error
	recvLen int
}

// ParseResult indicates the result after one parsing step.
type ParseResult struct {
	// Done is set when the frame is complete.
	Done bool
	// Command is valid only when Done is set and Err is nil.
	Command Command
	// Err is ErrInvalidCommand for a rejected frame.
	Err error
}

type parseState int

const (
	stateLead   parseState = iota // waiting for leading byte
	stateDigit1                   // waiting for first PIN digit
	stateDigit2                   // waiting for second PIN digit
	stateCR                       // waiting for '\r'
	stateLF                       // waiting for '\n'
	stateDone                     // frame complete, next byte starts a new one
)

// NewParser creates a Parser with a digit range.
func NewParser(r pin.Range) *Parser {
	return &Parser{Range: r}
}

// Phase gets the current phase.
func (p *Parser) Phase() Phase {
	return p.phase
}

// Reset starts a new frame in the given phase.
func (p *Parser) Reset(phase Phase) {
	p.phase, p.state = phase, stateLead
	p.cmd, p.err, p.recvLen = Command{}, nil, 0
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	if p.state == stateDone {
		p.Reset(p.phase)
	}
	p.recvLen++
	if b == '\n' {
		if p.state != stateLF {
			p.reject()
		}
		return p.frameDone()
	}
	if p.err != nil {
		// drain the rest of a rejected line.
		if p.recvLen >= MaxLineLen {
			return p.frameDone()
		}
		return
	}
	if p.recvLen >= p.phase.FrameLen() {
		// only the line feed may complete a full length frame.
		p.reject()
		return
	}
	switch p.state {
	case stateLead:
		p.parseLead(b)
	case stateDigit1:
		if d, ok := p.digit(b); ok {
			p.cmd.PIN[0], p.state = d, stateDigit2
		} else {
			p.reject()
		}
	case stateDigit2:
		if d, ok := p.digit(b); ok {
			p.cmd.PIN[1], p.state = d, stateCR
		} else {
			p.reject()
		}
	case stateCR:
		if b == '\r' {
			p.state = stateLF
		} else {
			p.reject()
		}
	default:
		p.reject()
	}
	return
}

func (p *Parser) parseLead(b byte) {
	switch {
	case p.phase == PhaseBind && b == LeadBind:
		p.cmd.Kind, p.state = KindBind, stateCR
	case p.phase == PhaseUnlock && b == LeadUnlock:
		p.cmd.Kind, p.state = KindUnlock, stateDigit1
	case p.phase == PhaseUnlocked && b == LeadQuery:
		p.cmd.Kind, p.state = KindQuery, stateCR
	case p.phase == PhaseUnlocked && b == LeadRelease:
		p.cmd.Kind, p.state = KindRelease, stateCR
	default:
		p.reject()
	}
}

// digit checks the character before translating it.
func (p *Parser) digit(b byte) (uint8, bool) {
	if b < '0' || b > '9' {
		return 0, false
	}
	r := p.Range
	if r == (pin.Range{}) {
		r = pin.DefaultRange
	}
	d := b - '0'
	return d, r.Contains(d)
}

func (p *Parser) reject() {
	if p.err == nil {
		p.err = ErrInvalidCommand
	}
}

func (p *Parser) frameDone() (pr ParseResult) {
	p.state = stateDone
	pr.Done, pr.Err = true, p.err
	if pr.Err == nil {
		pr.Command = p.cmd
	}
	return
}
