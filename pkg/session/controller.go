// Package session runs the vault's operator sessions over a byte stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/pinvault/pkg/display"
	"github.com/robotalks/pinvault/pkg/events"
	"github.com/robotalks/pinvault/pkg/pin"
	"github.com/robotalks/pinvault/pkg/protocol"
	"github.com/robotalks/pinvault/pkg/vault"
)

// Controller drives sessions: bind, show the PIN, accept unlock
// attempts, then serve queries until released, and start over.
type Controller struct {
	Stream   io.ReadWriter
	Rand     pin.Source
	Display  display.Pulser
	Timing   display.Timing
	Range    pin.Range
	Observer events.Observer
	// Device is attached to emitted events.
	Device string
	// Sleep is used for pauses between digits and retries,
	// time.Sleep if nil.
	Sleep func(time.Duration)
	// MaxTransportErrors is how many transport errors in a row, with no
	// byte received, end the stream. DefaultMaxTransportErrors if zero.
	MaxTransportErrors int

	reader        *protocol.Reader
	session       uint64
	transportErrs int
}

// DefaultMaxTransportErrors is the default of MaxTransportErrors.
const DefaultMaxTransportErrors = 5

// RetryDelay is the pause after a transport error before reading again.
const RetryDelay = 100 * time.Millisecond

// New creates a Controller with default range and timing.
func New(stream io.ReadWriter, rand pin.Source, disp display.Pulser) *Controller {
	return &Controller{
		Stream:  stream,
		Rand:    rand,
		Display: disp,
		Timing:  display.DefaultTiming,
		Range:   pin.DefaultRange,
	}
}

// Run runs sessions until ctx is done or the stream is closed.
// It returns nil when the stream reaches EOF.
func (c *Controller) Run(ctx context.Context) error {
	for {
		if err := c.RunSession(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// RunSession runs one session with a fresh vault, returning nil after
// the operator releases it. An error is only returned if the stream
// can't be used anymore.
func (c *Controller) RunSession(ctx context.Context) error {
	if c.Range == (pin.Range{}) {
		c.Range = pin.DefaultRange
	}
	if c.reader == nil || c.reader.Stream != c.Stream {
		c.reader = protocol.NewReader(c.Stream, c.Range)
	}
	c.session++

	locked, err := c.bind(ctx, vault.New())
	if err != nil {
		return err
	}
	unlocked, err := c.unlock(ctx, locked)
	if err != nil {
		return err
	}
	return c.serve(ctx, unlocked)
}

func (c *Controller) bind(ctx context.Context, v vault.Unbound) (vault.Locked, error) {
	for {
		if _, ok, err := c.next(ctx, protocol.PhaseBind, 0); err != nil {
			return vault.Locked{}, err
		} else if !ok {
			continue
		}
		p, err := pin.GenerateChecked(c.Rand, c.Range)
		if err != nil {
			glog.Errorf("session %d: %v", c.session, err)
			return vault.Locked{}, err
		}
		locked := v.Bind(p)
		glog.Infof("session %d: bound", c.session)
		if c.Display != nil {
			display.ShowPIN(c.Display, locked.PIN(), c.Timing, c.Sleep)
		}
		c.emit(ctx, events.TypeBound, 0, protocol.PhaseBind)
		return locked, c.reply(protocol.ReplyBound)
	}
}

func (c *Controller) unlock(ctx context.Context, v vault.Locked) (vault.Unlocked, error) {
	for {
		cmd, ok, err := c.next(ctx, protocol.PhaseUnlock, v.FailedAttempts())
		if err != nil {
			return vault.Unlocked{}, err
		}
		if !ok {
			continue
		}
		unlocked, locked, ok := v.Unlock(cmd.PIN)
		if ok {
			glog.Infof("session %d: unlocked after %d failed attempts", c.session, unlocked.FailedAttempts())
			c.emit(ctx, events.TypeUnlocked, unlocked.FailedAttempts(), protocol.PhaseUnlock)
			return unlocked, c.reply(protocol.ReplyUnlocked)
		}
		v = locked
		glog.Infof("session %d: incorrect pin, %d failed attempts", c.session, v.FailedAttempts())
		c.emit(ctx, events.TypeUnlockFailed, v.FailedAttempts(), protocol.PhaseUnlock)
		if err := c.reply(protocol.ReplyIncorrectPIN); err != nil {
			return vault.Unlocked{}, err
		}
	}
}

func (c *Controller) serve(ctx context.Context, v vault.Unlocked) error {
	for {
		cmd, ok, err := c.next(ctx, protocol.PhaseUnlocked, v.FailedAttempts())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		switch cmd.Kind {
		case protocol.KindQuery:
			c.emit(ctx, events.TypeSecretRead, v.FailedAttempts(), protocol.PhaseUnlocked)
			if err := c.write(v.Secret()); err != nil {
				return err
			}
		case protocol.KindRelease:
			glog.Infof("session %d: released", c.session)
			c.emit(ctx, events.TypeReleased, v.FailedAttempts(), protocol.PhaseUnlocked)
			return nil
		}
	}
}

// next reads a frame and echoes the raw bytes. ok is false if the frame
// was rejected, in which case the operator has been told so. Only errors
// which end the stream are returned.
func (c *Controller) next(ctx context.Context, phase protocol.Phase, attempts uint32) (cmd protocol.Command, ok bool, err error) {
	f, rerr := c.reader.ReadFrame(ctx, phase)
	if len(f.Raw) > 0 {
		c.transportErrs = 0
		if err = c.write(f.Raw); err != nil {
			return
		}
	}
	switch {
	case rerr == nil:
		return f.Command, true, nil
	case errors.Is(rerr, protocol.ErrInvalidCommand):
		glog.V(1).Infof("session %d: invalid %s command %q", c.session, phase, f.Raw)
	case IsTerminal(rerr):
		return cmd, false, rerr
	default:
		if len(f.Raw) == 0 {
			c.transportErrs++
		}
		limit := c.MaxTransportErrors
		if limit <= 0 {
			limit = DefaultMaxTransportErrors
		}
		if c.transportErrs >= limit {
			glog.Errorf("session %d: giving up after %d transport errors: %v", c.session, c.transportErrs, rerr)
			return cmd, false, fmt.Errorf("%d transport errors in a row: %w", c.transportErrs, rerr)
		}
		glog.Warningf("session %d: %v", c.session, rerr)
		c.sleep(RetryDelay)
	}
	c.emit(ctx, events.TypeInvalid, attempts, phase)
	return cmd, false, c.reply(protocol.ReplyInvalid)
}

func (c *Controller) sleep(d time.Duration) {
	if c.Sleep != nil {
		c.Sleep(d)
	} else {
		time.Sleep(d)
	}
}

func (c *Controller) reply(msg string) error {
	return c.write([]byte(msg))
}

// write reports errors which end the stream and logs the others.
func (c *Controller) write(b []byte) error {
	if _, err := c.Stream.Write(b); err != nil {
		if IsTerminal(err) {
			return err
		}
		glog.Warningf("session %d: write: %v", c.session, err)
	}
	return nil
}

func (c *Controller) emit(ctx context.Context, typ events.Type, attempts uint32, phase protocol.Phase) {
	if c.Observer == nil {
		return
	}
	c.Observer.Observe(ctx, events.Event{
		Type:     typ,
		Device:   c.Device,
		Session:  c.session,
		Attempts: attempts,
		Phase:    phase.String(),
		Time:     time.Now(),
	})
}

// IsTerminal checks if err means the stream is gone or the caller gave up.
func IsTerminal(err error) bool {
	for _, target := range []error{
		io.EOF,
		io.ErrUnexpectedEOF,
		io.ErrClosedPipe,
		net.ErrClosed,
		os.ErrClosed,
		syscall.ECONNRESET,
		syscall.EPIPE,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return isPortClosed(err)
}

func isPortClosed(err error) bool {
	var perr *serial.PortError
	return errors.As(err, &perr) && perr.Code() == serial.PortClosed
}
