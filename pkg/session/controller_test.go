package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/robotalks/pinvault/pkg/display"
	"github.com/robotalks/pinvault/pkg/events"
	"github.com/robotalks/pinvault/pkg/pin"
	"github.com/robotalks/pinvault/pkg/protocol"
	"github.com/robotalks/pinvault/pkg/vault"
)

type seqSource struct {
	values []uint32
}

func (s *seqSource) Uint32() uint32 {
	v := s.values[0]
	s.values = s.values[1:]
	return v
}

// testStream replays input chunks; an error chunk is returned once by Read.
type testStream struct {
	input  []interface{}
	output bytes.Buffer
}

func (s *testStream) Read(p []byte) (int, error) {
	for len(s.input) > 0 {
		switch v := s.input[0].(type) {
		case error:
			s.input = s.input[1:]
			return 0, v
		case string:
			if v == "" {
				s.input = s.input[1:]
				continue
			}
			n := copy(p, v)
			s.input[0] = v[n:]
			return n, nil
		}
	}
	return 0, io.EOF
}

func (s *testStream) Write(p []byte) (int, error) {
	return s.output.Write(p)
}

type sessionTestEnv struct {
	t      *testing.T
	stream *testStream
	ctl    *Controller
	pulses []int
	events []events.Event
}

func newSessionTestEnv(t *testing.T, draws ...uint32) *sessionTestEnv {
	env := &sessionTestEnv{t: t, stream: &testStream{}}
	env.ctl = New(env.stream, &seqSource{values: draws}, display.PulseFunc(func(count int, on, off time.Duration) {
		env.pulses = append(env.pulses, count)
	}))
	env.ctl.Sleep = func(time.Duration) {}
	env.ctl.Device = "dev"
	env.ctl.Observer = events.ObserveFunc(func(_ context.Context, ev events.Event) {
		env.events = append(env.events, ev)
	})
	return env
}

func (e *sessionTestEnv) input(chunks ...interface{}) *sessionTestEnv {
	e.stream.input = append(e.stream.input, chunks...)
	return e
}

func (e *sessionTestEnv) run() error {
	return e.ctl.Run(context.Background())
}

func (e *sessionTestEnv) expectOutput(parts ...string) {
	var expected bytes.Buffer
	for _, part := range parts {
		expected.WriteString(part)
	}
	require.Equal(e.t, expected.String(), e.stream.output.String())
}

func (e *sessionTestEnv) eventTypes() []events.Type {
	types := make([]events.Type, len(e.events))
	for n, ev := range e.events {
		types[n] = ev.Type
	}
	return types
}

func TestSessionEndToEnd(t *testing.T) {
	// draws 1,1 -> PIN 22; draws 0,3 -> PIN 14
	env := newSessionTestEnv(t, 1, 1, 0, 3).
		input("x\r\n", "g22\r\n", "q\r\n", "u\r\n", "x\r\n", "g14\r\n", "q\r\n")
	require.NoError(t, env.run())
	env.expectOutput(
		"x\r\n", protocol.ReplyBound,
		"g22\r\n", protocol.ReplyUnlocked,
		"q\r\n", vault.Secret,
		"u\r\n",
		"x\r\n", protocol.ReplyBound,
		"g14\r\n", protocol.ReplyUnlocked,
		"q\r\n", vault.Secret,
	)
	require.Equal(t, []int{2, 2, 1, 4}, env.pulses)
	require.Equal(t, []events.Type{
		events.TypeBound, events.TypeUnlocked, events.TypeSecretRead, events.TypeReleased,
		events.TypeBound, events.TypeUnlocked, events.TypeSecretRead,
	}, env.eventTypes())
	require.Equal(t, uint64(1), env.events[0].Session)
	require.Equal(t, uint64(2), env.events[4].Session)
	require.Equal(t, "dev", env.events[0].Device)
}

func TestSessionOutOfRangeDigits(t *testing.T) {
	env := newSessionTestEnv(t, 1, 1).
		input("x\r\n", "g99\r\n", "g11\r\n", "g22\r\n")
	require.NoError(t, env.run())
	env.expectOutput(
		"x\r\n", protocol.ReplyBound,
		"g99\r\n", protocol.ReplyInvalid,
		"g11\r\n", protocol.ReplyIncorrectPIN,
		"g22\r\n", protocol.ReplyUnlocked,
	)
	require.Equal(t, []events.Type{
		events.TypeBound, events.TypeInvalid, events.TypeUnlockFailed, events.TypeUnlocked,
	}, env.eventTypes())
	// the invalid frame didn't count as an attempt.
	require.Equal(t, uint32(0), env.events[1].Attempts)
	require.Equal(t, uint32(1), env.events[2].Attempts)
	require.Equal(t, uint32(1), env.events[3].Attempts)
}

func TestSessionRepeatedFailures(t *testing.T) {
	env := newSessionTestEnv(t, 3, 3).input("x\r\n")
	for i := 0; i < 20; i++ {
		env.input("g11\r\n")
	}
	env.input("x\r\n", "g44\r\n")
	require.NoError(t, env.run())
	var attempts []uint32
	for _, ev := range env.events {
		if ev.Type == events.TypeUnlockFailed {
			attempts = append(attempts, ev.Attempts)
		}
	}
	require.Len(t, attempts, 20)
	for n, a := range attempts {
		require.Equal(t, uint32(n+1), a)
	}
	last := env.events[len(env.events)-1]
	require.Equal(t, events.TypeUnlocked, last.Type)
	require.Equal(t, uint32(20), last.Attempts)
}

func TestSessionInvalidBind(t *testing.T) {
	env := newSessionTestEnv(t, 0, 0).
		input("y\r\n", "q\r\n", "\n", "x\r\n")
	require.NoError(t, env.run())
	env.expectOutput(
		"y\r\n", protocol.ReplyInvalid,
		"q\r\n", protocol.ReplyInvalid,
		"\n", protocol.ReplyInvalid,
		"x\r\n", protocol.ReplyBound,
	)
	require.Equal(t, []int{1, 1}, env.pulses)
}

func TestSessionNoSecretBeforeUnlock(t *testing.T) {
	env := newSessionTestEnv(t, 1, 2).
		input("q\r\n", "x\r\n", "q\r\n", "u\r\n", "g33\r\n", "q\r\n")
	require.NoError(t, env.run())
	require.NotContains(t, env.stream.output.String(), vault.Secret)
	require.NotContains(t, env.eventTypes(), events.TypeSecretRead)
	require.NotContains(t, env.eventTypes(), events.TypeUnlocked)
}

func TestSessionUnlockedInvalidCommand(t *testing.T) {
	env := newSessionTestEnv(t, 0, 0).
		input("x\r\n", "g11\r\n", "x\r\n", "g11\r\n", "u\r\n")
	require.NoError(t, env.run())
	env.expectOutput(
		"x\r\n", protocol.ReplyBound,
		"g11\r\n", protocol.ReplyUnlocked,
		"x\r\n", protocol.ReplyInvalid,
		"g11\r\n", protocol.ReplyInvalid,
		"u\r\n",
	)
}

func TestSessionTransportErrorRecovered(t *testing.T) {
	overrun := errors.New("overrun")
	env := newSessionTestEnv(t, 0, 0).
		input("x", overrun, "x\r\n", "g1", overrun, "g11\r\n")
	require.NoError(t, env.run())
	env.expectOutput(
		"x", protocol.ReplyInvalid,
		"x\r\n", protocol.ReplyBound,
		"g1", protocol.ReplyInvalid,
		"g11\r\n", protocol.ReplyUnlocked,
	)
}

func TestSessionWrongTerminatorCostsOneLine(t *testing.T) {
	env := newSessionTestEnv(t, 1, 1).
		input("x\r\r\n", "x\r\n", "g22\r\rX\n", "g22\r\n")
	require.NoError(t, env.run())
	env.expectOutput(
		"x\r\r\n", protocol.ReplyInvalid,
		"x\r\n", protocol.ReplyBound,
		"g22\r\rX\n", protocol.ReplyInvalid,
		"g22\r\n", protocol.ReplyUnlocked,
	)
	require.Equal(t, []events.Type{
		events.TypeInvalid, events.TypeBound, events.TypeInvalid, events.TypeUnlocked,
	}, env.eventTypes())
}

// failingStream fails every read.
type failingStream struct {
	err    error
	reads  int
	output bytes.Buffer
}

func (s *failingStream) Read(p []byte) (int, error) {
	s.reads++
	return 0, s.err
}

func (s *failingStream) Write(p []byte) (int, error) {
	return s.output.Write(p)
}

func TestSessionPersistentTransportError(t *testing.T) {
	unplugged := errors.New("port unplugged")
	stream := &failingStream{err: unplugged}
	var sleeps []time.Duration
	ctl := New(stream, &seqSource{}, nil)
	ctl.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	err := ctl.Run(context.Background())
	require.ErrorIs(t, err, unplugged)
	require.Equal(t, DefaultMaxTransportErrors, stream.reads)
	require.Equal(t, strings.Repeat(protocol.ReplyInvalid, DefaultMaxTransportErrors-1), stream.output.String())
	require.Len(t, sleeps, DefaultMaxTransportErrors-1)
	for _, d := range sleeps {
		require.Equal(t, RetryDelay, d)
	}

	stream = &failingStream{err: unplugged}
	ctl = New(stream, &seqSource{}, nil)
	ctl.Sleep = func(time.Duration) {}
	ctl.MaxTransportErrors = 1
	require.ErrorIs(t, ctl.Run(context.Background()), unplugged)
	require.Equal(t, 1, stream.reads)
	require.Empty(t, stream.output.String())
}

func TestSessionTransportErrorsResetOnData(t *testing.T) {
	overrun := errors.New("overrun")
	env := newSessionTestEnv(t, 0, 0)
	env.ctl.MaxTransportErrors = 2
	env.input(overrun, "x\r\n", overrun, "g11\r\n", overrun, "u\r\n")
	require.NoError(t, env.run())
	env.expectOutput(
		protocol.ReplyInvalid,
		"x\r\n", protocol.ReplyBound,
		protocol.ReplyInvalid,
		"g11\r\n", protocol.ReplyUnlocked,
		protocol.ReplyInvalid,
		"u\r\n",
	)
}

func TestSessionEntropyFailure(t *testing.T) {
	src, err := pin.NewCryptoSource(bytes.NewReader([]byte{0, 0, 0, 0}))
	require.NoError(t, err)
	stream := &testStream{input: []interface{}{"x\r\n", "g11\r\n"}}
	ctl := New(stream, src, nil)
	err = ctl.Run(context.Background())
	require.ErrorIs(t, err, pin.ErrEntropyUnavailable)
	require.Equal(t, "x\r\n", stream.output.String())
}

func TestSessionTerminalErrors(t *testing.T) {
	env := newSessionTestEnv(t).input(io.ErrClosedPipe)
	err := env.run()
	require.ErrorIs(t, err, io.ErrClosedPipe)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env = newSessionTestEnv(t).input("x\r\n")
	require.ErrorIs(t, env.ctl.Run(ctx), context.Canceled)
	require.Empty(t, env.stream.output.String())
}

func TestControllerDefaults(t *testing.T) {
	stream := &testStream{input: []interface{}{"x\r\n"}}
	ctl := &Controller{Stream: stream, Rand: &seqSource{values: []uint32{7, 8}}}
	require.NoError(t, ctl.Run(context.Background()))
	require.Equal(t, pin.DefaultRange, ctl.Range)
	require.Equal(t, "x\r\n"+protocol.ReplyBound, stream.output.String())
}

func TestIsTerminal(t *testing.T) {
	require.True(t, IsTerminal(io.EOF))
	require.True(t, IsTerminal(&protocol.TransportError{Err: io.EOF}))
	require.True(t, IsTerminal(context.Canceled))
	require.False(t, IsTerminal(errors.New("overrun")))
	require.False(t, IsTerminal(protocol.ErrInvalidCommand))
	require.False(t, IsTerminal(&protocol.TransportError{Err: &serial.PortError{}}))
}
