package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/pinvault/pkg/display"
	"github.com/robotalks/pinvault/pkg/events"
	"github.com/robotalks/pinvault/pkg/events/mqtt"
	fx "github.com/robotalks/pinvault/pkg/framework"
	"github.com/robotalks/pinvault/pkg/pin"
	"github.com/robotalks/pinvault/pkg/session"
	"github.com/robotalks/pinvault/pkg/transport"
)

// Server serves vault sessions on the streams accepted by Listener,
// one stream at a time.
type Server struct {
	Device   string
	Listener transport.Listener
	Rand     pin.Source
	Display  display.Pulser
	Timing   display.Timing
	Range    pin.Range
	Observer events.Observer
	// Sleep is passed to controllers, time.Sleep if nil.
	Sleep func(time.Duration)

	publisher *mqtt.Publisher
}

// NewServer creates a Server from config. It fails if the entropy source
// is unusable.
func (c *Config) NewServer() (*Server, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	rnd, err := pin.NewCryptoSource(nil)
	if err != nil {
		return nil, err
	}
	s := &Server{
		Device:   c.ID,
		Rand:     rnd,
		Timing:   c.Timing(),
		Range:    c.Range(),
		Observer: events.Nop,
	}
	if s.Display, err = c.newDisplay(); err != nil {
		return nil, err
	}
	if c.EventsURL != "" {
		meta := mqtt.Meta{
			Description: "PIN vault",
			Labels: map[string]string{
				"listen": c.Listen,
				"digits": fmt.Sprintf("%d..%d", c.DigitMin, c.DigitMax),
			},
		}
		if s.publisher, err = mqtt.NewPublisher(c.EventsURL, c.ID, meta); err != nil {
			return nil, fmt.Errorf("create MQTT publisher error: %w", err)
		}
		s.Observer = s.publisher
	}
	if s.Listener, err = transport.Listen(context.Background(), c.Listen); err != nil {
		return nil, fmt.Errorf("listen %s: %w", c.Listen, err)
	}
	return s, nil
}

// MustNewServer creates Server and fails on error.
func (c *Config) MustNewServer() *Server {
	s, err := c.NewServer()
	if err != nil {
		log.Fatalln(err)
	}
	return s
}

func (c *Config) newDisplay() (display.Pulser, error) {
	switch {
	case c.LED == "", c.LED == LEDNone:
		return nil, nil
	case c.LED == LEDLog:
		return &display.LogLED{Name: c.ID}, nil
	case strings.HasPrefix(c.LED, LEDSysfs):
		led, err := display.OpenSysfsLED("", strings.TrimPrefix(c.LED, LEDSysfs))
		if err != nil {
			return nil, err
		}
		return led, nil
	}
	return nil, fmt.Errorf("unknown LED %q", c.LED)
}

// Run implements Runnable. It stops when ctx is done or the listener
// has no more streams.
func (s *Server) Run(ctx context.Context) error {
	runner := fx.NewRunnerWith(ctx)
	if s.publisher != nil {
		runner.Go(fx.NamedRun("events", s.publisher))
	}
	runner.Go(fx.NamedRun("sessions", fx.RunFunc(s.Serve)))
	return runner.Wait()
}

// Serve accepts streams and runs sessions on them. It stops if the
// entropy source fails, as no more PINs can be generated.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.Listener.Close()
	})
	defer stop()
	defer s.Listener.Close()
	glog.Infof("device %s serving on %s", s.Device, s.Listener.Addr())
	for {
		stream, err := s.Listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		if err := s.handle(ctx, stream); errors.Is(err, pin.ErrEntropyUnavailable) {
			return err
		}
	}
}

// handle runs sessions on stream until it ends and returns the reason.
func (s *Server) handle(ctx context.Context, stream io.ReadWriteCloser) error {
	ctl := &session.Controller{
		Stream:   stream,
		Rand:     s.Rand,
		Display:  s.Display,
		Timing:   s.Timing,
		Range:    s.Range,
		Observer: s.Observer,
		Device:   s.Device,
		Sleep:    s.Sleep,
	}
	s.emit(ctx, events.TypeConnected)
	err := fx.RunWithContextCloser(ctx, stream, func() error {
		return ctl.Run(ctx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		glog.Warningf("stream closed: %v", err)
	} else {
		glog.Info("stream closed")
	}
	s.emit(ctx, events.TypeDisconnected)
	return err
}

func (s *Server) emit(ctx context.Context, typ events.Type) {
	if s.Observer == nil {
		return
	}
	s.Observer.Observe(ctx, events.Event{
		Type:   typ,
		Device: s.Device,
		Time:   time.Now(),
	})
}
