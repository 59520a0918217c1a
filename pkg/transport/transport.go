// Package transport opens the byte streams a vault is operated over.
//
// Streams are addressed by URL:
//
//	serial:///dev/ttyUSB0?baud=115200
//	tcp://127.0.0.1:7070
//	ws://127.0.0.1:8080/vault
//	stdio:
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"
)

// Supported URL schemes.
const (
	SchemeSerial = "serial"
	SchemeTCP    = "tcp"
	SchemeWS     = "ws"
	SchemeStdio  = "stdio"
)

// DefaultBaud is the serial baud rate if not specified.
const DefaultBaud = 115200

// DefaultReadTimeout is the serial read timeout, which bounds how long a
// blocked read delays cancellation.
const DefaultReadTimeout = 200 * time.Millisecond

// ErrClosed is returned by Accept on a closed Listener.
var ErrClosed = errors.New("listener closed")

// Endpoint is a parsed stream URL.
type Endpoint struct {
	Scheme string
	// Address is the device path for serial, host:port for tcp and ws.
	Address string
	// Path is the HTTP path for ws.
	Path string
	Baud int
}

// Parse parses a stream URL.
func Parse(rawURL string) (ep Endpoint, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ep, err
	}
	ep.Scheme = u.Scheme
	switch u.Scheme {
	case SchemeSerial:
		if ep.Address = u.Path; ep.Address == "" {
			ep.Address = u.Opaque
		}
		if ep.Address == "" {
			return ep, fmt.Errorf("serial device not specified: %q", rawURL)
		}
		ep.Baud = DefaultBaud
		if val := u.Query().Get("baud"); val != "" {
			if ep.Baud, err = strconv.Atoi(val); err != nil || ep.Baud <= 0 {
				return ep, fmt.Errorf("invalid baud rate: %q", val)
			}
		}
	case SchemeTCP, SchemeWS:
		if ep.Address = u.Host; ep.Address == "" {
			return ep, fmt.Errorf("address not specified: %q", rawURL)
		}
		if ep.Path = u.Path; ep.Path == "" {
			ep.Path = "/"
		}
	case SchemeStdio:
	default:
		return ep, fmt.Errorf("unknown stream URL scheme: %q", u.Scheme)
	}
	return ep, nil
}

// String formats the endpoint as URL.
func (ep Endpoint) String() string {
	switch ep.Scheme {
	case SchemeSerial:
		return fmt.Sprintf("serial://%s?baud=%d", ep.Address, ep.Baud)
	case SchemeTCP:
		return "tcp://" + ep.Address
	case SchemeWS:
		return "ws://" + ep.Address + ep.Path
	}
	return ep.Scheme + ":"
}

// Listener provides the device side streams, one at a time.
type Listener interface {
	io.Closer
	// Accept waits for the next stream.
	Accept(context.Context) (io.ReadWriteCloser, error)
	// Addr describes where the listener is reachable.
	Addr() string
}

// Listen creates a Listener for the URL.
func Listen(ctx context.Context, rawURL string) (Listener, error) {
	ep, err := Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch ep.Scheme {
	case SchemeSerial:
		return &serialListener{ep: ep}, nil
	case SchemeTCP:
		return listenTCP(ep)
	case SchemeWS:
		return listenWS(ep)
	default:
		return newStdioListener(), nil
	}
}

// Dial opens the operator side of a stream.
func Dial(ctx context.Context, rawURL string) (io.ReadWriteCloser, error) {
	ep, err := Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch ep.Scheme {
	case SchemeSerial:
		return openSerial(ep, 0)
	case SchemeTCP:
		return dialTCP(ctx, ep)
	case SchemeWS:
		return dialWS(ep)
	default:
		return nil, fmt.Errorf("can't dial %q", rawURL)
	}
}
