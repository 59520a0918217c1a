package transport

import (
	"context"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

func openSerial(ep Endpoint, readTimeout time.Duration) (serial.Port, error) {
	port, err := serial.Open(ep.Address, &serial.Mode{
		BaudRate: ep.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if readTimeout > 0 {
		if err = port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, err
		}
	}
	return port, nil
}

// serialListener reopens the port for every Accept. Reads time out
// periodically, reported as empty reads.
type serialListener struct {
	ep     Endpoint
	lock   sync.Mutex
	closed bool
}

func (l *serialListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return openSerial(l.ep, DefaultReadTimeout)
}

func (l *serialListener) Addr() string {
	return l.ep.String()
}

func (l *serialListener) Close() error {
	l.lock.Lock()
	l.closed = true
	l.lock.Unlock()
	return nil
}
