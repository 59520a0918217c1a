package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

type tcpListener struct {
	ln *net.TCPListener
}

func listenTCP(ep Endpoint) (*tcpListener, error) {
	ln, err := net.Listen("tcp", ep.Address)
	if err != nil {
		return nil, err
	}
	return &tcpListener{ln: ln.(*net.TCPListener)}, nil
}

func (l *tcpListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	stop := context.AfterFunc(ctx, func() {
		l.ln.SetDeadline(time.Now())
	})
	defer stop()
	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			l.ln.SetDeadline(time.Time{})
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return conn, nil
}

func (l *tcpListener) Addr() string {
	return "tcp://" + l.ln.Addr().String()
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}

func dialTCP(ctx context.Context, ep Endpoint) (io.ReadWriteCloser, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", ep.Address)
}
