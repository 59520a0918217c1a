package transport

import (
	"context"
	"io"
	"os"
	"sync"
)

type stdioStream struct {
	io.Reader
	io.Writer
}

func (stdioStream) Close() error { return nil }

// stdioListener serves a single stream over stdin/stdout.
type stdioListener struct {
	stream   io.ReadWriteCloser
	lock     sync.Mutex
	accepted bool
}

func newStdioListener() *stdioListener {
	return &stdioListener{stream: stdioStream{Reader: os.Stdin, Writer: os.Stdout}}
}

func (l *stdioListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.accepted {
		return nil, ErrClosed
	}
	l.accepted = true
	return l.stream, nil
}

func (l *stdioListener) Addr() string {
	return SchemeStdio + ":"
}

func (l *stdioListener) Close() error {
	return nil
}
