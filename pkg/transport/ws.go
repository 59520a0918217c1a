package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// wsStream hands a websocket connection to Accept and keeps the HTTP
// handler alive until the stream is closed.
type wsStream struct {
	*websocket.Conn
	once sync.Once
	done chan struct{}
}

func (s *wsStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.Conn.Close()
}

type wsListener struct {
	ln       net.Listener
	server   *http.Server
	path     string
	streamCh chan *wsStream
	closeCh  chan struct{}
	once     sync.Once
}

func listenWS(ep Endpoint) (*wsListener, error) {
	ln, err := net.Listen("tcp", ep.Address)
	if err != nil {
		return nil, err
	}
	l := &wsListener{
		ln:       ln,
		path:     ep.Path,
		streamCh: make(chan *wsStream),
		closeCh:  make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.Handle(ep.Path, websocket.Handler(l.serve))
	l.server = &http.Server{Handler: mux}
	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Errorf("websocket server: %v", err)
		}
	}()
	return l, nil
}

func (l *wsListener) serve(conn *websocket.Conn) {
	conn.PayloadType = websocket.BinaryFrame
	s := &wsStream{Conn: conn, done: make(chan struct{})}
	select {
	case l.streamCh <- s:
	case <-l.closeCh:
		conn.Close()
		return
	}
	select {
	case <-s.done:
	case <-l.closeCh:
	}
}

func (l *wsListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case s := <-l.streamCh:
		return s, nil
	case <-l.closeCh:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *wsListener) Addr() string {
	return "ws://" + l.ln.Addr().String() + l.path
}

func (l *wsListener) Close() error {
	l.once.Do(func() { close(l.closeCh) })
	return l.server.Close()
}

func dialWS(ep Endpoint) (io.ReadWriteCloser, error) {
	conn, err := websocket.Dial(ep.String(), "", "http://"+ep.Address+"/")
	if err != nil {
		return nil, err
	}
	conn.PayloadType = websocket.BinaryFrame
	return conn, nil
}
