// Package console provides the operator shell for a vault device.
package console

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/pinvault/pkg/pin"
	"github.com/robotalks/pinvault/pkg/protocol"
	"github.com/robotalks/pinvault/pkg/transport"
)

// Shell provides ishell backed interactive console.
type Shell struct {
	Interactive bool
	// URL is the stream connected on start, if not empty.
	URL string
	// Settle is how long to wait for device output before exiting in
	// evaluation only mode.
	Settle time.Duration
	// Output receives the device output, the shell if nil.
	Output io.Writer

	Shell *ishell.Shell
	Conn  *Conn
}

// Conn is a connection to a device, whose output is copied
// in background.
type Conn struct {
	URL    string
	Stream io.ReadWriteCloser

	done chan struct{}
	lock sync.Mutex
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	connectURL = os.Getenv("VAULT_URL")
	settle     = 500 * time.Millisecond

	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&BindCmd,
		&UnlockCmd,
		&QueryCmd,
		&ReleaseCmd,
		&RawCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.StringVar(&connectURL, "url", connectURL, "Device stream URL, e.g. tcp://127.0.0.1:7070")
	flag.DurationVar(&settle, "settle", settle, "Wait for device output before exit with -e.")
}

// New creates a new shell.
func New() *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		URL:         connectURL,
		Settle:      settle,
		Shell:       ishell.New(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Connect opens the stream at url, replacing the current connection.
func (s *Shell) Connect(url string) error {
	stream, err := transport.Dial(context.Background(), url)
	if err != nil {
		return err
	}
	out := s.Output
	if out == nil {
		out = shellWriter{s.Shell}
	}
	s.Disconnect()
	s.Conn = NewConn(url, stream, out)
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", url))
	return nil
}

// Disconnect closes the current connection.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.Close()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Send writes a command frame to the device.
func (s *Shell) Send(cmd protocol.Command) error {
	if s.Conn == nil {
		return fmt.Errorf("not connected")
	}
	return s.Conn.Send(cmd.Bytes())
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.URL != "" {
		if err := s.Connect(s.URL); err != nil {
			log.Fatalf("connect %q failed: %v", s.URL, err)
		}
		defer s.Disconnect()
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		if s.Conn != nil {
			s.Conn.Wait(s.Settle)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// NewConn starts copying the device output of stream to out.
func NewConn(url string, stream io.ReadWriteCloser, out io.Writer) *Conn {
	c := &Conn{URL: url, Stream: stream, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		if _, err := io.Copy(out, stream); err != nil {
			glog.V(1).Infof("%s: %v", url, err)
		}
	}()
	return c
}

// Send writes raw bytes to the device.
func (c *Conn) Send(b []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, err := c.Stream.Write(b)
	return err
}

// Wait waits for the device to close the stream, up to timeout.
func (c *Conn) Wait(timeout time.Duration) bool {
	select {
	case <-c.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close closes the stream and waits for the output copier.
func (c *Conn) Close() error {
	err := c.Stream.Close()
	<-c.done
	return err
}

type shellWriter struct {
	sh *ishell.Shell
}

func (w shellWriter) Write(b []byte) (int, error) {
	w.sh.Print(string(b))
	return len(b), nil
}

// ParsePIN parses PIN digits given as "12" or "1 2".
// Digits outside the device range are allowed, the device rejects them.
func ParsePIN(args []string) (p pin.PIN, err error) {
	digits := strings.Join(args, "")
	if len(digits) != pin.Digits {
		return p, fmt.Errorf("expect %d digits, got %q", pin.Digits, digits)
	}
	for n := 0; n < pin.Digits; n++ {
		ch := digits[n]
		if ch < '0' || ch > '9' {
			return p, fmt.Errorf("invalid digit %q", ch)
		}
		p[n] = ch - '0'
	}
	return p, nil
}

// RawFrame appends CRLF to text unless it already ends with a line feed.
func RawFrame(text string) []byte {
	if strings.HasSuffix(text, "\n") {
		return []byte(text)
	}
	return []byte(text + "\r\n")
}

func sendCmd(kind protocol.Kind) func(c *ishell.Context) {
	return MustBeConnected(func(c *ishell.Context) {
		if err := ShellFrom(c).Send(protocol.Command{Kind: kind}); err != nil {
			c.Err(err)
		}
	})
}

var (
	// ConnectCmd connects a device.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "URL",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("URL expected"))
				return
			}
			if err := ShellFrom(c).Connect(c.Args[0]); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current device.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// BindCmd binds the vault.
	BindCmd = ishell.Cmd{
		Name:    "bind",
		Aliases: []string{"x"},
		Help:    "generate a PIN and show it on the device LED",
		Func:    sendCmd(protocol.KindBind),
	}

	// UnlockCmd tries a PIN.
	UnlockCmd = ishell.Cmd{
		Name:    "unlock",
		Aliases: []string{"g"},
		Help:    "D1 D2",
		Func: MustBeConnected(func(c *ishell.Context) {
			p, err := ParsePIN(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err := ShellFrom(c).Send(protocol.Command{Kind: protocol.KindUnlock, PIN: p}); err != nil {
				c.Err(err)
			}
		}),
	}

	// QueryCmd reads the secret.
	QueryCmd = ishell.Cmd{
		Name:    "query",
		Aliases: []string{"q"},
		Help:    "read the secret of an unlocked vault",
		Func:    sendCmd(protocol.KindQuery),
	}

	// ReleaseCmd ends the session.
	ReleaseCmd = ishell.Cmd{
		Name:    "release",
		Aliases: []string{"u"},
		Help:    "release the vault for a new bind",
		Func:    sendCmd(protocol.KindRelease),
	}

	// RawCmd sends arbitrary text.
	RawCmd = ishell.Cmd{
		Name:    "raw",
		Aliases: []string{"r"},
		Help:    "TEXT",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ShellFrom(c).Conn.Send(RawFrame(strings.Join(c.Args, " "))); err != nil {
				c.Err(err)
			}
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New().Run(flag.Args()...)
}
