package protocol

import (
	"context"
	"io"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/pinvault/pkg/pin"
)

// Frame is the outcome of reading one frame.
type Frame struct {
	// Raw contains every byte consumed for the frame.
	Raw []byte
	// Command is valid only if ReadFrame returns no error.
	Command Command
}

// Reader reads frames from a byte stream.
type Reader struct {
	Stream io.Reader

	parser Parser
	buf    [1]byte
}

// NewReader creates a Reader over a stream.
func NewReader(stream io.Reader, r pin.Range) *Reader {
	return &Reader{Stream: stream, parser: Parser{Range: r}}
}

// ReadFrame reads bytes until a frame of the phase is complete.
//
// It returns ErrInvalidCommand for a rejected frame and a *TransportError
// if the stream fails, in which case Raw holds the partial frame.
// A read returning no data and no error, or a timeout error, is retried
// after checking ctx.
func (r *Reader) ReadFrame(ctx context.Context, phase Phase) (f Frame, err error) {
	r.parser.Reset(phase)
	for {
		if err = ctx.Err(); err != nil {
			return
		}
		n, rerr := r.Stream.Read(r.buf[:])
		if n > 0 {
			f.Raw = append(f.Raw, r.buf[0])
			if pr := r.parser.Parse(r.buf[0]); pr.Done {
				glog.V(2).Infof("frame %q phase=%s err=%v", f.Raw, phase, pr.Err)
				// rerr returned with the last byte is not lost: a stream
				// reports it again on the next read.
				f.Command, err = pr.Command, pr.Err
				return
			}
		}
		if rerr != nil {
			if os.IsTimeout(rerr) {
				continue
			}
			err = &TransportError{Err: rerr}
			return
		}
	}
}
