package pin

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrEntropyUnavailable indicates the random source can't be used.
var ErrEntropyUnavailable = errors.New("entropy source unavailable")

// Source provides unpredictable 32-bit values.
type Source interface {
	Uint32() uint32
}

// Generate draws each digit independently from src.
//
// A digit is computed as draw % r.Size() + r.Min, so values are very
// slightly biased towards the low end of the range whenever Size doesn't
// divide 2^32. For a 4-value range the bias is zero; for others it is
// below 2^-28 and accepted for a locally displayed PIN.
func Generate(src Source, r Range) PIN {
	var p PIN
	size := r.Size()
	for i := range p {
		p[i] = uint8(src.Uint32()%size) + r.Min
	}
	return p
}

// GenerateChecked is Generate reporting an entropy failure of src, signaled
// by a panic with ErrEntropyUnavailable, as an error. Other panics are
// propagated.
func GenerateChecked(src Source, r Range) (p PIN, err error) {
	defer func() {
		if v := recover(); v != nil {
			if e, ok := v.(error); ok && errors.Is(e, ErrEntropyUnavailable) {
				p, err = PIN{}, e
				return
			}
			panic(v)
		}
	}()
	return Generate(src, r), nil
}

// CryptoSource reads values from a cryptographic random reader.
type CryptoSource struct {
	reader io.Reader
	buf    [4]byte
	lock   sync.Mutex
}

// NewCryptoSource creates a CryptoSource from rd, or crypto/rand.Reader if
// rd is nil. The reader is probed once so a missing entropy source is
// reported here rather than when a PIN is drawn.
func NewCryptoSource(rd io.Reader) (*CryptoSource, error) {
	if rd == nil {
		rd = rand.Reader
	}
	s := &CryptoSource{reader: rd}
	if _, err := io.ReadFull(rd, s.buf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	return s, nil
}

// Uint32 implements Source. It panics with ErrEntropyUnavailable if the
// reader fails after a successful probe. Use GenerateChecked to get the
// failure as an error; an unrecovered panic ends the process.
func (s *CryptoSource) Uint32() uint32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, err := io.ReadFull(s.reader, s.buf[:]); err != nil {
		panic(fmt.Errorf("%w: %v", ErrEntropyUnavailable, err))
	}
	return binary.LittleEndian.Uint32(s.buf[:])
}
