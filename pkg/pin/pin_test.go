package pin

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type seqSource struct {
	values []uint32
}

func (s *seqSource) Uint32() uint32 {
	v := s.values[0]
	s.values = s.values[1:]
	return v
}

func TestGenerate(t *testing.T) {
	testCases := []struct {
		name   string
		draws  []uint32
		rng    Range
		expect PIN
	}{
		{"zeros", []uint32{0, 0}, DefaultRange, PIN{1, 1}},
		{"wrap", []uint32{3, 4}, DefaultRange, PIN{4, 1}},
		{"large draws", []uint32{0xffffffff, 0xfffffffe}, DefaultRange, PIN{4, 3}},
		{"independent digits", []uint32{1, 2}, DefaultRange, PIN{2, 3}},
		{"offset range", []uint32{0, 5}, Range{Min: 3, Max: 7}, PIN{3, 3}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := &seqSource{values: tc.draws}
			p := Generate(src, tc.rng)
			require.Equal(t, tc.expect, p)
			require.Empty(t, src.values)
		})
	}
}

func TestGenerateStaysInRange(t *testing.T) {
	src, err := NewCryptoSource(nil)
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		require.True(t, DefaultRange.Valid(Generate(src, DefaultRange)))
	}
}

func TestRange(t *testing.T) {
	require.Equal(t, uint32(4), DefaultRange.Size())
	require.NoError(t, DefaultRange.Validate())
	require.NoError(t, Range{Min: 1, Max: 9}.Validate())
	for _, r := range []Range{{0, 4}, {5, 4}, {1, 10}} {
		require.ErrorIs(t, r.Validate(), ErrInvalidRange)
	}
	require.False(t, DefaultRange.Contains(0))
	require.True(t, DefaultRange.Contains(1))
	require.True(t, DefaultRange.Contains(4))
	require.False(t, DefaultRange.Contains(5))
	require.False(t, DefaultRange.Valid(PIN{2, 9}))
	require.Equal(t, "24", PIN{2, 4}.String())
}

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, errors.New("no trng") }

type panicSource struct{ v interface{} }

func (s panicSource) Uint32() uint32 { panic(s.v) }

func TestGenerateChecked(t *testing.T) {
	p, err := GenerateChecked(&seqSource{values: []uint32{1, 2}}, DefaultRange)
	require.NoError(t, err)
	require.Equal(t, PIN{2, 3}, p)

	src, err := NewCryptoSource(bytes.NewReader([]byte{0, 0, 0, 0, 1, 0, 0, 0}))
	require.NoError(t, err)
	_, err = GenerateChecked(src, DefaultRange)
	require.ErrorIs(t, err, ErrEntropyUnavailable)

	require.Panics(t, func() {
		GenerateChecked(panicSource{v: "boom"}, DefaultRange)
	})
}

func TestCryptoSource(t *testing.T) {
	_, err := NewCryptoSource(failReader{})
	require.ErrorIs(t, err, ErrEntropyUnavailable)

	src, err := NewCryptoSource(bytes.NewReader([]byte{0, 0, 0, 0, 1, 0, 0, 0}))
	require.NoError(t, err)
	require.Equal(t, uint32(1), src.Uint32())
	require.Panics(t, func() { src.Uint32() })

	_, err = NewCryptoSource(bytes.NewReader([]byte{1}))
	require.ErrorIs(t, err, ErrEntropyUnavailable)
	require.False(t, errors.Is(err, io.EOF))
}
