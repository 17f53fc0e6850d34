package transport

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.minnow.dev/ninep/wire"
)

// TestFramingSplitsTwoMessages verifies property 10 from spec.md §8:
// feeding the bytes of two concatenated messages, one byte at a time,
// fires the receive callback exactly twice.
func TestFramingSplitsTwoMessages(t *testing.T) {
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	require.NoError(t, enc.Tversion(8192, "9P2000"))
	require.NoError(t, enc.Tclunk(1, 0))
	require.NoError(t, enc.Flush())

	r := &byteAtATimeReader{data: buf.Bytes()}
	framer := NewStreamFramer(r, wire.MinBufSize)

	var count int
	err := framer.Run(func(msg []byte) { count++ })
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFramingDropsOversizeMessage(t *testing.T) {
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	require.NoError(t, enc.Twrite(1, 0, 0, make([]byte, 4096)))
	require.NoError(t, enc.Flush())

	framer := NewStreamFramer(bytes.NewReader(buf.Bytes()), 64)
	var count int
	framer.Run(func(msg []byte) { count++ })
	assert.Equal(t, 0, count)
}

// TestFramingResyncsAfterOversizeMessage verifies spec.md §4.4's framing
// rule: an oversized frame is dropped and the adapter resyncs, it does
// not tear down the rest of the connection.
func TestFramingResyncsAfterOversizeMessage(t *testing.T) {
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	require.NoError(t, enc.Twrite(1, 0, 0, make([]byte, 4096)))
	require.NoError(t, enc.Tclunk(2, 0))
	require.NoError(t, enc.Flush())

	framer := NewStreamFramer(bytes.NewReader(buf.Bytes()), 64)
	var got []byte
	err := framer.Run(func(msg []byte) { got = msg })
	assert.NoError(t, err)
	require.NotNil(t, got)

	tc := wire.Tclunk(got)
	assert.EqualValues(t, 2, tc.Tag())
}

func TestPipeListenerRoundTrip(t *testing.T) {
	l := &PipeListener{}
	defer l.Close()

	serverSide := make(chan []byte, 1)
	go func() {
		conn, err := l.Accept()
		require.NoError(t, err)
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		serverSide <- buf[:n]
	}()

	client, err := l.Dial()
	require.NoError(t, err)
	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)

	got := <-serverSide
	assert.Equal(t, "hello", string(got))
}

// byteAtATimeReader yields one byte per Read call, forcing the framer
// to exercise its reassembly path instead of getting lucky with a
// single whole-buffer read.
type byteAtATimeReader struct {
	data []byte
	pos  int
}

func (r *byteAtATimeReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}
