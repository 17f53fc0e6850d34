package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.minnow.dev/ninep/fs"
	"go.minnow.dev/ninep/server"
	"go.minnow.dev/ninep/transport"
	"go.minnow.dev/ninep/wire"
)

type memNode struct {
	name string
	dir  bool
	path uint64
}

type memFS struct{ root *memNode }

func newMemFS() *memFS { return &memFS{root: &memNode{name: "/", dir: true, path: 1}} }

func (m *memFS) Root(context.Context) (fs.Node, error)                         { return m.root, nil }
func (m *memFS) Walk(context.Context, fs.Node, string) (fs.Node, error)        { return nil, nil }
func (m *memFS) Open(context.Context, fs.Node, uint8) error                    { return nil }
func (m *memFS) Read(context.Context, fs.Node, int64, []byte, string) (int, error) {
	return 0, nil
}
func (m *memFS) Write(context.Context, fs.Node, int64, []byte, string) (int, error) {
	return 0, nil
}
func (m *memFS) Stat(_ context.Context, node fs.Node) (fs.Stat, error) {
	n := node.(*memNode)
	return fs.Stat{Qid: fs.Qid{Type: uint8(wire.QTDIR), Path: n.path}, Mode: wire.DMDIR | 0755, Name: n.name}, nil
}
func (m *memFS) Create(context.Context, fs.Node, string, uint32, uint8, string) (fs.Node, error) {
	return nil, fs.ErrNotSupported
}
func (m *memFS) Remove(context.Context, fs.Node, string) error { return nil }
func (m *memFS) Clunk(context.Context, fs.Node) error          { return nil }

func TestPoolServesOneSessionAndFreesSlotOnDisconnect(t *testing.T) {
	var pl transport.PipeListener
	pool := New(newMemFS(), server.Config{}, 2)

	serveErr := make(chan error, 1)
	go func() { serveErr <- pool.Serve(context.Background(), &pl) }()

	conn, err := pl.Dial()
	require.NoError(t, err)

	var req bytes.Buffer
	enc := wire.NewEncoder(&req)
	require.NoError(t, enc.Tversion(8192, "9P2000"))
	require.NoError(t, enc.Flush())
	_, err = conn.Write(req.Bytes())
	require.NoError(t, err)

	dec := wire.NewDecoderSize(conn, wire.MinBufSize)
	require.True(t, dec.Next())
	rv := dec.Msg().(wire.Rversion)
	assert.Equal(t, "9P2000", rv.Version())

	assert.Equal(t, "connected", pool.Slots()[0].State())

	conn.Close()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "free", pool.Slots()[0].State())

	require.NoError(t, pool.Stop())
	<-serveErr
}

// TestPoolRepliesRerrorOnMalformedMessage verifies the full
// transport -> session -> dispatcher path: a well-framed but
// content-invalid T-message (here, an unknown message type) must
// come back as an Rerror carrying its original tag, never be dropped
// silently.
func TestPoolRepliesRerrorOnMalformedMessage(t *testing.T) {
	var pl transport.PipeListener
	pool := New(newMemFS(), server.Config{}, 2)

	serveErr := make(chan error, 1)
	go func() { serveErr <- pool.Serve(context.Background(), &pl) }()

	conn, err := pl.Dial()
	require.NoError(t, err)
	defer conn.Close()

	var req bytes.Buffer
	enc := wire.NewEncoder(&req)
	require.NoError(t, enc.Tversion(8192, "9P2000"))
	require.NoError(t, enc.Flush())
	_, err = conn.Write(req.Bytes())
	require.NoError(t, err)

	dec := wire.NewDecoderSize(conn, wire.MinBufSize)
	require.True(t, dec.Next())
	_, ok := dec.Msg().(wire.Rversion)
	require.True(t, ok)

	// Hand-build a well-framed message with an invalid type byte and
	// tag 42; no encoder helper exists for an intentionally bad type.
	bad := make([]byte, 8)
	binary.LittleEndian.PutUint32(bad[:4], 8)
	bad[4] = 0xFE
	binary.LittleEndian.PutUint16(bad[5:7], 42)
	_, err = conn.Write(bad)
	require.NoError(t, err)

	require.True(t, dec.Next())
	re, ok := dec.Msg().(wire.Rerror)
	require.True(t, ok)
	assert.EqualValues(t, 42, re.Tag())
	assert.Equal(t, "operation not supported", re.Error())

	require.NoError(t, pool.Stop())
	<-serveErr
}
