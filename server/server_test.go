package server

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.minnow.dev/ninep/fs"
	"go.minnow.dev/ninep/wire"
)

// memNode is the node type memFS hands out: a pointer so that equal
// files compare equal and distinct files never alias.
type memNode struct {
	name     string
	dir      bool
	data     []byte
	children []*memNode
	path     uint64
}

// memFS is a tiny in-memory fs.FileSystem double used to exercise the
// dispatcher without pulling in the sysfs package.
type memFS struct {
	root *memNode
}

func newMemFS() *memFS {
	child := &memNode{name: "greeting", data: []byte("hello"), path: 2}
	root := &memNode{name: "/", dir: true, path: 1, children: []*memNode{child}}
	return &memFS{root: root}
}

func (m *memFS) Root(context.Context) (fs.Node, error) { return m.root, nil }

func (m *memFS) Walk(_ context.Context, parent fs.Node, name string) (fs.Node, error) {
	p := parent.(*memNode)
	for _, c := range p.children {
		if c.name == name {
			return c, nil
		}
	}
	return nil, nil
}

func (m *memFS) Open(context.Context, fs.Node, uint8) error { return nil }

func (m *memFS) Read(_ context.Context, node fs.Node, offset int64, buf []byte, _ string) (int, error) {
	n := node.(*memNode)
	if offset >= int64(len(n.data)) {
		return 0, nil
	}
	return copy(buf, n.data[offset:]), nil
}

func (m *memFS) Write(_ context.Context, node fs.Node, offset int64, data []byte, _ string) (int, error) {
	n := node.(*memNode)
	end := offset + int64(len(data))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[offset:], data)
	return len(data), nil
}

func (m *memFS) Stat(_ context.Context, node fs.Node) (fs.Stat, error) {
	n := node.(*memNode)
	qtype := uint8(0)
	mode := uint32(0644)
	if n.dir {
		qtype = uint8(wire.QTDIR)
		mode = 0755 | wire.DMDIR
	}
	return fs.Stat{
		Qid:  fs.Qid{Type: qtype, Path: n.path},
		Mode: mode,
		Name: n.name,
		Uid:  "glenda",
		Gid:  "glenda",
	}, nil
}

func (m *memFS) Create(_ context.Context, parent fs.Node, name string, perm uint32, _ uint8, _ string) (fs.Node, error) {
	p := parent.(*memNode)
	child := &memNode{name: name, dir: perm&wire.DMDIR != 0, path: uint64(100 + len(p.children))}
	p.children = append(p.children, child)
	return child, nil
}

func (m *memFS) Remove(_ context.Context, node fs.Node, _ string) error {
	n := node.(*memNode)
	for i, c := range m.root.children {
		if c == n {
			m.root.children = append(m.root.children[:i], m.root.children[i+1:]...)
		}
	}
	return nil
}

func (m *memFS) Clunk(context.Context, fs.Node) error { return nil }

func newDispatcher() (*Dispatcher, *bytes.Buffer, *wire.Encoder) {
	backend := newMemFS()
	d := New(backend, Config{})
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	return d, &buf, enc
}

func decodeOne(t *testing.T, buf *bytes.Buffer) wire.Msg {
	t.Helper()
	dec := wire.NewDecoderSize(bytes.NewReader(buf.Bytes()), wire.MinBufSize)
	require.True(t, dec.Next())
	return dec.Msg()
}

func TestVersionNegotiatesMsize(t *testing.T) {
	d, buf, enc := newDispatcher()
	var req bytes.Buffer
	reqEnc := wire.NewEncoder(&req)
	require.NoError(t, reqEnc.Tversion(8192, "9P2000"))
	require.NoError(t, reqEnc.Flush())
	dec := wire.NewDecoderSize(&req, wire.MinBufSize)
	require.True(t, dec.Next())

	d.Dispatch(context.Background(), dec.Msg(), enc)
	require.NoError(t, enc.Flush())

	rv := decodeOne(t, buf).(wire.Rversion)
	assert.EqualValues(t, 8192, rv.Msize())
	assert.Equal(t, "9P2000", rv.Version())
}

func TestAttachWalkOpenReadClunkLifecycle(t *testing.T) {
	d, buf, enc := newDispatcher()
	ctx := context.Background()

	require.NoError(t, enc.Tattach(1, 0, wire.NOFID, "glenda", "/"))
	require.NoError(t, enc.Flush())
	dec := wire.NewDecoderSize(buf, wire.MinBufSize)
	require.True(t, dec.Next())
	ta := dec.Msg().(wire.Tattach)
	buf.Reset()
	d.Dispatch(ctx, ta, enc)
	require.NoError(t, enc.Flush())
	ra := decodeOne(t, buf).(wire.Rattach)
	assert.Equal(t, wire.QTDIR, ra.Qid().Type())
	buf.Reset()

	require.NoError(t, enc.Twalk(2, 0, 1, []string{"greeting"}))
	require.NoError(t, enc.Flush())
	dec = wire.NewDecoderSize(buf, wire.MinBufSize)
	require.True(t, dec.Next())
	tw := dec.Msg().(wire.Twalk)
	buf.Reset()
	d.Dispatch(ctx, tw, enc)
	require.NoError(t, enc.Flush())
	rw := decodeOne(t, buf).(wire.Rwalk)
	assert.Equal(t, 1, rw.Nwqid())
	buf.Reset()

	require.NoError(t, enc.Topen(3, 1, 0))
	require.NoError(t, enc.Flush())
	dec = wire.NewDecoderSize(buf, wire.MinBufSize)
	require.True(t, dec.Next())
	to := dec.Msg().(wire.Topen)
	buf.Reset()
	d.Dispatch(ctx, to, enc)
	require.NoError(t, enc.Flush())
	_ = decodeOne(t, buf).(wire.Ropen)
	buf.Reset()

	require.NoError(t, enc.Tread(4, 1, 0, 64))
	require.NoError(t, enc.Flush())
	dec = wire.NewDecoderSize(buf, wire.MinBufSize)
	require.True(t, dec.Next())
	tr := dec.Msg().(wire.Tread)
	buf.Reset()
	d.Dispatch(ctx, tr, enc)
	require.NoError(t, enc.Flush())
	rr := decodeOne(t, buf).(wire.Rread)
	assert.Equal(t, "hello", string(rr.Data()))
	buf.Reset()

	require.NoError(t, enc.Tclunk(5, 1))
	require.NoError(t, enc.Flush())
	dec = wire.NewDecoderSize(buf, wire.MinBufSize)
	require.True(t, dec.Next())
	tc := dec.Msg().(wire.Tclunk)
	buf.Reset()
	d.Dispatch(ctx, tc, enc)
	require.NoError(t, enc.Flush())
	_ = decodeOne(t, buf).(wire.Rclunk)
	buf.Reset()

	require.NoError(t, enc.Tstat(6, 1))
	require.NoError(t, enc.Flush())
	dec = wire.NewDecoderSize(buf, wire.MinBufSize)
	require.True(t, dec.Next())
	ts := dec.Msg().(wire.Tstat)
	buf.Reset()
	d.Dispatch(ctx, ts, enc)
	require.NoError(t, enc.Flush())
	re := decodeOne(t, buf).(wire.Rerror)
	assert.Contains(t, re.Error(), "unknown fid")
}

func TestWalkToNonexistentLeavesNewfidFree(t *testing.T) {
	d, buf, enc := newDispatcher()
	ctx := context.Background()

	root, _ := d.backend.Root(ctx)
	require.NoError(t, d.fids.Alloc(0, root, "glenda"))

	require.NoError(t, enc.Twalk(1, 0, 2, []string{"missing.txt"}))
	require.NoError(t, enc.Flush())
	dec := wire.NewDecoderSize(buf, wire.MinBufSize)
	require.True(t, dec.Next())
	tw := dec.Msg().(wire.Twalk)
	buf.Reset()

	d.Dispatch(ctx, tw, enc)
	require.NoError(t, enc.Flush())
	re := decodeOne(t, buf).(wire.Rerror)
	assert.NotEmpty(t, re.Error())

	_, _, ok := d.fids.Lookup(2)
	assert.False(t, ok)
}

func TestAuthRequiredWhenVerifierConfigured(t *testing.T) {
	backend := newMemFS()
	d := New(backend, Config{Verifier: failVerifier{}})
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	ctx := context.Background()

	require.NoError(t, enc.Tattach(1, 0, wire.NOFID, "glenda", "/"))
	require.NoError(t, enc.Flush())
	dec := wire.NewDecoderSize(&buf, wire.MinBufSize)
	require.True(t, dec.Next())
	ta := dec.Msg().(wire.Tattach)
	buf.Reset()

	d.Dispatch(ctx, ta, enc)
	require.NoError(t, enc.Flush())
	re := decodeOne(t, &buf).(wire.Rerror)
	assert.Contains(t, re.Error(), "authentication required")
}

type failVerifier struct{}

func (failVerifier) Verify(string, []byte, []byte, []byte) error { return assert.AnError }
