package client

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.minnow.dev/ninep/fs"
	"go.minnow.dev/ninep/server"
	"go.minnow.dev/ninep/transport"
	"go.minnow.dev/ninep/wire"
)

// memNode/memFS mirror the server package's in-memory test double; kept
// as a separate minimal copy here since server's is unexported.
type memNode struct {
	name     string
	dir      bool
	data     []byte
	children []*memNode
	path     uint64
}

type memFS struct{ root *memNode }

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

// serve runs a Dispatcher against one end of a PipeListener connection
// until the connection closes, decoding each inbound frame and feeding
// the reply straight back out over the same transport.
func serve(backend fs.FileSystem, pl *transport.PipeListener) {
	conn, err := pl.Accept()
	if err != nil {
		return
	}
	d := server.New(backend, server.Config{})
	srvTr := transport.NewNetTransport(conn, wire.DefaultMsize)
	srvTr.Start(func(msg []byte) {
		dec := wire.NewDecoderSize(bytes.NewReader(msg), wire.DefaultMsize)
		if !dec.Next() {
			return
		}
		var buf bytes.Buffer
		enc := wire.NewEncoder(&buf)
		d.Dispatch(context.Background(), dec.Msg(), enc)
		enc.Flush()
		srvTr.Send(buf.Bytes())
	})
}

// dialPair starts a Dispatcher serving backend on one end of an
// in-process pipe and returns a Client dialed to the other end.
func dialPair(t *testing.T, backend fs.FileSystem) (*Client, func()) {
	t.Helper()
	var pl transport.PipeListener
	go serve(backend, &pl)

	clientConn, err := pl.Dial()
	require.NoError(t, err)
	tr := transport.NewNetTransport(clientConn, wire.DefaultMsize)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, tr, Config{Timeout: 2 * time.Second})
	require.NoError(t, err)

	return c, func() {
		c.Close()
		pl.Close()
	}
}

func TestClientFullLifecycle(t *testing.T) {
	c, closeFn := dialPair(t, newMemFS())
	defer closeFn()
	ctx := context.Background()

	root, err := c.Attach(ctx, "glenda", "/")
	require.NoError(t, err)
	assert.Equal(t, wire.QTDIR, root.Qid.Type())

	leaf, err := root.Walk(ctx, "greeting")
	require.NoError(t, err)

	_, err = leaf.Open(ctx, 0)
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := leaf.Read(ctx, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	n, err = leaf.Write(ctx, 0, []byte("howdy"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, leaf.Clunk(ctx))
	require.NoError(t, root.Clunk(ctx))
}

// newDeepFS builds a chain of depth nested directories ("d0"/"d1"/...)
// under root, ending in a "leaf" file, so a path longer than
// wire.MaxWElem elements can be walked.
func newDeepFS(depth int) *memFS {
	cur := &memNode{name: "leaf", path: uint64(1000 + depth)}
	for i := depth - 1; i >= 0; i-- {
		cur = &memNode{name: fmt.Sprintf("d%d", i), dir: true, path: uint64(i + 1), children: []*memNode{cur}}
	}
	root := &memNode{name: "/", dir: true, path: 1, children: []*memNode{cur}}
	return &memFS{root: root}
}

// TestClientWalkPathChainsBeyondMaxWElem verifies spec.md §4.6's
// walk-by-path helper: a path with more elements than wire.MaxWElem
// must still resolve, by chaining multiple Twalk calls through
// intermediate fids rather than issuing one over-long Twalk (which
// the encoder would reject).
func TestClientWalkPathChainsBeyondMaxWElem(t *testing.T) {
	const depth = wire.MaxWElem + 4
	c, closeFn := dialPair(t, newDeepFS(depth))
	defer closeFn()
	ctx := context.Background()

	root, err := c.Attach(ctx, "glenda", "/")
	require.NoError(t, err)

	var elems []string
	for i := 0; i < depth; i++ {
		elems = append(elems, fmt.Sprintf("d%d", i))
	}
	elems = append(elems, "leaf")
	path := strings.Join(elems, "/")

	leaf, err := root.WalkPath(ctx, path)
	require.NoError(t, err)
	assert.EqualValues(t, 1000+depth, leaf.Qid.Path())

	require.NoError(t, leaf.Clunk(ctx))
	require.NoError(t, root.Clunk(ctx))
}

func TestClientWalkToMissingFails(t *testing.T) {
	c, closeFn := dialPair(t, newMemFS())
	defer closeFn()
	ctx := context.Background()

	root, err := c.Attach(ctx, "glenda", "/")
	require.NoError(t, err)

	_, err = root.Walk(ctx, "nope.txt")
	assert.Error(t, err)

	require.NoError(t, root.Clunk(ctx))
}

func TestClientCreateAndRemove(t *testing.T) {
	c, closeFn := dialPair(t, newMemFS())
	defer closeFn()
	ctx := context.Background()

	root, err := c.Attach(ctx, "glenda", "/")
	require.NoError(t, err)

	fresh, err := root.Walk(ctx)
	require.NoError(t, err)

	_, err = fresh.Create(ctx, "scratch", 0644, 0)
	require.NoError(t, err)

	require.NoError(t, fresh.Remove(ctx))
	require.NoError(t, root.Clunk(ctx))
}
