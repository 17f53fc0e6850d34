// Package sysfs is a reference fs.FileSystem backend: an in-memory
// node tree where a leaf may be a plain byte-slice file or a pair of
// read/write callbacks ("ctl"-file style synthetic endpoints).
// Directories are synthesized on Read by concatenating child Stat
// records, never splitting a record across a returned block, per
// spec.md §4.5's directory-Tread rule.
//
// Grounded on the teacher's internal/styxfile/dir.go (directory-entry
// iteration accepting one short read, then requiring a large-enough
// buffer). Node modes are kept as raw 9P permission bits; the package
// does no os.FileMode conversion.
package sysfs

import (
	"context"
	"sync"

	"go.minnow.dev/ninep/fs"
	"go.minnow.dev/ninep/wire"
)

// ReadFunc services a Tread against a ctl-style file.
type ReadFunc func(offset int64, buf []byte) (int, error)

// WriteFunc services a Twrite against a ctl-style file.
type WriteFunc func(offset int64, data []byte) (int, error)

// Node is one entry in a FileSystem's tree. Construct with NewFile,
// NewDir, or NewCtl.
type Node struct {
	mu       sync.Mutex
	name     string
	dir      bool
	mode     uint32
	path     uint64
	uid, gid string

	data  []byte    // plain-file storage; unused by ctl files and dirs
	read  ReadFunc   // ctl-file read hook; nil for plain files/dirs
	write WriteFunc  // ctl-file write hook; nil for plain files/dirs

	children []*Node
}

// NewDir returns a directory node named name with default permission
// 0755.
func NewDir(name string) *Node {
	return &Node{name: name, dir: true, mode: 0755, uid: "none", gid: "none"}
}

// NewFile returns a plain file node backed by an in-memory byte slice,
// seeded with initial contents.
func NewFile(name string, mode uint32, initial []byte) *Node {
	data := make([]byte, len(initial))
	copy(data, initial)
	return &Node{name: name, mode: mode, data: data, uid: "none", gid: "none"}
}

// NewCtl returns a synthetic callback file: Tread and Twrite against it
// invoke read/write directly instead of touching a byte buffer. Either
// may be nil, in which case that operation fails with "not supported".
func NewCtl(name string, mode uint32, read ReadFunc, write WriteFunc) *Node {
	if read == nil {
		read = func(int64, []byte) (int, error) { return 0, fs.ErrNotSupported }
	}
	if write == nil {
		write = func(int64, []byte) (int, error) { return 0, fs.ErrNotSupported }
	}
	return &Node{name: name, mode: mode, read: read, write: write, uid: "none", gid: "none"}
}

// AddChild inserts child under dir. AddChild must be called before the
// tree is handed to New — qid paths are assigned once, at construction
// time, and the tree is not safe for concurrent mutation while served.
func (n *Node) AddChild(child *Node) *Node {
	n.children = append(n.children, child)
	return n
}

// FileSystem is an in-memory fs.FileSystem implementation rooted at a
// Node tree built with NewDir/NewFile/NewCtl.
type FileSystem struct {
	root     *Node
	nextPath uint64
}

// New returns a FileSystem rooted at root, assigning qid paths to every
// node already present in the tree.
func New(root *Node) *FileSystem {
	fsys := &FileSystem{}
	fsys.assignPaths(root)
	fsys.root = root
	return fsys
}

func (f *FileSystem) assignPaths(n *Node) {
	f.nextPath++
	n.path = f.nextPath
	for _, c := range n.children {
		f.assignPaths(c)
	}
}

func (f *FileSystem) Root(context.Context) (fs.Node, error) { return f.root, nil }

func (f *FileSystem) Walk(_ context.Context, parent fs.Node, name string) (fs.Node, error) {
	p, ok := parent.(*Node)
	if !ok {
		return nil, nil
	}
	for _, c := range p.children {
		if c.name == name {
			return c, nil
		}
	}
	return nil, nil
}

func (f *FileSystem) Open(_ context.Context, node fs.Node, mode uint8) error {
	n := node.(*Node)
	if n.dir && mode != 0 {
		return fs.ErrNotSupported
	}
	return nil
}

// Read reads from node at offset. Directory nodes synthesize a stream
// of whole wire.Stat records over their children; ctl nodes invoke
// their ReadFunc; plain files read from their byte buffer.
func (f *FileSystem) Read(_ context.Context, node fs.Node, offset int64, buf []byte, _ string) (int, error) {
	n := node.(*Node)
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.dir {
		return readDir(n, offset, buf)
	}
	if n.read != nil {
		return n.read(offset, buf)
	}
	if offset >= int64(len(n.data)) {
		return 0, nil
	}
	return copy(buf, n.data[offset:]), nil
}

// readDir concatenates child stat records starting at the record
// whose cumulative offset matches offset exactly; like the teacher's
// dirReader, a read must land on a stat-record boundary, and a
// single record is never split across the returned block — if the
// caller's buffer is too small for even one more record, this returns
// a short (zero) read rather than a partial record.
func readDir(n *Node, offset int64, buf []byte) (int, error) {
	var pos int64
	written := 0
	for _, c := range n.children {
		st := statRecord(c)
		if offset > pos {
			pos += int64(len(st))
			continue
		}
		if len(st) > len(buf)-written {
			break
		}
		copy(buf[written:], st)
		written += len(st)
		pos += int64(len(st))
	}
	return written, nil
}

func (f *FileSystem) Write(_ context.Context, node fs.Node, offset int64, data []byte, _ string) (int, error) {
	n := node.(*Node)
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.dir {
		return 0, fs.ErrNotSupported
	}
	if n.write != nil {
		return n.write(offset, data)
	}
	end := offset + int64(len(data))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[offset:], data)
	return len(data), nil
}

func (f *FileSystem) Stat(_ context.Context, node fs.Node) (fs.Stat, error) {
	n := node.(*Node)
	return nodeStat(n), nil
}

func nodeStat(n *Node) fs.Stat {
	qtype := uint8(0)
	mode := n.mode
	length := int64(len(n.data))
	if n.dir {
		qtype = uint8(wire.QTDIR)
		mode |= wire.DMDIR
		length = 0
	}
	return fs.Stat{
		Qid:  fs.Qid{Type: qtype, Path: n.path},
		Mode: mode,
		Name: n.name,
		Uid:  n.uid,
		Gid:  n.gid,
		Muid: n.uid,
		Length: length,
	}
}

func statRecord(n *Node) []byte {
	st := nodeStat(n)
	qbuf := make([]byte, 13)
	q, _, err := wire.NewQid(qbuf, wire.QidType(st.Qid.Type), st.Qid.Version, st.Qid.Path)
	if err != nil {
		return nil
	}
	return wire.NewStat(q, st.Mode, st.Atime, st.Mtime, st.Length, st.Name, st.Uid, st.Gid, st.Muid)
}

func (f *FileSystem) Create(_ context.Context, parent fs.Node, name string, perm uint32, _ uint8, uname string) (fs.Node, error) {
	p := parent.(*Node)
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.dir {
		return nil, fs.ErrNotSupported
	}
	for _, c := range p.children {
		if c.name == name {
			return nil, fs.ErrNotSupported
		}
	}
	f.nextPath++
	child := &Node{name: name, dir: perm&wire.DMDIR != 0, mode: perm &^ wire.DMDIR, path: f.nextPath, uid: uname, gid: uname}
	p.children = append(p.children, child)
	return child, nil
}

func (f *FileSystem) Remove(_ context.Context, node fs.Node, _ string) error {
	n := node.(*Node)
	for _, c := range f.allNodes(f.root) {
		c.mu.Lock()
		for i, child := range c.children {
			if child == n {
				c.children = append(c.children[:i], c.children[i+1:]...)
				c.mu.Unlock()
				return nil
			}
		}
		c.mu.Unlock()
	}
	return nil
}

func (f *FileSystem) allNodes(n *Node) []*Node {
	out := []*Node{n}
	for _, c := range n.children {
		out = append(out, f.allNodes(c)...)
	}
	return out
}

func (f *FileSystem) Clunk(context.Context, fs.Node) error { return nil }

var _ fs.Wstat = (*FileSystem)(nil)

// WriteStat applies a subset of a wstat request: only Name, and only
// when the node is not the root, per 9P convention that the root's
// name is unchangeable.
func (f *FileSystem) WriteStat(_ context.Context, node fs.Node, stat fs.Stat, _ string) error {
	n := node.(*Node)
	if n == f.root {
		return fs.ErrNotSupported
	}
	if stat.Name != "" {
		n.mu.Lock()
		n.name = stat.Name
		n.mu.Unlock()
	}
	return nil
}
