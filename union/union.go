// Package union composes several fs.FileSystem backends into one
// namespace, routing each operation to the backend mounted at the
// longest path prefix of the node it addresses.
//
// Grounded on the teacher's internal/filetree.Tree.LongestPrefix (a
// segment-aware longest-prefix index) and mux.go's ServeMux prefix-
// registration idea, generalized to dispatch to fs.FileSystem backends
// instead of styx.Handlers. Per spec.md §4.9, node-ownership is tracked
// with a map keyed on node identity — a known scalability hazard at
// high node counts the spec explicitly flags as future work, not
// something this package tries to solve.
package union

import (
	"context"
	"path"
	"strings"
	"sync"

	"go.minnow.dev/ninep/fs"
	"go.minnow.dev/ninep/wire"
)

// mount is one registered backend and the path it is rooted at.
type mount struct {
	path    string
	backend fs.FileSystem
	root    fs.Node
}

// FileSystem routes fs.FileSystem calls across an array of mounted
// backends by longest path-segment prefix. Its zero value is not
// usable; construct with New.
type FileSystem struct {
	mu     sync.RWMutex
	mounts []mount // sorted longest-path-first

	owners map[fs.Node]*mount // node -> owning mount, keyed by identity

	root *rootNode
}

// New returns an empty composer. Mount backends with Mount before
// serving any request.
func New() *FileSystem {
	u := &FileSystem{owners: make(map[fs.Node]*mount)}
	u.root = &rootNode{u: u}
	return u
}

// Mount registers backend at mountPath ("/" for the default backend).
// mountPath is normalized to a clean, slash-rooted path. Mount is not
// safe to call concurrently with any other FileSystem method, and must
// be called before the composer starts serving requests.
func (u *FileSystem) Mount(ctx context.Context, mountPath string, backend fs.FileSystem) error {
	root, err := backend.Root(ctx)
	if err != nil {
		return err
	}
	mountPath = normalize(mountPath)

	u.mu.Lock()
	defer u.mu.Unlock()
	// Copy into a fresh array: owners holds pointers into the current
	// one, and the reordering below must not move what they point at.
	mounts := make([]mount, len(u.mounts), len(u.mounts)+1)
	copy(mounts, u.mounts)
	u.mounts = append(mounts, mount{path: mountPath, backend: backend, root: root})
	// Longest path first, so lookup finds the most specific mount.
	for i := len(u.mounts) - 1; i > 0; i-- {
		if len(u.mounts[i].path) > len(u.mounts[i-1].path) {
			u.mounts[i], u.mounts[i-1] = u.mounts[i-1], u.mounts[i]
		}
	}
	u.owners[root] = &u.mounts[indexOfPath(u.mounts, mountPath)]
	return nil
}

func indexOfPath(mounts []mount, p string) int {
	for i, m := range mounts {
		if m.path == p {
			return i
		}
	}
	return -1
}

func normalize(p string) string {
	p = path.Clean("/" + p)
	return p
}

// longestPrefix finds the mount whose path is the longest segment-wise
// prefix of p: "/foo" does not match "/foobar", only "/foo" or
// "/foo/...".
func (u *FileSystem) longestPrefix(p string) (*mount, bool) {
	p = normalize(p)
	for i := range u.mounts {
		m := &u.mounts[i]
		if m.path == "/" {
			return m, true
		}
		if p == m.path || strings.HasPrefix(p, m.path+"/") {
			return m, true
		}
	}
	return nil, false
}

func (u *FileSystem) ownerOf(node fs.Node) (*mount, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if _, ok := node.(*rootNode); ok {
		return nil, false
	}
	m, ok := u.owners[node]
	return m, ok
}

func (u *FileSystem) track(node fs.Node, m *mount) {
	u.mu.Lock()
	u.owners[node] = m
	u.mu.Unlock()
}

// rootNode is the synthetic root handed out when no backend is mounted
// at "/": its children are the top-level mount points.
type rootNode struct{ u *FileSystem }

// Root returns the composite root: the "/" mount's root if one is
// registered, otherwise the synthetic mount-listing root.
func (u *FileSystem) Root(ctx context.Context) (fs.Node, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for i := range u.mounts {
		if u.mounts[i].path == "/" {
			return u.mounts[i].root, nil
		}
	}
	return u.root, nil
}

func (u *FileSystem) Walk(ctx context.Context, parent fs.Node, name string) (fs.Node, error) {
	if _, ok := parent.(*rootNode); ok {
		u.mu.RLock()
		defer u.mu.RUnlock()
		for i := range u.mounts {
			if path.Base(u.mounts[i].path) == name {
				return u.mounts[i].root, nil
			}
		}
		return nil, nil
	}
	m, ok := u.ownerOf(parent)
	if !ok {
		return nil, nil
	}
	child, err := m.backend.Walk(ctx, parent, name)
	if err != nil || child == nil {
		return child, err
	}
	u.track(child, m)
	return child, nil
}

func (u *FileSystem) Open(ctx context.Context, node fs.Node, mode uint8) error {
	if _, ok := node.(*rootNode); ok {
		return nil
	}
	m, ok := u.ownerOf(node)
	if !ok {
		return fs.ErrUnknownNode
	}
	return m.backend.Open(ctx, node, mode)
}

func (u *FileSystem) Read(ctx context.Context, node fs.Node, offset int64, buf []byte, uname string) (int, error) {
	if root, ok := node.(*rootNode); ok {
		return root.u.readMountList(offset, buf)
	}
	m, ok := u.ownerOf(node)
	if !ok {
		return 0, fs.ErrUnknownNode
	}
	return m.backend.Read(ctx, node, offset, buf, uname)
}

func (u *FileSystem) Write(ctx context.Context, node fs.Node, offset int64, data []byte, uname string) (int, error) {
	m, ok := u.ownerOf(node)
	if !ok {
		return 0, fs.ErrUnknownNode
	}
	return m.backend.Write(ctx, node, offset, data, uname)
}

func (u *FileSystem) Stat(ctx context.Context, node fs.Node) (fs.Stat, error) {
	if _, ok := node.(*rootNode); ok {
		return fs.Stat{Qid: fs.Qid{Type: uint8(wire.QTDIR)}, Mode: 0555 | wire.DMDIR, Name: "/"}, nil
	}
	m, ok := u.ownerOf(node)
	if !ok {
		return fs.Stat{}, fs.ErrUnknownNode
	}
	return m.backend.Stat(ctx, node)
}

func (u *FileSystem) Create(ctx context.Context, parent fs.Node, name string, perm uint32, mode uint8, uname string) (fs.Node, error) {
	m, ok := u.ownerOf(parent)
	if !ok {
		return nil, fs.ErrNotSupported
	}
	child, err := m.backend.Create(ctx, parent, name, perm, mode, uname)
	if err != nil || child == nil {
		return child, err
	}
	u.track(child, m)
	return child, nil
}

func (u *FileSystem) Remove(ctx context.Context, node fs.Node, uname string) error {
	m, ok := u.ownerOf(node)
	if !ok {
		return fs.ErrUnknownNode
	}
	return m.backend.Remove(ctx, node, uname)
}

func (u *FileSystem) Clunk(ctx context.Context, node fs.Node) error {
	if _, ok := node.(*rootNode); ok {
		return nil
	}
	m, ok := u.ownerOf(node)
	if !ok {
		return nil
	}
	return m.backend.Clunk(ctx, node)
}

// readMountList synthesizes the root directory's stat-record stream:
// one wire.Stat per top-level mount, never split across a returned
// block, per spec.md §4.5's Tread rule for directories.
func (u *FileSystem) readMountList(offset int64, buf []byte) (int, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	var pos int64
	n := 0
	for i := range u.mounts {
		st, err := u.mounts[i].backend.Stat(context.Background(), u.mounts[i].root)
		if err != nil {
			continue
		}
		st.Name = path.Base(u.mounts[i].path)
		rec := encodeStat(st)
		if pos < offset {
			pos += int64(len(rec))
			continue
		}
		if len(rec) > len(buf)-n {
			break
		}
		n += copy(buf[n:], rec)
	}
	return n, nil
}

// encodeStat turns a fs.Stat into a wire-format stat record.
func encodeStat(st fs.Stat) []byte {
	qbuf := make([]byte, 13)
	q, _, err := wire.NewQid(qbuf, wire.QidType(st.Qid.Type), st.Qid.Version, st.Qid.Path)
	if err != nil {
		return nil
	}
	return wire.NewStat(q, st.Mode, st.Atime, st.Mtime, st.Length, st.Name, st.Uid, st.Gid, st.Muid)
}
