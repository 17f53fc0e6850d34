// Package fs defines the narrow capability interface the server
// dispatcher consumes to talk to a filesystem backend, grounded on
// Harvey-OS/ninep's NineServer — the corpus's closest analogue to a
// one-method-per-9P-operation backend vtable — generalized with a
// leading context.Context on every call (idiomatic Go; the dispatcher
// passes on the context it is given, and Tflush does not cancel it) and
// Go-shaped (value, error) returns in place of NineServer's
// encode-into-a-Fcall style.
package fs

import (
	"context"
	"errors"
)

// ErrUnknownNode is returned by a composite FileSystem (union) when
// asked to operate on a Node it has no owning backend recorded for.
var ErrUnknownNode = errors.New("fs: node not owned by any mounted backend")

// ErrNotSupported is returned by a FileSystem when an operation has no
// meaning for it (e.g. Create against a composite root with no "/"
// mount).
var ErrNotSupported = errors.New("fs: operation not supported")

// Node is an opaque per-file identity handed out by a FileSystem. The
// dispatcher and union composer never inspect a Node's contents; they
// only compare and forward it. Backends type-assert their own Nodes
// back to a concrete type.
type Node interface{}

// Qid is the minimal shape a FileSystem must be able to report for any
// Node; server.go builds a wire.Qid from it.
type Qid struct {
	Type    uint8
	Version uint32
	Path    uint64
}

// Stat is backend-level file metadata; server.go encodes it into a
// wire.Stat record.
type Stat struct {
	Qid    Qid
	Mode   uint32
	Atime  uint32
	Mtime  uint32
	Length int64
	Name   string
	Uid    string
	Gid    string
	Muid   string
}

// FileSystem is the capability interface a backend implements. Every
// method takes the context the dispatcher was given (session.Pool
// cancels it when the pool stops); a backend may honor that
// cancellation, and synchronous backends (like sysfs) may ignore it.
type FileSystem interface {
	// Root returns the tree root. It must be stable for the lifetime
	// of the FileSystem.
	Root(ctx context.Context) (Node, error)

	// Walk resolves one path element from parent. A nil Node with a
	// nil error means "no such child" (the dispatcher treats that as
	// a failed walk step, not a backend error).
	Walk(ctx context.Context, parent Node, name string) (Node, error)

	// Open validates mode against node and prepares it for I/O.
	Open(ctx context.Context, node Node, mode uint8) error

	// Read reads up to len(buf) bytes from node at offset. For
	// directory nodes, it must return a concatenation of whole
	// wire-format stat records — a returned slice must never end
	// mid-record. A short read (n < len(buf)) is legal; n == 0
	// signals end of data.
	Read(ctx context.Context, node Node, offset int64, buf []byte, uname string) (n int, err error)

	// Write writes data to node at offset, returning the count
	// actually written.
	Write(ctx context.Context, node Node, offset int64, data []byte, uname string) (n int, err error)

	// Stat fills out a Stat record describing node.
	Stat(ctx context.Context, node Node) (Stat, error)

	// Create makes a new child of parent named name with the given
	// permission bits and open mode, and returns the new node. perm's
	// DMDIR bit requests a directory.
	Create(ctx context.Context, parent Node, name string, perm uint32, mode uint8, uname string) (Node, error)

	// Remove deletes node.
	Remove(ctx context.Context, node Node, uname string) error

	// Clunk releases any per-handle resources associated with node.
	// It is called for every fid release, including ones that are
	// about to be removed; a backend that has nothing to release may
	// implement it as a no-op.
	Clunk(ctx context.Context, node Node) error
}

// Wstat is implemented by backends that support Twstat. The dispatcher
// type-asserts a FileSystem to this interface and replies
// "wstat not supported" when it is absent, per spec.md §4.5.
type Wstat interface {
	WriteStat(ctx context.Context, node Node, stat Stat, uname string) error
}
