// Package fidtable implements the server-side fid table: a
// fixed-capacity array of handle slots, indexed by slot position, not
// by fid number. Clients choose their own fid numbers; the table's job
// is to reject duplicates, bind a backend node to each accepted
// number, and scan by number on lookup.
//
// The slot-array shape (rather than a map) is grounded in the
// teacher's internal/pool package, which allocates fids and tags from
// a flat array with a sorted reclaim list; here the array additionally
// carries the per-fid binding state the teacher's pool never tracked.
package fidtable

import (
	"errors"
	"sync"
)

var (
	// ErrInUse is returned by Alloc when the requested fid number is
	// already bound in this table.
	ErrInUse = errors.New("fid already in use")
	// ErrFull is returned by Alloc when every slot is occupied.
	ErrFull = errors.New("cannot allocate fid: table full")
	// ErrNotFound is returned by Free, Rebind and SetOpened when no slot holds
	// the given fid number.
	ErrNotFound = errors.New("unknown fid")
)

// Node is the opaque per-fid binding: a backend's filesystem node plus
// the fid's derived state (claimed uname, iounit once opened).
type Node interface{}

type slot struct {
	inUse bool
	fid   uint32
	node  Node
	uname string
	// iounit is the chunk-size hint established by the most recent
	// Topen/Tcreate on this fid; zero until then.
	iounit  uint32
	opened  bool
}

// Table is a fixed-capacity, concurrency-safe fid table.
type Table struct {
	mu    sync.Mutex
	slots []slot
}

// New returns a Table with room for capacity simultaneously-bound fids.
func New(capacity int) *Table {
	return &Table{slots: make([]slot, capacity)}
}

// Cap returns the table's fixed capacity.
func (t *Table) Cap() int {
	return len(t.slots)
}

// Alloc binds fid to node under the claimed user name uname. It fails
// with ErrInUse if fid is already bound, or ErrFull if every slot is
// occupied.
func (t *Table) Alloc(fid uint32, node Node, uname string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	free := -1
	for i := range t.slots {
		if !t.slots[i].inUse {
			if free < 0 {
				free = i
			}
			continue
		}
		if t.slots[i].fid == fid {
			return ErrInUse
		}
	}
	if free < 0 {
		return ErrFull
	}
	t.slots[free] = slot{inUse: true, fid: fid, node: node, uname: uname}
	return nil
}

// Lookup returns the node and claimed uname bound to fid.
func (t *Table) Lookup(fid uint32) (node Node, uname string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i].inUse && t.slots[i].fid == fid {
			return t.slots[i].node, t.slots[i].uname, true
		}
	}
	return nil, "", false
}

// Rebind replaces the node bound to fid in place, as Twalk-into-self
// and Tcreate require (the fid number is preserved; what it points at
// changes). It also clears any opened/iounit state, since the fid now
// names a different node.
func (t *Table) Rebind(fid uint32, node Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i].inUse && t.slots[i].fid == fid {
			t.slots[i].node = node
			t.slots[i].opened = false
			t.slots[i].iounit = 0
			return nil
		}
	}
	return ErrNotFound
}

// SetOpened records the iounit hint established by Topen/Tcreate.
func (t *Table) SetOpened(fid uint32, iounit uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i].inUse && t.slots[i].fid == fid {
			t.slots[i].opened = true
			t.slots[i].iounit = iounit
			return nil
		}
	}
	return ErrNotFound
}

// Opened reports whether fid has been opened, and its iounit if so.
func (t *Table) Opened(fid uint32) (iounit uint32, opened bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i].inUse && t.slots[i].fid == fid {
			return t.slots[i].iounit, t.slots[i].opened
		}
	}
	return 0, false
}

// Free releases fid's slot. It is idempotent-unsafe by design: freeing
// an already-free fid returns ErrNotFound, matching the dispatcher's
// need to distinguish "nothing to clunk" from "already clunked".
func (t *Table) Free(fid uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i].inUse && t.slots[i].fid == fid {
			t.slots[i] = slot{}
			return nil
		}
	}
	return ErrNotFound
}

// Clear empties every slot, as Tversion must do to all of a session's
// fids.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		t.slots[i] = slot{}
	}
}

// Len returns the number of fids currently bound.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.slots {
		if t.slots[i].inUse {
			n++
		}
	}
	return n
}

// Each calls fn for every bound fid, in unspecified order. fn must not
// call back into the Table; Each holds the table lock for its
// duration. This is used by session cleanup to clunk every fid of a
// disconnecting session through the backend.
func (t *Table) Each(fn func(fid uint32, node Node, uname string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if t.slots[i].inUse {
			fn(t.slots[i].fid, t.slots[i].node, t.slots[i].uname)
		}
	}
}
