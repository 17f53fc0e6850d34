package client

import (
	"bytes"
	"context"

	"go.minnow.dev/ninep"
	"go.minnow.dev/ninep/wire"
)

// Fid is a client handle bound to a remote node: the fid number plus
// the qid last observed for it. Every Fid must eventually be released
// with Clunk.
type Fid struct {
	c   *Client
	num uint32
	Qid wire.Qid
}

// Num returns the wire fid number backing f, for callers that need to
// interoperate with a lower-level encoder directly.
func (f *Fid) Num() uint32 { return f.num }

// Attach binds a fresh client-chosen fid to aname under uname, with no
// authentication fid (NOFID).
func (c *Client) Attach(ctx context.Context, uname, aname string) (*Fid, error) {
	return c.attach(ctx, uname, aname, wire.NOFID)
}

// AttachAuth is like Attach, but presents afid (obtained from Auth) as
// proof of a completed Tauth handshake.
func (c *Client) AttachAuth(ctx context.Context, uname, aname string, afid *Fid) (*Fid, error) {
	var afidNum uint32 = wire.NOFID
	if afid != nil {
		afidNum = afid.num
	}
	return c.attach(ctx, uname, aname, afidNum)
}

func (c *Client) attach(ctx context.Context, uname, aname string, afid uint32) (*Fid, error) {
	fid := c.fids.get()
	resp, err := c.send(ctx, false, func(tag uint16) ([]byte, error) {
		var buf bytes.Buffer
		enc := wire.NewEncoder(&buf)
		if err := enc.Tattach(tag, fid, afid, uname, aname); err != nil {
			return nil, err
		}
		return buf.Bytes(), enc.Flush()
	})
	if err != nil {
		c.fids.put(fid)
		return nil, err
	}
	ra := wire.Rattach(resp)
	return &Fid{c: c, num: fid, Qid: cloneQid(ra.Qid())}, nil
}

// Auth begins the Tauth handshake, returning a Fid the caller reads
// the challenge from and writes its response to.
func (c *Client) Auth(ctx context.Context, uname, aname string) (*Fid, error) {
	afid := c.fids.get()
	resp, err := c.send(ctx, false, func(tag uint16) ([]byte, error) {
		var buf bytes.Buffer
		enc := wire.NewEncoder(&buf)
		if err := enc.Tauth(tag, afid, uname, aname); err != nil {
			return nil, err
		}
		return buf.Bytes(), enc.Flush()
	})
	if err != nil {
		c.fids.put(afid)
		return nil, err
	}
	ra := wire.Rauth(resp)
	return &Fid{c: c, num: afid, Qid: cloneQid(ra.Aqid())}, nil
}

// Walk resolves names starting from f, returning a new Fid for the
// final element. A zero-length names walks a fresh fid bound to the
// same node as f (clone).
func (f *Fid) Walk(ctx context.Context, names ...string) (*Fid, error) {
	newfid := f.c.fids.get()
	resp, err := f.c.send(ctx, false, func(tag uint16) ([]byte, error) {
		var buf bytes.Buffer
		enc := wire.NewEncoder(&buf)
		if err := enc.Twalk(tag, f.num, newfid, names); err != nil {
			return nil, err
		}
		return buf.Bytes(), enc.Flush()
	})
	if err != nil {
		f.c.fids.put(newfid)
		return nil, err
	}
	rw := wire.Rwalk(resp)
	if rw.Nwqid() != len(names) {
		f.c.fids.put(newfid)
		return nil, ninep.E(ninep.KindBackendError, "walk failed at element %d of %d", rw.Nwqid(), len(names))
	}
	q := f.Qid
	if n := rw.Nwqid(); n > 0 {
		q = cloneQid(rw.Wqid(n - 1))
	}
	return &Fid{c: f.c, num: newfid, Qid: q}, nil
}

// WalkPath splits a slash-separated path into at most wire.MaxWElem
// elements per Twalk and chains walks through intermediate fids as
// needed, per spec.md §4.6's walk-by-path helper contract. An empty
// path (after trimming leading/trailing slashes) clones f onto a
// fresh fid, same as Walk with no names.
func (f *Fid) WalkPath(ctx context.Context, path string) (*Fid, error) {
	elems := splitPathElements(path)
	if len(elems) == 0 {
		return f.Walk(ctx)
	}

	cur := f
	var owned *Fid
	for len(elems) > 0 {
		n := len(elems)
		if n > wire.MaxWElem {
			n = wire.MaxWElem
		}
		next, err := cur.Walk(ctx, elems[:n]...)
		if owned != nil {
			owned.Clunk(ctx)
		}
		if err != nil {
			return nil, err
		}
		owned = next
		cur = next
		elems = elems[n:]
	}
	return owned, nil
}

// splitPathElements splits a slash-separated path into its non-empty
// elements, so leading, trailing, and repeated slashes never produce
// empty walk names.
func splitPathElements(path string) []string {
	var elems []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				elems = append(elems, path[start:i])
			}
			start = i + 1
		}
	}
	return elems
}

// Open prepares f for I/O under mode (one of the OREAD/OWRITE/ORDWR
// constants wire-compatible with 9P2000's open modes).
func (f *Fid) Open(ctx context.Context, mode uint8) (iounit int64, err error) {
	resp, err := f.c.send(ctx, false, func(tag uint16) ([]byte, error) {
		var buf bytes.Buffer
		enc := wire.NewEncoder(&buf)
		if err := enc.Topen(tag, f.num, mode); err != nil {
			return nil, err
		}
		return buf.Bytes(), enc.Flush()
	})
	if err != nil {
		return 0, err
	}
	ro := wire.Ropen(resp)
	f.Qid = cloneQid(ro.Qid())
	return ro.IOunit(), nil
}

// Create makes a new child of the directory bound to f, opens it, and
// rebinds f to the new node (the directory is no longer reachable
// through f afterward, matching the server's Tcreate contract).
func (f *Fid) Create(ctx context.Context, name string, perm uint32, mode uint8) (iounit int64, err error) {
	resp, err := f.c.send(ctx, false, func(tag uint16) ([]byte, error) {
		var buf bytes.Buffer
		enc := wire.NewEncoder(&buf)
		if err := enc.Tcreate(tag, f.num, name, perm, mode); err != nil {
			return nil, err
		}
		return buf.Bytes(), enc.Flush()
	})
	if err != nil {
		return 0, err
	}
	rc := wire.Rcreate(resp)
	f.Qid = cloneQid(rc.Qid())
	return rc.IOunit(), nil
}

// Read reads up to len(buf) bytes from f at offset. It never applies
// cfg.Timeout, matching the teacher's Client.Timeout semantics for
// long-poll-style reads.
func (f *Fid) Read(ctx context.Context, offset uint64, buf []byte) (int, error) {
	resp, err := f.c.send(ctx, true, func(tag uint16) ([]byte, error) {
		var req bytes.Buffer
		enc := wire.NewEncoder(&req)
		if err := enc.Tread(tag, f.num, offset, uint32(len(buf))); err != nil {
			return nil, err
		}
		return req.Bytes(), enc.Flush()
	})
	if err != nil {
		return 0, err
	}
	rr := wire.Rread(resp)
	return copy(buf, rr.Data()), nil
}

// Write writes data to f at offset, returning the count the server
// reports having written.
func (f *Fid) Write(ctx context.Context, offset uint64, data []byte) (int, error) {
	resp, err := f.c.send(ctx, false, func(tag uint16) ([]byte, error) {
		var req bytes.Buffer
		enc := wire.NewEncoder(&req)
		if err := enc.Twrite(tag, f.num, offset, data); err != nil {
			return nil, err
		}
		return req.Bytes(), enc.Flush()
	})
	if err != nil {
		return 0, err
	}
	return int(wire.Rwrite(resp).Count()), nil
}

// Stat fetches f's metadata.
func (f *Fid) Stat(ctx context.Context) (wire.Stat, error) {
	resp, err := f.c.send(ctx, false, func(tag uint16) ([]byte, error) {
		var req bytes.Buffer
		enc := wire.NewEncoder(&req)
		if err := enc.Tstat(tag, f.num); err != nil {
			return nil, err
		}
		return req.Bytes(), enc.Flush()
	})
	if err != nil {
		return nil, err
	}
	st := wire.Rstat(resp).Stat()
	cp := make(wire.Stat, len(st))
	copy(cp, st)
	return cp, nil
}

// Wstat requests a metadata change on f.
func (f *Fid) Wstat(ctx context.Context, stat wire.Stat) error {
	_, err := f.c.send(ctx, false, func(tag uint16) ([]byte, error) {
		var req bytes.Buffer
		enc := wire.NewEncoder(&req)
		if err := enc.Twstat(tag, f.num, stat); err != nil {
			return nil, err
		}
		return req.Bytes(), enc.Flush()
	})
	return err
}

// Remove deletes the node bound to f and releases f, regardless of
// whether the remove succeeded server-side.
func (f *Fid) Remove(ctx context.Context) error {
	defer f.c.fids.put(f.num)
	_, err := f.c.send(ctx, false, func(tag uint16) ([]byte, error) {
		var req bytes.Buffer
		enc := wire.NewEncoder(&req)
		if err := enc.Tremove(tag, f.num); err != nil {
			return nil, err
		}
		return req.Bytes(), enc.Flush()
	})
	return err
}

// Clunk releases f. It is always safe to call even after an error from
// a prior operation on f.
func (f *Fid) Clunk(ctx context.Context) error {
	defer f.c.fids.put(f.num)
	_, err := f.c.send(ctx, false, func(tag uint16) ([]byte, error) {
		var req bytes.Buffer
		enc := wire.NewEncoder(&req)
		if err := enc.Tclunk(tag, f.num); err != nil {
			return nil, err
		}
		return req.Bytes(), enc.Flush()
	})
	return err
}

func cloneQid(q wire.Qid) wire.Qid {
	cp := make(wire.Qid, len(q))
	copy(cp, q)
	return cp
}
