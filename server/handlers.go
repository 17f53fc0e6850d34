package server

import (
	"context"
	"time"

	"go.minnow.dev/ninep"
	"go.minnow.dev/ninep/fidtable"
	"go.minnow.dev/ninep/fs"
	"go.minnow.dev/ninep/wire"
)

func rerror(enc *wire.Encoder, tag uint16, err error) {
	enc.Rerror(tag, err.Error())
}

func nodeQid(ctx context.Context, backend fs.FileSystem, node fs.Node) (wire.Qid, error) {
	st, err := backend.Stat(ctx, node)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 13)
	q, _, err := wire.NewQid(buf, wire.QidType(st.Qid.Type), st.Qid.Version, st.Qid.Path)
	return q, err
}

func (d *Dispatcher) tversion(m wire.Tversion, enc *wire.Encoder) {
	d.fids.Clear()
	d.authMu.Lock()
	d.authFids = make(map[uint32]*authFid)
	d.authMu.Unlock()

	if string(m.Version()) != "9P2000" {
		enc.Rversion(uint32(d.msize), "unknown")
		return
	}
	msize := m.Msize()
	if msize > int64(d.cfg.maxMsize()) {
		msize = int64(d.cfg.maxMsize())
	}
	if msize < minMsizeAllowed {
		msize = minMsizeAllowed
	}
	d.msize = uint32(msize)
	enc.Rversion(d.msize, "9P2000")
}

const minMsizeAllowed = 256

func (d *Dispatcher) tauth(_ context.Context, m wire.Tauth, enc *wire.Encoder) {
	if d.cfg.Verifier == nil {
		rerror(enc, m.Tag(), ninep.ErrAuthNotRequired)
		return
	}
	af := &authFid{
		uname:     string(m.Uname()),
		challenge: randomChallenge(32),
		issued:    time.Now(),
	}
	d.authMu.Lock()
	d.authFids[m.Afid()] = af
	d.authMu.Unlock()

	buf := make([]byte, 13)
	q, _, _ := wire.NewQid(buf, wire.QTAUTH, 0, d.nextPath())
	enc.Rauth(m.Tag(), q)
}

func (d *Dispatcher) tattach(ctx context.Context, m wire.Tattach, enc *wire.Encoder) {
	if d.cfg.Verifier != nil {
		d.authMu.Lock()
		af, ok := d.authFids[m.Afid()]
		d.authMu.Unlock()
		if !ok || !af.verified {
			rerror(enc, m.Tag(), ninep.ErrAuthRequired)
			return
		}
		if time.Since(af.issued) > authChallengeTTL {
			rerror(enc, m.Tag(), ninep.ErrAuthTimeout)
			return
		}
	}

	root, err := d.backend.Root(ctx)
	if err != nil {
		rerror(enc, m.Tag(), ninep.Wrap(ninep.KindBackendError, err, ""))
		return
	}
	if err := d.fids.Alloc(m.Fid(), root, string(m.Uname())); err != nil {
		rerror(enc, m.Tag(), fidAllocError(err))
		return
	}
	q, err := nodeQid(ctx, d.backend, root)
	if err != nil {
		rerror(enc, m.Tag(), ninep.Wrap(ninep.KindBackendError, err, ""))
		return
	}
	enc.Rattach(m.Tag(), q)
}

func fidAllocError(err error) *ninep.Error {
	switch err {
	case fidtable.ErrFull:
		return ninep.ErrFidExhausted
	case fidtable.ErrNotFound:
		return ninep.ErrUnknownFid
	default:
		return ninep.ErrFidInUse
	}
}

func (d *Dispatcher) twalk(ctx context.Context, m wire.Twalk, enc *wire.Encoder) {
	node, uname, ok := d.fids.Lookup(m.Fid())
	if !ok {
		rerror(enc, m.Tag(), ninep.ErrUnknownFid)
		return
	}
	cur := node.(fs.Node)

	n := m.Nwname()
	if n == 0 {
		if err := d.bindWalkTarget(m.Fid(), m.Newfid(), cur, uname); err != nil {
			rerror(enc, m.Tag(), fidAllocError(err))
			return
		}
		enc.Rwalk(m.Tag(), nil)
		return
	}

	qids := make([]wire.Qid, 0, n)
	walked := cur
	for i := 0; i < n; i++ {
		next, err := d.backend.Walk(ctx, walked, string(m.Wname(i)))
		if err != nil || next == nil {
			break
		}
		q, err := nodeQid(ctx, d.backend, next)
		if err != nil {
			break
		}
		qids = append(qids, q)
		walked = next
	}

	if len(qids) == 0 {
		rerror(enc, m.Tag(), ninep.E(ninep.KindBackendError, "no such file or directory"))
		return
	}
	if len(qids) == n {
		if err := d.bindWalkTarget(m.Fid(), m.Newfid(), walked, uname); err != nil {
			rerror(enc, m.Tag(), fidAllocError(err))
			return
		}
	}
	enc.Rwalk(m.Tag(), qids)
}

// bindWalkTarget implements Twalk's newfid rule: newfid must either be
// fresh (allocate it bound to node) or equal fid itself (clone-into-
// self, rebinding fid in place).
func (d *Dispatcher) bindWalkTarget(fid, newfid uint32, node fs.Node, uname string) error {
	if fid == newfid {
		return d.fids.Rebind(fid, node)
	}
	return d.fids.Alloc(newfid, node, uname)
}

func (d *Dispatcher) topen(ctx context.Context, m wire.Topen, enc *wire.Encoder) {
	node, _, ok := d.fids.Lookup(m.Fid())
	if !ok {
		rerror(enc, m.Tag(), ninep.ErrUnknownFid)
		return
	}
	if err := d.backend.Open(ctx, node, m.Mode()); err != nil {
		rerror(enc, m.Tag(), ninep.Wrap(ninep.KindBackendError, err, ""))
		return
	}
	iounit := d.msize - 24
	d.fids.SetOpened(m.Fid(), iounit)
	q, err := nodeQid(ctx, d.backend, node)
	if err != nil {
		rerror(enc, m.Tag(), ninep.Wrap(ninep.KindBackendError, err, ""))
		return
	}
	enc.Ropen(m.Tag(), q, iounit)
}

func (d *Dispatcher) tcreate(ctx context.Context, m wire.Tcreate, enc *wire.Encoder) {
	node, uname, ok := d.fids.Lookup(m.Fid())
	if !ok {
		rerror(enc, m.Tag(), ninep.ErrUnknownFid)
		return
	}
	child, err := d.backend.Create(ctx, node, string(m.Name()), m.Perm(), m.Mode(), uname)
	if err != nil {
		rerror(enc, m.Tag(), ninep.Wrap(ninep.KindBackendError, err, ""))
		return
	}
	if err := d.fids.Rebind(m.Fid(), child); err != nil {
		rerror(enc, m.Tag(), ninep.Wrap(ninep.KindBackendError, err, ""))
		return
	}
	iounit := d.msize - 24
	d.fids.SetOpened(m.Fid(), iounit)
	q, err := nodeQid(ctx, d.backend, child)
	if err != nil {
		rerror(enc, m.Tag(), ninep.Wrap(ninep.KindBackendError, err, ""))
		return
	}
	enc.Rcreate(m.Tag(), q, iounit)
}

func (d *Dispatcher) tread(ctx context.Context, m wire.Tread, enc *wire.Encoder) {
	if af, isAuth := d.authFidByKey(m.Fid()); isAuth {
		if time.Since(af.issued) > authChallengeTTL {
			rerror(enc, m.Tag(), ninep.ErrAuthTimeout)
			return
		}
		off := m.Offset()
		if off >= uint64(len(af.challenge)) {
			enc.Rread(m.Tag(), nil)
			return
		}
		end := off + uint64(m.Count())
		if end > uint64(len(af.challenge)) {
			end = uint64(len(af.challenge))
		}
		enc.Rread(m.Tag(), af.challenge[off:end])
		return
	}

	node, uname, ok := d.fids.Lookup(m.Fid())
	if !ok {
		rerror(enc, m.Tag(), ninep.ErrUnknownFid)
		return
	}
	count := m.Count()
	if max := d.msize - 11; count > max {
		count = max
	}
	buf := make([]byte, count)
	n, err := d.backend.Read(ctx, node, int64(m.Offset()), buf, uname)
	if err != nil {
		rerror(enc, m.Tag(), ninep.Wrap(ninep.KindBackendError, err, ""))
		return
	}
	enc.Rread(m.Tag(), buf[:n])
}

// authFidByKey reports whether fid refers to an in-flight auth-fid
// rather than an ordinary backend node, since both share the fid
// number space.
func (d *Dispatcher) authFidByKey(fid uint32) (*authFid, bool) {
	d.authMu.Lock()
	defer d.authMu.Unlock()
	af, ok := d.authFids[fid]
	return af, ok
}

func (d *Dispatcher) twrite(ctx context.Context, m wire.Twrite, enc *wire.Encoder) {
	if af, isAuth := d.authFidByKey(m.Fid()); isAuth {
		if d.cfg.Verifier == nil {
			rerror(enc, m.Tag(), ninep.ErrAuthNotRequired)
			return
		}
		data := m.Data()
		if err := d.cfg.Verifier.Verify(af.uname, nil, data, af.challenge); err != nil {
			rerror(enc, m.Tag(), ninep.Wrap(ninep.KindAuthFailed, err, ""))
			return
		}
		af.verified = true
		enc.Rwrite(m.Tag(), uint32(len(data)))
		return
	}

	node, uname, ok := d.fids.Lookup(m.Fid())
	if !ok {
		rerror(enc, m.Tag(), ninep.ErrUnknownFid)
		return
	}
	n, err := d.backend.Write(ctx, node, int64(m.Offset()), m.Data(), uname)
	if err != nil {
		rerror(enc, m.Tag(), ninep.Wrap(ninep.KindBackendError, err, ""))
		return
	}
	enc.Rwrite(m.Tag(), uint32(n))
}

func (d *Dispatcher) tclunk(ctx context.Context, m wire.Tclunk, enc *wire.Encoder) {
	d.authMu.Lock()
	delete(d.authFids, m.Fid())
	d.authMu.Unlock()

	node, _, ok := d.fids.Lookup(m.Fid())
	if ok {
		d.backend.Clunk(ctx, node)
		d.fids.Free(m.Fid())
	}
	enc.Rclunk(m.Tag())
}

func (d *Dispatcher) tremove(ctx context.Context, m wire.Tremove, enc *wire.Encoder) {
	node, uname, ok := d.fids.Lookup(m.Fid())
	if !ok {
		rerror(enc, m.Tag(), ninep.ErrUnknownFid)
		return
	}
	err := d.backend.Remove(ctx, node, uname)
	d.backend.Clunk(ctx, node)
	d.fids.Free(m.Fid())
	if err != nil {
		rerror(enc, m.Tag(), ninep.Wrap(ninep.KindBackendError, err, ""))
		return
	}
	enc.Rremove(m.Tag())
}

func (d *Dispatcher) tstat(ctx context.Context, m wire.Tstat, enc *wire.Encoder) {
	node, _, ok := d.fids.Lookup(m.Fid())
	if !ok {
		rerror(enc, m.Tag(), ninep.ErrUnknownFid)
		return
	}
	st, err := d.backend.Stat(ctx, node)
	if err != nil {
		rerror(enc, m.Tag(), ninep.Wrap(ninep.KindBackendError, err, ""))
		return
	}
	enc.Rstat(m.Tag(), statToWire(st))
}

func (d *Dispatcher) twstat(ctx context.Context, m wire.Twstat, enc *wire.Encoder) {
	ws, ok := d.backend.(fs.Wstat)
	if !ok {
		rerror(enc, m.Tag(), ninep.ErrWstatNotSupported)
		return
	}
	node, uname, ok2 := d.fids.Lookup(m.Fid())
	if !ok2 {
		rerror(enc, m.Tag(), ninep.ErrUnknownFid)
		return
	}
	s := m.Stat()
	fsStat := fs.Stat{
		Qid:    fs.Qid{Type: uint8(s.Qid().Type()), Version: s.Qid().Version(), Path: s.Qid().Path()},
		Mode:   s.Mode(),
		Atime:  s.Atime(),
		Mtime:  s.Mtime(),
		Length: s.Length(),
		Name:   string(s.Name()),
		Uid:    string(s.Uid()),
		Gid:    string(s.Gid()),
		Muid:   string(s.Muid()),
	}
	if err := ws.WriteStat(ctx, node, fsStat, uname); err != nil {
		rerror(enc, m.Tag(), ninep.Wrap(ninep.KindBackendError, err, ""))
		return
	}
	enc.Rwstat(m.Tag())
}

// tflush answers a Tflush immediately with Rflush. If d.pending holds a
// cancel func for the flushed tag, it is called and removed; Dispatch
// never adds entries to d.pending, though, and every request it handles
// runs to completion inside Dispatch, so by the time a Tflush is
// handled the flushed request has already been answered and nothing is
// canceled.
func (d *Dispatcher) tflush(m wire.Tflush, enc *wire.Encoder) {
	d.pendingMu.Lock()
	if cancel, ok := d.pending[m.Oldtag()]; ok {
		cancel()
		delete(d.pending, m.Oldtag())
	}
	d.pendingMu.Unlock()
	enc.Rflush(m.Tag())
}

func statToWire(st fs.Stat) wire.Stat {
	buf := make([]byte, 13)
	q, _, _ := wire.NewQid(buf, wire.QidType(st.Qid.Type), st.Qid.Version, st.Qid.Path)
	return wire.NewStat(q, st.Mode, st.Atime, st.Mtime, st.Length, st.Name, st.Uid, st.Gid, st.Muid)
}
