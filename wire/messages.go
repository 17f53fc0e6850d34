package wire

import (
	"bytes"
	"fmt"
)

// Tversion negotiates the protocol version and msize for a session.
// It must be the first message sent, using tag NOTAG, and the client
// may not issue further requests until it has received the matching
// Rversion.
type Tversion []byte

func (m Tversion) Tag() uint16 { return msg(m).Tag() }
func (m Tversion) Len() int64  { return msg(m).Len() }
func (m Tversion) Msize() int64 { return int64(guint32(m[7:11])) }
func (m Tversion) Version() string { return string(msg(m).nthField(11, 0)) }
func (m Tversion) String() string {
	return fmt.Sprintf("Tversion msize=%d version=%q", m.Msize(), m.Version())
}

// Rversion answers a Tversion, with the version and msize the server
// has chosen. Both sides must honor the resulting msize for the rest
// of the session.
type Rversion []byte

func (m Rversion) Tag() uint16     { return msg(m).Tag() }
func (m Rversion) Len() int64      { return msg(m).Len() }
func (m Rversion) Msize() int64    { return int64(guint32(m[7:11])) }
func (m Rversion) Version() string { return string(msg(m).nthField(11, 0)) }
func (m Rversion) String() string {
	return fmt.Sprintf("Rversion msize=%d version=%q", m.Msize(), m.Version())
}

// Tauth begins the authentication handshake for a session, binding
// afid as the file the client will exchange authentication data
// through.
type Tauth []byte

func (m Tauth) Tag() uint16    { return msg(m).Tag() }
func (m Tauth) Len() int64     { return msg(m).Len() }
func (m Tauth) Afid() uint32   { return guint32(m[7:11]) }
func (m Tauth) Uname() []byte  { return msg(m).nthField(11, 0) }
func (m Tauth) Aname() []byte  { return msg(m).nthField(11, 1) }
func (m Tauth) String() string {
	return fmt.Sprintf("Tauth afid=%x uname=%q aname=%q", m.Afid(), m.Uname(), m.Aname())
}

// Rauth answers Tauth with the qid of the authentication file, always
// of type QTAUTH.
type Rauth []byte

func (m Rauth) Tag() uint16    { return msg(m).Tag() }
func (m Rauth) Len() int64     { return msg(m).Len() }
func (m Rauth) Aqid() Qid      { return Qid(m[7:20]) }
func (m Rauth) String() string { return fmt.Sprintf("Rauth aqid=%s", m.Aqid()) }

// Tattach introduces a user to the server and binds fid to the root
// of the requested file tree.
type Tattach []byte

func (m Tattach) Tag() uint16   { return msg(m).Tag() }
func (m Tattach) Len() int64    { return msg(m).Len() }
func (m Tattach) Fid() uint32   { return guint32(m[7:11]) }
func (m Tattach) Afid() uint32  { return guint32(m[11:15]) }
func (m Tattach) Uname() []byte { return msg(m).nthField(15, 0) }
func (m Tattach) Aname() []byte { return msg(m).nthField(15, 1) }
func (m Tattach) String() string {
	return fmt.Sprintf("Tattach fid=%x afid=%x uname=%q aname=%q",
		m.Fid(), m.Afid(), m.Uname(), m.Aname())
}

// Rattach answers Tattach with the qid of the tree root.
type Rattach []byte

func (m Rattach) Tag() uint16    { return msg(m).Tag() }
func (m Rattach) Len() int64     { return msg(m).Len() }
func (m Rattach) Qid() Qid       { return Qid(m[7:20]) }
func (m Rattach) String() string { return fmt.Sprintf("Rattach qid=%s", m.Qid()) }

// Rerror answers any T-message the server could not satisfy. Unlike
// the rest of the protocol, 9P2000 has no Terror; any request may be
// answered with Rerror instead of its usual reply.
type Rerror []byte

func (m Rerror) Tag() uint16    { return msg(m).Tag() }
func (m Rerror) Len() int64     { return msg(m).Len() }
func (m Rerror) Ename() []byte  { return msg(m).nthField(7, 0) }
func (m Rerror) Error() string  { return string(m.Ename()) }
func (m Rerror) String() string { return fmt.Sprintf("Rerror ename=%q", m.Ename()) }

// Tflush cancels a pending request identified by Oldtag. The server
// must still reply to the original request before or at the same time
// as the Rflush, using whatever tag it was given.
type Tflush []byte

func (m Tflush) Tag() uint16    { return msg(m).Tag() }
func (m Tflush) Len() int64     { return msg(m).Len() }
func (m Tflush) Oldtag() uint16 { return guint16(m[7:9]) }
func (m Tflush) String() string { return fmt.Sprintf("Tflush oldtag=%x", m.Oldtag()) }

type Rflush []byte

func (m Rflush) Tag() uint16    { return msg(m).Tag() }
func (m Rflush) Len() int64     { return msg(m).Len() }
func (m Rflush) String() string { return "Rflush" }

// Twalk walks Nwname path elements from Fid, binding the result to
// Newfid if the walk succeeds in its entirety.
type Twalk []byte

func (m Twalk) Tag() uint16        { return msg(m).Tag() }
func (m Twalk) Len() int64         { return msg(m).Len() }
func (m Twalk) Fid() uint32        { return guint32(m[7:11]) }
func (m Twalk) Newfid() uint32     { return guint32(m[11:15]) }
func (m Twalk) Nwname() int        { return int(guint16(m[15:17])) }
func (m Twalk) Wname(n int) []byte { return msg(m).nthField(17, n) }
func (m Twalk) String() string {
	names := make([][]byte, m.Nwname())
	for i := range names {
		names[i] = m.Wname(i)
	}
	return fmt.Sprintf("Twalk fid=%x newfid=%x wname=%q", m.Fid(), m.Newfid(), bytes.Join(names, []byte("/")))
}

// Rwalk answers Twalk with one qid per path element successfully
// walked. Nwqid < Nwname of the request signals a partial walk, which
// the client must treat as a failure without unbinding Newfid (the
// server never bound it).
type Rwalk []byte

func (m Rwalk) Tag() uint16    { return msg(m).Tag() }
func (m Rwalk) Len() int64     { return msg(m).Len() }
func (m Rwalk) Nwqid() int     { return int(guint16(m[7:9])) }
func (m Rwalk) Wqid(n int) Qid { return Qid(m[9+n*13 : 9+n*13+13]) }
func (m Rwalk) String() string {
	wqid := make([][]byte, m.Nwqid())
	for i := range wqid {
		wqid[i] = m.Wqid(i)
	}
	return fmt.Sprintf("Rwalk wqid=%q", bytes.Join(wqid, []byte(",")))
}

// Topen prepares Fid for I/O according to Mode.
type Topen []byte

func (m Topen) Tag() uint16    { return msg(m).Tag() }
func (m Topen) Len() int64     { return msg(m).Len() }
func (m Topen) Fid() uint32    { return guint32(m[7:11]) }
func (m Topen) Mode() uint8    { return m[11] }
func (m Topen) String() string { return fmt.Sprintf("Topen fid=%x mode=%#o", m.Fid(), m.Mode()) }

type Ropen []byte

func (m Ropen) Tag() uint16    { return msg(m).Tag() }
func (m Ropen) Len() int64     { return msg(m).Len() }
func (m Ropen) Qid() Qid       { return Qid(m[7:20]) }
func (m Ropen) IOunit() int64  { return int64(guint32(m[20:24])) }
func (m Ropen) String() string { return fmt.Sprintf("Ropen qid=%s iounit=%d", m.Qid(), m.IOunit()) }

// Tcreate creates a file named Name in the directory bound to Fid,
// then opens it as if by Topen with the given Mode. Name comes before
// Perm and Mode in the wire layout, which complicates offset math for
// the fixed trailing fields.
type Tcreate []byte

func (m Tcreate) Tag() uint16  { return msg(m).Tag() }
func (m Tcreate) Len() int64   { return msg(m).Len() }
func (m Tcreate) Fid() uint32  { return guint32(m[7:11]) }
func (m Tcreate) Name() []byte { return msg(m).nthField(11, 0) }
func (m Tcreate) Perm() uint32 {
	offset := 11 + 2 + len(m.Name())
	return guint32(m[offset : offset+4])
}
func (m Tcreate) Mode() uint8 {
	offset := 11 + 2 + len(m.Name()) + 4
	return m[offset]
}
func (m Tcreate) String() string {
	return fmt.Sprintf("Tcreate fid=%x name=%q perm=%o mode=%#o", m.Fid(), m.Name(), m.Perm(), m.Mode())
}

type Rcreate []byte

func (m Rcreate) Tag() uint16    { return msg(m).Tag() }
func (m Rcreate) Len() int64     { return msg(m).Len() }
func (m Rcreate) Qid() Qid       { return Qid(m[7:20]) }
func (m Rcreate) IOunit() int64  { return int64(guint32(m[20:24])) }
func (m Rcreate) String() string { return fmt.Sprintf("Rcreate qid=%s iounit=%d", m.Qid(), m.IOunit()) }

// Tread requests Count bytes starting at Offset from the file bound to
// Fid.
type Tread []byte

func (m Tread) Tag() uint16    { return msg(m).Tag() }
func (m Tread) Len() int64     { return msg(m).Len() }
func (m Tread) Fid() uint32    { return guint32(m[7:11]) }
func (m Tread) Offset() uint64 { return guint64(m[11:19]) }
func (m Tread) Count() uint32  { return guint32(m[19:23]) }
func (m Tread) String() string {
	return fmt.Sprintf("Tread fid=%x offset=%d count=%d", m.Fid(), m.Offset(), m.Count())
}

// Rread carries the bytes read, inline in the message buffer; the
// Data accessor returns a slice over the underlying buffer rather than
// copying it.
type Rread []byte

func (m Rread) Tag() uint16   { return msg(m).Tag() }
func (m Rread) Len() int64    { return msg(m).Len() }
func (m Rread) Count() uint32 { return guint32(m[7:11]) }
func (m Rread) Data() []byte  { return m[11 : 11+m.Count()] }
func (m Rread) String() string {
	return fmt.Sprintf("Rread count=%d", m.Count())
}

// Twrite carries Count bytes of data to be written to Fid at Offset,
// inline in the message buffer.
type Twrite []byte

func (m Twrite) Tag() uint16    { return msg(m).Tag() }
func (m Twrite) Len() int64     { return msg(m).Len() }
func (m Twrite) Fid() uint32    { return guint32(m[7:11]) }
func (m Twrite) Offset() uint64 { return guint64(m[11:19]) }
func (m Twrite) Count() uint32  { return guint32(m[19:23]) }
func (m Twrite) Data() []byte   { return m[23 : 23+m.Count()] }
func (m Twrite) String() string {
	return fmt.Sprintf("Twrite fid=%x offset=%d count=%d", m.Fid(), m.Offset(), m.Count())
}

type Rwrite []byte

func (m Rwrite) Tag() uint16    { return msg(m).Tag() }
func (m Rwrite) Len() int64     { return msg(m).Len() }
func (m Rwrite) Count() uint32  { return guint32(m[7:11]) }
func (m Rwrite) String() string { return fmt.Sprintf("Rwrite count=%d", m.Count()) }

// Tclunk retires Fid. The fid is released whether or not the reply is
// Rclunk or Rerror.
type Tclunk []byte

func (m Tclunk) Tag() uint16    { return msg(m).Tag() }
func (m Tclunk) Len() int64     { return msg(m).Len() }
func (m Tclunk) Fid() uint32    { return guint32(m[7:11]) }
func (m Tclunk) String() string { return fmt.Sprintf("Tclunk fid=%x", m.Fid()) }

type Rclunk []byte

func (m Rclunk) Tag() uint16    { return msg(m).Tag() }
func (m Rclunk) Len() int64     { return msg(m).Len() }
func (m Rclunk) String() string { return "Rclunk" }

// Tremove removes the file bound to Fid and then clunks it,
// regardless of whether the removal succeeded.
type Tremove []byte

func (m Tremove) Tag() uint16    { return msg(m).Tag() }
func (m Tremove) Len() int64     { return msg(m).Len() }
func (m Tremove) Fid() uint32    { return guint32(m[7:11]) }
func (m Tremove) String() string { return fmt.Sprintf("Tremove fid=%x", m.Fid()) }

type Rremove []byte

func (m Rremove) Tag() uint16    { return msg(m).Tag() }
func (m Rremove) Len() int64     { return msg(m).Len() }
func (m Rremove) String() string { return "Rremove" }

type Tstat []byte

func (m Tstat) Tag() uint16    { return msg(m).Tag() }
func (m Tstat) Len() int64     { return msg(m).Len() }
func (m Tstat) Fid() uint32    { return guint32(m[7:11]) }
func (m Tstat) String() string { return fmt.Sprintf("Tstat fid=%x", m.Fid()) }

type Rstat []byte

func (m Rstat) Tag() uint16    { return msg(m).Tag() }
func (m Rstat) Len() int64     { return msg(m).Len() }
func (m Rstat) Stat() Stat     { return Stat(msg(m).nthField(7, 0)) }
func (m Rstat) String() string { return "Rstat " + m.Stat().String() }

// Twstat requests a (partial) change to the metadata of Fid. Fields
// set to their "don't touch" values (all bits set in an integer field,
// an empty string field) are left unmodified by the server.
type Twstat []byte

func (m Twstat) Tag() uint16    { return msg(m).Tag() }
func (m Twstat) Len() int64     { return msg(m).Len() }
func (m Twstat) Fid() uint32    { return guint32(m[7:11]) }
func (m Twstat) Stat() Stat     { return Stat(msg(m).nthField(11, 0)) }
func (m Twstat) String() string { return fmt.Sprintf("Twstat fid=%x stat=%s", m.Fid(), m.Stat()) }

type Rwstat []byte

func (m Rwstat) Tag() uint16    { return msg(m).Tag() }
func (m Rwstat) Len() int64     { return msg(m).Len() }
func (m Rwstat) String() string { return "Rwstat" }
