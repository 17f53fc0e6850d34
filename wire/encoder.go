package wire

import (
	"bufio"
	"io"
	"sync"
)

// Encoder writes 9P messages to an underlying io.Writer. An Encoder
// performs no message-level buffering of its own beyond the
// bufio.Writer it wraps, and is safe for concurrent use: every message
// method (Tversion, Rerror, ...) holds enc's lock for the duration of building and writing one
// message, so messages from different goroutines never interleave on
// the wire.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewEncoder returns an Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriterSize(w, MinBufSize)}
}

// Flush flushes any data buffered by the underlying bufio.Writer.
func (enc *Encoder) Flush() error {
	enc.mu.Lock()
	defer enc.mu.Unlock()
	return enc.w.Flush()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// writeHeader writes size[4] type[1] tag[2] and returns any error from
// the underlying writer; size must be the full message length
// including the 4-byte size field itself.
func (enc *Encoder) writeHeader(size uint32, t MsgType, tag uint16) error {
	var hdr [7]byte
	buint32(hdr[:4], size)
	hdr[4] = byte(t)
	buint16(hdr[5:7], tag)
	_, err := enc.w.Write(hdr[:])
	return err
}

func (enc *Encoder) writeString(s string) {
	var lenbuf [2]byte
	buint16(lenbuf[:], uint16(len(s)))
	enc.w.Write(lenbuf[:])
	io.WriteString(enc.w, s)
}

func (enc *Encoder) writeQid(q Qid) {
	enc.w.Write(q[:13])
}

func (enc *Encoder) writeUint32(v uint32) {
	var b [4]byte
	buint32(b[:], v)
	enc.w.Write(b[:])
}

func (enc *Encoder) writeUint64(v uint64) {
	var b [8]byte
	buint64(b[:], v)
	enc.w.Write(b[:])
}

func (enc *Encoder) writeUint16(v uint16) {
	var b [2]byte
	buint16(b[:], v)
	enc.w.Write(b[:])
}

// Tversion writes a Tversion message with tag NOTAG.
func (enc *Encoder) Tversion(msize uint32, version string) error {
	version = truncate(version, MaxVersionLen)
	size := uint32(4) + uint32(minSizeLUT[MsgTversion]) + uint32(len(version))

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgTversion, NOTAG); err != nil {
		return err
	}
	enc.writeUint32(msize)
	enc.writeString(version)
	return nil
}

// Rversion writes an Rversion message with tag NOTAG.
func (enc *Encoder) Rversion(msize uint32, version string) error {
	version = truncate(version, MaxVersionLen)
	size := uint32(4) + uint32(minSizeLUT[MsgRversion]) + uint32(len(version))

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgRversion, NOTAG); err != nil {
		return err
	}
	enc.writeUint32(msize)
	enc.writeString(version)
	return nil
}

func (enc *Encoder) Tauth(tag uint16, afid uint32, uname, aname string) error {
	uname, aname = truncate(uname, MaxUidLen), truncate(aname, MaxAttachLen)
	size := uint32(4) + uint32(minSizeLUT[MsgTauth]) + uint32(len(uname)+len(aname))

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgTauth, tag); err != nil {
		return err
	}
	enc.writeUint32(afid)
	enc.writeString(uname)
	enc.writeString(aname)
	return nil
}

func (enc *Encoder) Rauth(tag uint16, aqid Qid) error {
	size := uint32(4) + uint32(minSizeLUT[MsgRauth])

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgRauth, tag); err != nil {
		return err
	}
	enc.writeQid(aqid)
	return nil
}

func (enc *Encoder) Tattach(tag uint16, fid, afid uint32, uname, aname string) error {
	uname, aname = truncate(uname, MaxUidLen), truncate(aname, MaxAttachLen)
	size := uint32(4) + uint32(minSizeLUT[MsgTattach]) + uint32(len(uname)+len(aname))

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgTattach, tag); err != nil {
		return err
	}
	enc.writeUint32(fid)
	enc.writeUint32(afid)
	enc.writeString(uname)
	enc.writeString(aname)
	return nil
}

func (enc *Encoder) Rattach(tag uint16, qid Qid) error {
	size := uint32(4) + uint32(minSizeLUT[MsgRattach])

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgRattach, tag); err != nil {
		return err
	}
	enc.writeQid(qid)
	return nil
}

func (enc *Encoder) Rerror(tag uint16, ename string) error {
	ename = truncate(ename, MaxErrorLen)
	size := uint32(4) + uint32(minSizeLUT[MsgRerror]) + uint32(len(ename))

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgRerror, tag); err != nil {
		return err
	}
	enc.writeString(ename)
	return nil
}

func (enc *Encoder) Tflush(tag, oldtag uint16) error {
	size := uint32(4) + uint32(minSizeLUT[MsgTflush])

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgTflush, tag); err != nil {
		return err
	}
	enc.writeUint16(oldtag)
	return nil
}

func (enc *Encoder) Rflush(tag uint16) error {
	size := uint32(4) + uint32(minSizeLUT[MsgRflush])
	enc.mu.Lock()
	defer enc.mu.Unlock()
	return enc.writeHeader(size, MsgRflush, tag)
}

// Twalk writes a Twalk message. wname must not exceed MaxWElem
// elements; callers should split a longer walk into multiple Twalk
// requests, as allowed by the protocol.
func (enc *Encoder) Twalk(tag uint16, fid, newfid uint32, wname []string) error {
	if len(wname) > MaxWElem {
		return errMaxWElem
	}
	size := uint32(4) + uint32(minSizeLUT[MsgTwalk])
	for _, n := range wname {
		size += uint32(2 + len(n))
	}

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgTwalk, tag); err != nil {
		return err
	}
	enc.writeUint32(fid)
	enc.writeUint32(newfid)
	enc.writeUint16(uint16(len(wname)))
	for _, n := range wname {
		enc.writeString(n)
	}
	return nil
}

func (enc *Encoder) Rwalk(tag uint16, wqid []Qid) error {
	size := uint32(4) + uint32(minSizeLUT[MsgRwalk]) + uint32(len(wqid)*13)

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgRwalk, tag); err != nil {
		return err
	}
	enc.writeUint16(uint16(len(wqid)))
	for _, q := range wqid {
		enc.writeQid(q)
	}
	return nil
}

func (enc *Encoder) Topen(tag uint16, fid uint32, mode uint8) error {
	size := uint32(4) + uint32(minSizeLUT[MsgTopen])

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgTopen, tag); err != nil {
		return err
	}
	enc.writeUint32(fid)
	enc.w.WriteByte(mode)
	return nil
}

func (enc *Encoder) Ropen(tag uint16, qid Qid, iounit uint32) error {
	size := uint32(4) + uint32(minSizeLUT[MsgRopen])

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgRopen, tag); err != nil {
		return err
	}
	enc.writeQid(qid)
	enc.writeUint32(iounit)
	return nil
}

func (enc *Encoder) Tcreate(tag uint16, fid uint32, name string, perm uint32, mode uint8) error {
	name = truncate(name, MaxFilenameLen)
	size := uint32(4) + uint32(minSizeLUT[MsgTcreate]) + uint32(len(name))

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgTcreate, tag); err != nil {
		return err
	}
	enc.writeUint32(fid)
	enc.writeString(name)
	enc.writeUint32(perm)
	enc.w.WriteByte(mode)
	return nil
}

func (enc *Encoder) Rcreate(tag uint16, qid Qid, iounit uint32) error {
	size := uint32(4) + uint32(minSizeLUT[MsgRcreate])

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgRcreate, tag); err != nil {
		return err
	}
	enc.writeQid(qid)
	enc.writeUint32(iounit)
	return nil
}

func (enc *Encoder) Tread(tag uint16, fid uint32, offset uint64, count uint32) error {
	size := uint32(4) + uint32(minSizeLUT[MsgTread])

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgTread, tag); err != nil {
		return err
	}
	enc.writeUint32(fid)
	enc.writeUint64(offset)
	enc.writeUint32(count)
	return nil
}

func (enc *Encoder) Rread(tag uint16, data []byte) error {
	size := uint32(4) + uint32(minSizeLUT[MsgRread]) + uint32(len(data))

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgRread, tag); err != nil {
		return err
	}
	enc.writeUint32(uint32(len(data)))
	_, err := enc.w.Write(data)
	return err
}

func (enc *Encoder) Twrite(tag uint16, fid uint32, offset uint64, data []byte) error {
	size := uint32(4) + uint32(minSizeLUT[MsgTwrite]) + uint32(len(data))

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgTwrite, tag); err != nil {
		return err
	}
	enc.writeUint32(fid)
	enc.writeUint64(offset)
	enc.writeUint32(uint32(len(data)))
	_, err := enc.w.Write(data)
	return err
}

func (enc *Encoder) Rwrite(tag uint16, count uint32) error {
	size := uint32(4) + uint32(minSizeLUT[MsgRwrite])
	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgRwrite, tag); err != nil {
		return err
	}
	enc.writeUint32(count)
	return nil
}

func (enc *Encoder) Tclunk(tag uint16, fid uint32) error {
	size := uint32(4) + uint32(minSizeLUT[MsgTclunk])
	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgTclunk, tag); err != nil {
		return err
	}
	enc.writeUint32(fid)
	return nil
}

func (enc *Encoder) Rclunk(tag uint16) error {
	size := uint32(4) + uint32(minSizeLUT[MsgRclunk])
	enc.mu.Lock()
	defer enc.mu.Unlock()
	return enc.writeHeader(size, MsgRclunk, tag)
}

func (enc *Encoder) Tremove(tag uint16, fid uint32) error {
	size := uint32(4) + uint32(minSizeLUT[MsgTremove])
	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgTremove, tag); err != nil {
		return err
	}
	enc.writeUint32(fid)
	return nil
}

func (enc *Encoder) Rremove(tag uint16) error {
	size := uint32(4) + uint32(minSizeLUT[MsgRremove])
	enc.mu.Lock()
	defer enc.mu.Unlock()
	return enc.writeHeader(size, MsgRremove, tag)
}

func (enc *Encoder) Tstat(tag uint16, fid uint32) error {
	size := uint32(4) + uint32(minSizeLUT[MsgTstat])
	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgTstat, tag); err != nil {
		return err
	}
	enc.writeUint32(fid)
	return nil
}

func (enc *Encoder) Rstat(tag uint16, stat Stat) error {
	size := uint32(4+1+2) + uint32(2+len(stat))

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgRstat, tag); err != nil {
		return err
	}
	enc.writeUint16(uint16(len(stat)))
	_, err := enc.w.Write(stat)
	return err
}

func (enc *Encoder) Twstat(tag uint16, fid uint32, stat Stat) error {
	size := uint32(4+1+2) + 4 + uint32(2+len(stat))

	enc.mu.Lock()
	defer enc.mu.Unlock()
	if err := enc.writeHeader(size, MsgTwstat, tag); err != nil {
		return err
	}
	enc.writeUint32(fid)
	enc.writeUint16(uint16(len(stat)))
	_, err := enc.w.Write(stat)
	return err
}

func (enc *Encoder) Rwstat(tag uint16) error {
	size := uint32(4) + uint32(minSizeLUT[MsgRwstat])
	enc.mu.Lock()
	defer enc.mu.Unlock()
	return enc.writeHeader(size, MsgRwstat, tag)
}

// NewStat packs a Stat record's fields into a fresh byte slice. The
// two-byte size prefix that Rstat/Twstat wrap around a Stat is added by
// the encoder, not stored here.
func NewStat(qid Qid, mode uint32, atime, mtime uint32, length int64, name, uid, gid, muid string) Stat {
	b := make([]byte, 0, minStatLen+len(name)+len(uid)+len(gid)+len(muid))
	b = append(b, 0, 0) // size placeholder, patched below
	b = append(b, 0, 0) // type
	b = buint32app(b, 0) // dev
	b = append(b, qid[:13]...)
	b = buint32app(b, mode)
	b = buint32app(b, atime)
	b = buint32app(b, mtime)
	b = buint64app(b, uint64(length))
	for _, s := range []string{name, uid, gid, muid} {
		var lenbuf [2]byte
		buint16(lenbuf[:], uint16(len(s)))
		b = append(b, lenbuf[:]...)
		b = append(b, s...)
	}
	buint16(b[0:2], uint16(len(b)-2))
	return Stat(b)
}
