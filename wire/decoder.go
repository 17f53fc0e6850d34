package wire

import (
	"bufio"
	"io"
)

// NewDecoder returns a Decoder with an internal buffer sized for
// DefaultMsize-sized messages.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderSize(r, DefaultMsize)
}

// NewDecoderSize returns a Decoder whose internal buffer holds at
// least max(MinBufSize, msize) bytes, so that the largest legal
// message for the negotiated msize is never split across fills.
func NewDecoderSize(r io.Reader, msize int) *Decoder {
	if msize < MinBufSize {
		msize = MinBufSize
	}
	return &Decoder{br: bufio.NewReaderSize(r, msize), MaxSize: int64(msize)}
}

// Decoder reads a stream of 9P messages from an io.Reader. A Decoder
// is not safe for concurrent use; callers that share one across
// goroutines must serialize access themselves (transport.StreamFramer
// avoids sharing by creating its own Decoder inside Run).
type Decoder struct {
	// MaxSize is the negotiated msize. Messages larger than MaxSize
	// are discarded unparsed and Next moves on to the following one.
	MaxSize int64

	br  *bufio.Reader
	msg Msg
	err error
}

// Reset discards any buffered state and resumes reading from r.
func (d *Decoder) Reset(r io.Reader) {
	d.br.Reset(r)
	d.msg = nil
	d.err = nil
}

// Err returns the first non-EOF error encountered while decoding.
func (d *Decoder) Err() error {
	if d.err == io.EOF {
		return nil
	}
	return d.err
}

// Msg returns the message most recently decoded by Next.
func (d *Decoder) Msg() Msg { return d.msg }

// Next decodes the next message in the stream. It returns false on
// EOF or on any read error; Err distinguishes the two. A message that
// fails validation is reported as a BadMessage rather than causing
// Next to return false, so that a server can still reply Rerror using
// its tag.
//
// A claimed size larger than MaxSize is never parsed: Next discards
// exactly that many bytes (resyncing to the next frame boundary) and
// resumes size-parsing, rather than ending the stream, per spec.md's
// framing rule that an oversized frame is dropped, not fatal.
func (d *Decoder) Next() bool {
	for {
		d.msg = nil
		size, err := d.peekSize()
		if err != nil {
			d.err = err
			return false
		}
		if size < minMsgSize {
			d.err = errTooSmall
			return false
		}
		if d.MaxSize > 0 && int64(size) > d.MaxSize {
			if _, err := d.br.Discard(int(size)); err != nil {
				d.err = err
				return false
			}
			continue
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(d.br, buf); err != nil {
			d.err = err
			return false
		}
		d.msg = d.parse(buf)
		return true
	}
}

func (d *Decoder) peekSize() (uint32, error) {
	head, err := d.br.Peek(4)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}
	return guint32(head), nil
}

// parse validates buf's header and dispatches to the concrete message
// constructor for its type. Invalid messages are returned as
// BadMessage rather than discarded, so a tag is always available to
// reply to.
func (d *Decoder) parse(buf []byte) Msg {
	m := msg(buf)
	if len(buf) < 7 {
		return BadMessage{Err: errTooSmall, raw: buf}
	}
	t := m.Type()
	tag := m.Tag()
	minSize, ok := minSizeFor(t)
	if !ok {
		return BadMessage{Err: ErrUnknownMsgType, tag: tag, raw: buf}
	}
	if int64(len(buf)-4) < int64(minSize) {
		return BadMessage{Err: errTooSmall, tag: tag, raw: buf}
	}
	if err := verifyMessageBody(MsgType(t), buf); err != nil {
		return BadMessage{Err: err, tag: tag, raw: buf}
	}
	switch MsgType(t) {
	case MsgTversion:
		return Tversion(buf)
	case MsgRversion:
		return Rversion(buf)
	case MsgTauth:
		return Tauth(buf)
	case MsgRauth:
		return Rauth(buf)
	case MsgTattach:
		return Tattach(buf)
	case MsgRattach:
		return Rattach(buf)
	case MsgRerror:
		return Rerror(buf)
	case MsgTflush:
		return Tflush(buf)
	case MsgRflush:
		return Rflush(buf)
	case MsgTwalk:
		return Twalk(buf)
	case MsgRwalk:
		return Rwalk(buf)
	case MsgTopen:
		return Topen(buf)
	case MsgRopen:
		return Ropen(buf)
	case MsgTcreate:
		return Tcreate(buf)
	case MsgRcreate:
		return Rcreate(buf)
	case MsgTread:
		return Tread(buf)
	case MsgRread:
		return Rread(buf)
	case MsgTwrite:
		return Twrite(buf)
	case MsgRwrite:
		return Rwrite(buf)
	case MsgTclunk:
		return Tclunk(buf)
	case MsgRclunk:
		return Rclunk(buf)
	case MsgTremove:
		return Tremove(buf)
	case MsgRremove:
		return Rremove(buf)
	case MsgTstat:
		return Tstat(buf)
	case MsgRstat:
		return Rstat(buf)
	case MsgTwstat:
		return Twstat(buf)
	case MsgRwstat:
		return Rwstat(buf)
	}
	return BadMessage{Err: ErrUnknownMsgType, tag: tag, raw: buf}
}

// verifyMessageBody runs the type-specific field validation that
// guards against a malicious or buggy peer sending oversized length
// prefixes that would otherwise cause a field accessor to index past
// the end of buf.
func verifyMessageBody(t MsgType, buf []byte) error {
	switch t {
	case MsgTversion, MsgRversion:
		version, _, err := verifyField(buf[11:], true, 0)
		if err != nil {
			return err
		}
		if len(version) > MaxVersionLen {
			return errLongVersion
		}
		return verifyString(version)
	case MsgTauth:
		uname, rest, err := verifyField(buf[11:], false, 2)
		if err != nil {
			return err
		}
		if err := verifyString(uname); err != nil {
			return err
		}
		aname, _, err := verifyField(rest, true, 0)
		if err != nil {
			return err
		}
		if len(aname) > MaxAttachLen {
			return errLongAname
		}
		return verifyString(aname)
	case MsgTattach:
		uname, rest, err := verifyField(buf[15:], false, 2)
		if err != nil {
			return err
		}
		if err := verifyString(uname); err != nil {
			return err
		}
		aname, _, err := verifyField(rest, true, 0)
		if err != nil {
			return err
		}
		if len(aname) > MaxAttachLen {
			return errLongAname
		}
		return verifyString(aname)
	case MsgRerror:
		ename, _, err := verifyField(buf[7:], true, 0)
		if err != nil {
			return err
		}
		if len(ename) > MaxErrorLen {
			return errLongError
		}
		return verifyString(ename)
	case MsgTwalk:
		nwname := int(guint16(buf[15:17]))
		if nwname > MaxWElem {
			return errMaxWElem
		}
		offset := 17
		for i := 0; i < nwname; i++ {
			if offset+2 > len(buf) {
				return errOverSize
			}
			size := int(guint16(buf[offset : offset+2]))
			offset += 2
			if offset+size > len(buf) {
				return errOverSize
			}
			if err := verifyPathElem(buf[offset : offset+size]); err != nil {
				return err
			}
			offset += size
		}
		return nil
	case MsgRwalk:
		nwqid := int(guint16(buf[7:9]))
		if 9+nwqid*13 > len(buf) {
			return errOverSize
		}
		return nil
	case MsgTcreate:
		name, _, err := verifyField(buf[11:], false, 5)
		if err != nil {
			return err
		}
		if len(name) > MaxFilenameLen {
			return errLongFilename
		}
		return verifyPathElem(name)
	case MsgTread, MsgTwrite:
		if off := guint64(buf[11:19]); off > MaxOffset {
			return errMaxOffset
		}
		if t == MsgTwrite && 23+int64(guint32(buf[19:23])) > int64(len(buf)) {
			return errOverSize
		}
		return nil
	case MsgRread:
		if 11+int64(guint32(buf[7:11])) > int64(len(buf)) {
			return errOverSize
		}
		return nil
	case MsgRstat:
		stat, _, err := verifyField(buf[7:], true, 0)
		if err != nil {
			return err
		}
		return verifyStat(stat)
	case MsgTwstat:
		stat, _, err := verifyField(buf[11:], true, 0)
		if err != nil {
			return err
		}
		return verifyStat(stat)
	}
	return nil
}
