package wire

import (
	"fmt"
	"io"
)

// Qid is the server's unique identifier for a file: two files on the
// same session are the same file if and only if their Qids are equal.
type Qid []byte

// NewQid packs a Qid's fields into buf, returning the Qid and the
// unused remainder of buf.
func NewQid(buf []byte, qtype QidType, version uint32, path uint64) (Qid, []byte, error) {
	if len(buf) < 13 {
		return nil, buf, io.ErrShortBuffer
	}
	b := buf[:0]
	b = append(b, byte(qtype))
	b = buint32app(b, version)
	b = buint64app(b, path)
	return Qid(b), buf[len(b):], nil
}

func (q Qid) Type() QidType    { return QidType(q[0]) }
func (q Qid) Version() uint32  { return guint32(q[1:5]) }
func (q Qid) Path() uint64     { return guint64(q[5:13]) }
func (q Qid) String() string {
	return fmt.Sprintf("type=%d ver=%d path=%x", q.Type(), q.Version(), q.Path())
}

// QidType is a bit vector mirroring the high byte of a file's mode.
type QidType uint8

const (
	QTDIR    QidType = 0x80
	QTAPPEND QidType = 0x40
	QTEXCL   QidType = 0x20
	QTMOUNT  QidType = 0x10
	QTAUTH   QidType = 0x08
	QTTMP    QidType = 0x04
	QTFILE   QidType = 0x00
)

func buint32app(b []byte, v uint32) []byte {
	var tmp [4]byte
	buint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func buint64app(b []byte, v uint64) []byte {
	var tmp [8]byte
	buint64(tmp[:], v)
	return append(b, tmp[:]...)
}
