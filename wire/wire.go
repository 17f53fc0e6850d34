// Package wire implements bit-exact serialization and deserialization
// of 9P2000 messages.
//
// Messages are not unmarshaled into structures. Instead, a message is
// kept as a raw byte slice and its fields are parsed on demand through
// methods, in the style of a zero-copy wire parser: the msg type
// exposes the fields common to every 9P message, and each message type
// is its own []byte type that converts to msg to reach them.
package wire

import (
	"encoding/binary"
	"fmt"
)

// msg is the common header shared by every 9P message: a 4-byte size
// (including itself), a 1-byte type, and a 2-byte tag.
type msg []byte

func (m msg) Type() uint8  { return m[4] }
func (m msg) Tag() uint16  { return guint16(m[5:7]) }
func (m msg) Body() []byte { return m[7:] }

// Len returns the total length of the message in bytes, including the
// size field itself.
func (m msg) Len() int64 { return int64(guint32(m[:4])) }

// nthField reads the nth length-prefixed string starting at offset.
// Calling nthField on a message that has not been verified can result
// in a run-time panic if the size headers are incorrect; the Decoder's
// verifyMessageBody must have accepted anything that did not originate from this
// package's own Encoder.
func (m msg) nthField(offset, n int) []byte {
	size := int(binary.LittleEndian.Uint16(m[offset : offset+2]))
	for i := 0; i < n; i++ {
		offset += size + 2
		size = int(binary.LittleEndian.Uint16(m[offset : offset+2]))
	}
	return m[offset+2 : offset+2+size]
}

// Msg is a single 9P message, either a request sent by a client
// (T-message) or a response sent by a server (R-message).
type Msg interface {
	// Tag is the transaction identifier pairing a T-message to its
	// R-message. No two pending T-messages from the same caller may
	// share a tag, except NOTAG which is reserved for Tversion.
	Tag() uint16

	// Len returns the total length of the message in bytes.
	Len() int64
}

// guint16/32/64 read little-endian integers; buint16/32/64 write them.
var (
	guint16 = binary.LittleEndian.Uint16
	guint32 = binary.LittleEndian.Uint32
	guint64 = binary.LittleEndian.Uint64

	buint16 = binary.LittleEndian.PutUint16
	buint32 = binary.LittleEndian.PutUint32
	buint64 = binary.LittleEndian.PutUint64
)

// BadMessage represents a message that failed validation. Its Err
// field names the reason; dispatchers must reply with Rerror using
// the embedded tag rather than drop the message silently.
type BadMessage struct {
	Err error
	tag uint16
	raw []byte
}

func (m BadMessage) Tag() uint16 { return m.tag }
func (m BadMessage) Len() int64  { return int64(len(m.raw)) }

// Raw returns the message's original wire bytes, so a caller that only
// has a decoded Msg (e.g. transport.StreamFramer) can still forward the
// bytes for redecoding at the point that will reply with Rerror.
func (m BadMessage) Raw() []byte { return m.raw }

func (m BadMessage) String() string {
	return fmt.Sprintf("bad message: %v", m.Err)
}
