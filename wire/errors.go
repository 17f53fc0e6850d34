package wire

import "errors"

type parseError string

func (p parseError) Error() string { return string(p) }

var (
	errContainsSlash  = parseError("slash in path element")
	errInvalidQidType = parseError("invalid type field in qid")
	errInvalidUTF8    = parseError("string is not valid utf8")
	errLongAname      = parseError("aname field too long")
	errLongError      = parseError("error message too long")
	errLongFilename   = parseError("file name too long")
	errLongSize       = parseError("size field is longer than actual message size")
	errLongLength     = parseError("long length field in stat structure")
	errLongStat       = parseError("stat structure too long")
	errLongString     = parseError("string field exceeds 65535 bytes")
	errLongUsername   = parseError("uid or gid name is too long")
	errLongVersion    = parseError("protocol version string too long")
	errMaxOffset      = parseError("maximum offset exceeded")
	errMaxWElem       = parseError("maximum walk elements exceeded")
	errNullString     = parseError("NUL in string field")
	errOverSize       = parseError("size of field exceeds size of message")
	errShortStat      = parseError("stat structure too short")
	errTooBig         = parseError("message is too long")
	errTooSmall       = parseError("message is too small")
	errUnderSize      = parseError("empty space in message")
	errZeroLen        = parseError("zero-length message")
)

// ErrMaxSize describes a message that exceeds the msize negotiated
// during the Tversion/Rversion exchange. Decoder does not return it:
// it discards such messages (see Decoder.Next).
var ErrMaxSize = errors.New("message exceeds msize")

// ErrUnknownMsgType is the BadMessage.Err value for a message whose
// type byte names no known 9P message. Its text is the literal
// spec.md mandates for an unknown message type's Rerror, not a
// generic parse-error string.
var ErrUnknownMsgType = parseError("operation not supported")
