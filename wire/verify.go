package wire

import "unicode/utf8"

// verifyString checks that data is a valid UTF-8 sequence, as required
// of every string field in the protocol.
func verifyString(data []byte) error {
	if !utf8.Valid(data) {
		return errInvalidUTF8
	}
	return nil
}

// verifyPathElem checks that data is a valid single path element: no
// slash, valid UTF-8.
func verifyPathElem(data []byte) error {
	for _, v := range data {
		if v == '/' {
			return errContainsSlash
		}
	}
	return verifyString(data)
}

// verifyField reads the first length-prefixed field from data and
// returns it along with whatever follows it. If fill is true, the
// field is expected to consume all of data (minus padding bytes that
// follow it) with no trailing slack.
func verifyField(data []byte, fill bool, padding int) (field, rest []byte, err error) {
	if len(data) < 2 {
		return nil, nil, errTooSmall
	}
	size := int(guint16(data[:2]))
	if size+2 > len(data)-padding {
		return nil, nil, errOverSize
	}
	_ = fill
	body := data[2:]
	return body[:size], body[size:], nil
}
