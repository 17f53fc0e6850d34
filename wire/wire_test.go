package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Tversion(8192, "9P2000"))
	require.NoError(t, enc.Tattach(1, 0, NOFID, "glenda", "/"))
	require.NoError(t, enc.Twalk(2, 0, 1, []string{"usr", "glenda"}))
	require.NoError(t, enc.Flush())

	dec := NewDecoder(&buf)

	require.True(t, dec.Next())
	tv, ok := dec.Msg().(Tversion)
	require.True(t, ok)
	assert.EqualValues(t, 8192, tv.Msize())
	assert.Equal(t, "9P2000", tv.Version())
	assert.Equal(t, NOTAG, tv.Tag())

	require.True(t, dec.Next())
	ta, ok := dec.Msg().(Tattach)
	require.True(t, ok)
	assert.EqualValues(t, 1, ta.Tag())
	assert.EqualValues(t, 0, ta.Fid())
	assert.EqualValues(t, NOFID, ta.Afid())
	assert.Equal(t, "glenda", string(ta.Uname()))
	assert.Equal(t, "/", string(ta.Aname()))

	require.True(t, dec.Next())
	tw, ok := dec.Msg().(Twalk)
	require.True(t, ok)
	assert.Equal(t, 2, tw.Nwname())
	assert.Equal(t, "usr", string(tw.Wname(0)))
	assert.Equal(t, "glenda", string(tw.Wname(1)))

	assert.False(t, dec.Next())
	assert.NoError(t, dec.Err())
}

func TestStatRoundTrip(t *testing.T) {
	qid, _, err := NewQid(make([]byte, 13), QTFILE, 1, 42)
	require.NoError(t, err)

	st := NewStat(qid, 0644, 0, 0, 128, "hosts", "glenda", "glenda", "glenda")

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Rstat(7, st))
	require.NoError(t, enc.Flush())

	dec := NewDecoder(&buf)
	require.True(t, dec.Next())
	rs, ok := dec.Msg().(Rstat)
	require.True(t, ok)

	got := rs.Stat()
	assert.Equal(t, "hosts", string(got.Name()))
	assert.EqualValues(t, 128, got.Length())
	assert.Equal(t, uint64(42), got.Qid().Path())
}

func TestDecoderRejectsOversizeMessage(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Twrite(1, 0, 0, make([]byte, 4096)))
	require.NoError(t, enc.Flush())

	dec := NewDecoderSize(&buf, MinBufSize)
	dec.MaxSize = 64

	// Nothing else follows the oversize frame, so after discarding it
	// and resyncing the decoder hits a clean EOF, not ErrMaxSize.
	assert.False(t, dec.Next())
	assert.NoError(t, dec.Err())
}

func TestDecoderResyncsAfterOversizeMessage(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Twrite(1, 0, 0, make([]byte, 4096)))
	require.NoError(t, enc.Tclunk(2, 0))
	require.NoError(t, enc.Flush())

	dec := NewDecoderSize(&buf, MinBufSize)
	dec.MaxSize = 64

	// The oversize Twrite is dropped and the decoder resyncs, so the
	// well-formed Tclunk that follows is still delivered.
	require.True(t, dec.Next())
	tc, ok := dec.Msg().(Tclunk)
	require.True(t, ok)
	assert.EqualValues(t, 2, tc.Tag())

	assert.False(t, dec.Next())
	assert.NoError(t, dec.Err())
}

func TestDecoderRejectsBadMessageType(t *testing.T) {
	buf := make([]byte, 8)
	buint32(buf[:4], 8)
	buf[4] = 0xFE // not a valid message type
	buint16(buf[5:7], 9)

	dec := NewDecoder(bytes.NewReader(buf))
	require.True(t, dec.Next())
	bad, ok := dec.Msg().(BadMessage)
	require.True(t, ok)
	assert.EqualValues(t, 9, bad.Tag())
}

func TestTwalkRejectsTooManyElements(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	names := make([]string, MaxWElem+1)
	for i := range names {
		names[i] = "x"
	}
	assert.Error(t, enc.Twalk(1, 0, 1, names))
}
