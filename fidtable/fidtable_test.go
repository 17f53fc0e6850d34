package fidtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocInUse(t *testing.T) {
	tb := New(4)
	require.NoError(t, tb.Alloc(1, "root", "glenda"))
	assert.Equal(t, ErrInUse, tb.Alloc(1, "other", "glenda"))
}

func TestAllocFullThenFreeThenAllocSucceeds(t *testing.T) {
	tb := New(2)
	require.NoError(t, tb.Alloc(1, "a", "glenda"))
	require.NoError(t, tb.Alloc(2, "b", "glenda"))
	assert.Equal(t, ErrFull, tb.Alloc(3, "c", "glenda"))

	require.NoError(t, tb.Free(1))
	assert.NoError(t, tb.Alloc(1, "a2", "glenda"))
}

func TestLookupAndFree(t *testing.T) {
	tb := New(4)
	require.NoError(t, tb.Alloc(7, "node7", "glenda"))

	node, uname, ok := tb.Lookup(7)
	require.True(t, ok)
	assert.Equal(t, "node7", node)
	assert.Equal(t, "glenda", uname)

	require.NoError(t, tb.Free(7))
	_, _, ok = tb.Lookup(7)
	assert.False(t, ok)
	assert.Equal(t, ErrNotFound, tb.Free(7))
}

func TestClearRemovesAllFids(t *testing.T) {
	tb := New(4)
	require.NoError(t, tb.Alloc(0, "root", "glenda"))
	require.NoError(t, tb.Alloc(1, "child", "glenda"))
	tb.Clear()
	assert.Equal(t, 0, tb.Len())
	_, _, ok := tb.Lookup(0)
	assert.False(t, ok)
}

func TestRebindPreservesFidNumber(t *testing.T) {
	tb := New(4)
	require.NoError(t, tb.Alloc(5, "dir", "glenda"))
	require.NoError(t, tb.SetOpened(5, 8192))

	require.NoError(t, tb.Rebind(5, "newfile"))
	node, _, ok := tb.Lookup(5)
	require.True(t, ok)
	assert.Equal(t, "newfile", node)

	iounit, opened := tb.Opened(5)
	assert.False(t, opened)
	assert.Zero(t, iounit)
}

func TestFidZeroIsOrdinary(t *testing.T) {
	tb := New(4)
	assert.NoError(t, tb.Alloc(0, "root", "glenda"))
	_, _, ok := tb.Lookup(0)
	assert.True(t, ok)
}
