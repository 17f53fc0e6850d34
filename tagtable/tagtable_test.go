package tagtable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocDistinctTagsNoNotag(t *testing.T) {
	tb := New(16)
	seen := make(map[uint16]bool)
	for i := 0; i < 16; i++ {
		p, err := tb.Alloc()
		require.NoError(t, err)
		assert.False(t, seen[p.Tag])
		assert.NotEqual(t, NOTAG, p.Tag)
		seen[p.Tag] = true
	}
	_, err := tb.Alloc()
	assert.Equal(t, ErrExhausted, err)
}

func TestFreeThenAllocReusesSlot(t *testing.T) {
	tb := New(4)
	p1, _ := tb.Alloc()
	tb.Free(p1.Tag)
	p2, err := tb.Alloc()
	require.NoError(t, err)
	assert.Equal(t, p1.Tag, p2.Tag)
}

func TestCompleteWakesWaiter(t *testing.T) {
	tb := New(4)
	p, _ := tb.Alloc()

	done := make(chan struct{})
	go func() {
		<-p.Wait()
		done <- struct{}{}
	}()

	ok := tb.Complete(p.Tag, Done, nil, []byte("hello"))
	require.True(t, ok)
	<-done
	assert.Equal(t, Done, p.Status)
	assert.Equal(t, "hello", string(p.Response))
}

func TestCompleteUnknownTagDropped(t *testing.T) {
	tb := New(4)
	ok := tb.Complete(999, Done, nil, nil)
	assert.False(t, ok)
}

func TestConcurrentAllocAllDistinct(t *testing.T) {
	tb := New(64)
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[uint16]bool)

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := tb.Alloc()
			require.NoError(t, err)
			mu.Lock()
			seen[p.Tag] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 64)
}
