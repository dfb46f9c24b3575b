package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueue_AddAssignsIncreasingIDs(t *testing.T) {
	q := New[string]()

	require.Equal(t, int64(1), q.Add("a"))
	require.Equal(t, int64(2), q.Add("b"))

	_, ok := q.Remove(2)
	require.True(t, ok)

	// removed ids are not handed out again
	require.Equal(t, int64(3), q.Add("c"))
	require.Equal(t, []int64{1, 3}, q.IDs())
}

func TestQueue_PutRejectsTakenID(t *testing.T) {
	q := New[string]()

	require.True(t, q.Put(10, "x"))
	require.False(t, q.Put(10, "y"))

	v, ok := q.Get(10)
	require.True(t, ok)
	require.Equal(t, "x", v)

	// automatic ids continue past the explicit one
	require.Equal(t, int64(11), q.Add("z"))
}

func TestQueue_TakeReturnsLowestID(t *testing.T) {
	q := New[string]()
	q.Put(5, "five")
	q.Put(2, "two")
	q.Put(9, "nine")

	v, id, ok := q.Take()
	require.True(t, ok)
	require.Equal(t, int64(2), id)
	require.Equal(t, "two", v)

	require.Equal(t, []string{"five", "nine"}, q.Items())

	q.Clear()
	_, _, ok = q.Take()
	require.False(t, ok)
	require.True(t, q.Empty())
}

func TestQueue_SealAndDone(t *testing.T) {
	q := From([]int{1, 2})
	require.True(t, q.Sealed())
	require.False(t, q.Done())

	q.Take()
	q.Take()
	require.True(t, q.Done())
}

func TestQueue_ConcurrentTakeIsExclusive(t *testing.T) {
	const items = 2000
	const workers = 16

	q := New[int]()
	for i := 0; i < items; i++ {
		q.Add(i)
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
		wg   sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, id, ok := q.Take()
				if !ok {
					return
				}
				mu.Lock()
				seen[id]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, items)
	for id, n := range seen {
		require.Equal(t, 1, n, "id %d delivered %d times", id, n)
	}
	require.Equal(t, 0, q.Len())
}
