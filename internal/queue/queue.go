package queue

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Queue is a concurrent map from a monotonically increasing id to an item.
// Every registry in the engine (servers, connections, slots, files, commands,
// redirect stacks) is a Queue. It needs no external lock: Take removes the
// lowest id atomically, so a single item is never handed to two callers.
type Queue[T any] struct {
	items  sync.Map // int64 -> T
	lastID atomic.Int64
	count  atomic.Int64
	sealed atomic.Bool
}

func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// From builds a sealed queue holding items under ids 1..len(items).
func From[T any](items []T) *Queue[T] {
	q := New[T]()
	for _, it := range items {
		q.Add(it)
	}
	q.Seal()
	return q
}

// Add stores item under the next free id and returns it.
func (q *Queue[T]) Add(item T) int64 {
	for {
		id := q.lastID.Add(1)
		if _, loaded := q.items.LoadOrStore(id, item); !loaded {
			q.count.Add(1)
			return id
		}
	}
}

// Put stores item under an explicit id. It returns false if the id is taken.
func (q *Queue[T]) Put(id int64, item T) bool {
	if _, loaded := q.items.LoadOrStore(id, item); loaded {
		return false
	}
	q.count.Add(1)

	// keep automatic ids ahead of explicit ones
	for {
		last := q.lastID.Load()
		if id <= last || q.lastID.CompareAndSwap(last, id) {
			return true
		}
	}
}

func (q *Queue[T]) Get(id int64) (T, bool) {
	v, ok := q.items.Load(id)
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

func (q *Queue[T]) Contains(id int64) bool {
	_, ok := q.items.Load(id)
	return ok
}

// Remove deletes id and returns the removed item.
func (q *Queue[T]) Remove(id int64) (T, bool) {
	v, ok := q.items.LoadAndDelete(id)
	if !ok {
		var zero T
		return zero, false
	}
	q.count.Add(-1)
	return v.(T), true
}

// Take removes and returns the item with the lowest id currently present.
// A concurrent Remove or Take of the same id makes it retry with the next
// lowest one.
func (q *Queue[T]) Take() (T, int64, bool) {
	for {
		id, ok := q.lowest()
		if !ok {
			var zero T
			return zero, 0, false
		}
		if item, ok := q.Remove(id); ok {
			return item, id, true
		}
	}
}

func (q *Queue[T]) lowest() (int64, bool) {
	var (
		min   int64
		found bool
	)
	q.items.Range(func(k, _ any) bool {
		id := k.(int64)
		if !found || id < min {
			min = id
			found = true
		}
		return true
	})
	return min, found
}

func (q *Queue[T]) Len() int {
	return int(q.count.Load())
}

func (q *Queue[T]) Empty() bool {
	return q.count.Load() <= 0
}

// IDs returns the ids currently present in ascending order.
func (q *Queue[T]) IDs() []int64 {
	ids := make([]int64, 0, q.Len())
	q.items.Range(func(k, _ any) bool {
		ids = append(ids, k.(int64))
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Items returns a snapshot of the items ordered by id.
func (q *Queue[T]) Items() []T {
	ids := q.IDs()
	items := make([]T, 0, len(ids))
	for _, id := range ids {
		if it, ok := q.Get(id); ok {
			items = append(items, it)
		}
	}
	return items
}

// Clear removes every item. Ids are not reused afterwards.
func (q *Queue[T]) Clear() {
	q.items.Range(func(k, _ any) bool {
		if _, ok := q.items.LoadAndDelete(k); ok {
			q.count.Add(-1)
		}
		return true
	})
}

// Seal marks the queue as fully populated.
func (q *Queue[T]) Seal() { q.sealed.Store(true) }

func (q *Queue[T]) Sealed() bool { return q.sealed.Load() }

// Done reports whether the queue is sealed and drained.
func (q *Queue[T]) Done() bool { return q.Sealed() && q.Empty() }
