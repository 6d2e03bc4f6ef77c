package aio

import (
	"container/heap"
	"time"
)

// timerEntry is one scheduled timer callback. Ties on deadline are broken
// by seq, the dispatcher's monotonically increasing insertion counter, so
// timers with equal deadlines fire in insertion order (§5 ordering
// guarantee).
type timerEntry struct {
	deadline  time.Time
	seq       uint64
	fn        func()
	index     int
	cancelled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timerCancelHandle lets a caller cancel a scheduled timer in O(log n).
type timerCancelHandle struct {
	d     *Dispatcher
	entry *timerEntry
}

func (h *timerCancelHandle) Cancel() {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	if h.entry.index < 0 || h.entry.cancelled {
		return
	}
	h.entry.cancelled = true
	heap.Remove(&h.d.timers, h.entry.index)
}
