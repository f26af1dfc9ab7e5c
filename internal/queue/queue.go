package queue

import (
	"context"
	"sync"
)

// Queue is the bounded, blocking deque of Items described in §4.4. Its
// capacity bounds only KindFrame items: metadata items (signal changes,
// drop counts, errors) are always accepted so they can never be starved
// behind a full frame backlog.
//
// Every mutating operation broadcasts on the internal condition variable,
// matching §4.4's "any state transition that could unblock a waiter --
// push, pop, drop, close -- must broadcast, not signal, since both
// producers and consumers may be waiting".
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []Item
	cap      int
	closed   bool
	dropped  int // cumulative frames coalesced away by overrun (§4.4)
}

// New constructs a Queue bounded at capacity frames.
func New(capacity int) *Queue {
	q := &Queue{cap: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// frameCount returns how many of q.items are KindFrame, under q.mu.
func (q *Queue) frameCount() int {
	n := 0
	for _, it := range q.items {
		if it.Kind == KindFrame {
			n++
		}
	}
	return n
}

// PushTail appends it to the queue. If it is a KindFrame item and the
// queue is already at capacity, the oldest KindFrame item is dropped (its
// buffers released) and coalesced into a FramesDropped count -- rather
// than growing unbounded or blocking the producer (§4.4: "overrun never
// blocks the capture engine; it always drops the oldest frame and keeps
// moving").
//
// PushTail is a no-op (after releasing it's resources) once the queue is
// closed.
func (q *Queue) PushTail(it Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		it.Drop()
		return
	}

	if it.Kind == KindFrame && q.frameCount() >= q.cap {
		q.dropOldestFrameLocked()
	}

	q.items = append(q.items, it)
	q.cond.Broadcast()
}

// dropOldestFrameLocked evicts the first KindFrame item in q.items,
// releasing its buffers, and accumulates the drop count so the next
// PushTail of metadata can be followed by a FramesDropped item. Callers
// typically push their own FramesDropped item via DrainDropped after
// calling this (engines call PushTail, see the comment in PushTail).
func (q *Queue) dropOldestFrameLocked() {
	for i, it := range q.items {
		if it.Kind == KindFrame {
			it.Drop()
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.dropped++
			return
		}
	}
}

// DrainDropped returns and resets the count of frames coalesced away by
// overrun since the last call, for the caller to wrap in a
// FramesDroppedItem and push.
func (q *Queue) DrainDropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.dropped
	q.dropped = 0
	return n
}

// PopHead blocks until an item is available or ctx is done, then removes
// and returns the head item. ok is false if ctx was cancelled or the
// queue was closed with nothing left to drain.
func (q *Queue) PopHead(ctx context.Context) (it Item, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		if !q.waitLocked(ctx) {
			return Item{}, false
		}
	}
	if len(q.items) == 0 {
		return Item{}, false
	}

	it = q.items[0]
	q.items = q.items[1:]
	q.cond.Broadcast()
	return it, true
}

// waitLocked blocks on q.cond, honoring ctx cancellation, with q.mu held
// on entry and on every return path. Returns false if ctx was cancelled.
func (q *Queue) waitLocked(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		close(done)
		q.cond.Broadcast()
	})
	defer stop()

	q.cond.Wait()

	select {
	case <-done:
		return false
	default:
		return ctx.Err() == nil
	}
}

// PeekNth returns the item at index n (0 == head) without removing it.
func (q *Queue) PeekNth(n int) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n < 0 || n >= len(q.items) {
		return Item{}, false
	}
	return q.items[n], true
}

// DropStructAt removes and releases the item at index i (§4.4's
// drop_struct_at, used by the caps-change drain handshake (§4.6.4) to
// discard a stale item without popping everything ahead of it).
func (q *Queue) DropStructAt(i int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.items) {
		return
	}
	q.items[i].Drop()
	q.items = append(q.items[:i], q.items[i+1:]...)
	q.cond.Broadcast()
}

// Length returns the current total item count (frames and metadata).
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// FrameCount returns the current count of KindFrame items only -- the
// value compared against capacity.
func (q *Queue) FrameCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.frameCount()
}

// Close marks the queue closed: further PushTail calls drop their items,
// and PopHead drains whatever remains before reporting !ok. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Flush drops and releases every item currently queued, without closing
// the queue -- used on the caps-change drain path (§4.6.4) once draining
// completes.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		it.Drop()
	}
	q.items = nil
	q.cond.Broadcast()
}
