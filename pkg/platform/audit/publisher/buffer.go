package publisher

import (
	"sync"

	audit "faucet/pkg/platform/audit"
)

const defaultBufferSize = 1024

// ringBuffer queues events for the background drain. A full buffer evicts
// its oldest event so bursts never block request handling.
type ringBuffer struct {
	mu      sync.Mutex
	slots   []audit.Event
	start   int
	size    int
	dropped int64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = defaultBufferSize
	}
	return &ringBuffer{slots: make([]audit.Event, capacity)}
}

func (b *ringBuffer) enqueue(event audit.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == len(b.slots) {
		b.slots[b.start] = event
		b.start = b.index(1)
		b.dropped++
		return
	}
	b.slots[b.index(b.size)] = event
	b.size++
}

// dequeueBatch removes and returns up to n of the oldest events.
func (b *ringBuffer) dequeueBatch(n int) []audit.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	n = min(n, b.size)
	if n <= 0 {
		return nil
	}
	out := make([]audit.Event, n)
	for i := range out {
		slot := b.index(i)
		out[i] = b.slots[slot]
		b.slots[slot] = audit.Event{}
	}
	b.start = b.index(n)
	b.size -= n
	return out
}

func (b *ringBuffer) index(offset int) int {
	return (b.start + offset) % len(b.slots)
}

func (b *ringBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *ringBuffer) droppedCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
