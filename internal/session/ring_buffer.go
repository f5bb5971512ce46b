package session

import "sync"

// RingBuffer is a fixed-capacity circular buffer of history entries.
// Once full, each write overwrites the oldest entry.
type RingBuffer struct {
	mu       sync.RWMutex
	buf      []HistoryEntry
	capacity int
	pos      int // next write position
	full     bool
}

// NewRingBuffer creates a ring buffer with the given capacity. A capacity
// below one is raised to one.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		buf:      make([]HistoryEntry, capacity),
		capacity: capacity,
	}
}

// Write adds an entry to the ring buffer.
func (rb *RingBuffer) Write(entry HistoryEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buf[rb.pos] = entry
	rb.pos = (rb.pos + 1) % rb.capacity
	if rb.pos == 0 {
		rb.full = true
	}
}

// Len returns the number of entries held.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.full {
		return rb.capacity
	}
	return rb.pos
}

// ReadAll returns all entries in chronological order.
func (rb *RingBuffer) ReadAll() []HistoryEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if !rb.full {
		result := make([]HistoryEntry, rb.pos)
		copy(result, rb.buf[:rb.pos])
		return result
	}

	result := make([]HistoryEntry, rb.capacity)
	copy(result, rb.buf[rb.pos:])
	copy(result[rb.capacity-rb.pos:], rb.buf[:rb.pos])
	return result
}
