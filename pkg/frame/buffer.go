package frame

import (
	"sync"
)

// Policy selects how a Buffer treats frames that arrive before the
// consumer has read the previous ones.
type Policy int

const (
	// LatestWins keeps a single slot. Push overwrites any unread frame,
	// so the consumer never sees a frame older than the newest one pushed.
	LatestWins Policy = iota

	// Ordered keeps a FIFO so consecutive frames are delivered in order.
	// When the FIFO is full the oldest entry is dropped; Push never blocks.
	Ordered
)

// DefaultOrderedCapacity bounds the FIFO used by the Ordered policy.
const DefaultOrderedCapacity = 32

func (p Policy) String() string {
	switch p {
	case LatestWins:
		return "latest-wins"
	case Ordered:
		return "ordered"
	default:
		return "unknown"
	}
}

// BufferStats is a snapshot of buffer counters.
type BufferStats struct {
	Policy  string `json:"policy"`
	Pushed  uint64 `json:"pushed"`
	Popped  uint64 `json:"popped"`
	Dropped uint64 `json:"dropped"` // overwritten or evicted before being read
	Cleared uint64 `json:"cleared"` // discarded by Clear or SetPolicy
	Pending int    `json:"pending"`
	LastSeq uint64 `json:"last_seq"`
}

// Buffer passes frames from one producer to one consumer.
//
// Push is called from the frame source's callback and never blocks beyond a
// short mutex section. PopLatest never blocks; an empty buffer is a normal state.
type Buffer struct {
	mu       sync.Mutex
	policy   Policy
	capacity int

	latest *Frame   // LatestWins slot (nil = consumed)
	queue  []*Frame // Ordered FIFO, oldest first

	seq   uint64
	stats BufferStats
}

// NewBuffer creates a buffer with the given policy. capacity bounds the
// Ordered FIFO; values < 1 use DefaultOrderedCapacity.
func NewBuffer(policy Policy, capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultOrderedCapacity
	}
	return &Buffer{
		policy:   policy,
		capacity: capacity,
		queue:    make([]*Frame, 0, capacity),
	}
}

// Push publishes a frame. Nil frames are ignored.
func (b *Buffer) Push(f *Frame) {
	if f == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	if f.Seq == 0 {
		// The producer's frame is never written; the copy shares its pixels
		stamped := *f
		stamped.Seq = b.seq
		f = &stamped
	}
	b.stats.Pushed++
	b.stats.LastSeq = f.Seq

	switch b.policy {
	case Ordered:
		if len(b.queue) >= b.capacity {
			b.queue[0] = nil
			b.queue = b.queue[1:]
			b.stats.Dropped++
		}
		b.queue = append(b.queue, f)
	default:
		if b.latest != nil {
			b.stats.Dropped++
		}
		b.latest = f
	}
}

// PopLatest removes and returns the next frame for the consumer.
// LatestWins returns the single most recent unread frame; Ordered returns
// the oldest buffered frame. ok is false when nothing is buffered.
func (b *Buffer) PopLatest() (f *Frame, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.policy {
	case Ordered:
		if len(b.queue) == 0 {
			return nil, false
		}
		f = b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]
	default:
		if b.latest == nil {
			return nil, false
		}
		f = b.latest
		b.latest = nil
	}

	b.stats.Popped++
	return f, true
}

// Clear discards every buffered frame. Frames pushed before Clear returns
// are never handed out afterwards.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
}

func (b *Buffer) clearLocked() {
	if b.latest != nil {
		b.stats.Cleared++
		b.latest = nil
	}
	for i := range b.queue {
		b.queue[i] = nil
	}
	b.stats.Cleared += uint64(len(b.queue))
	b.queue = b.queue[:0]
}

// SetPolicy switches the buffering policy. Buffered frames are discarded so
// frames captured under the old mode are never mixed into the new one.
func (b *Buffer) SetPolicy(p Policy) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clearLocked()
	b.policy = p
}

// Policy returns the current policy.
func (b *Buffer) Policy() Policy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.policy
}

// Len returns the number of unread frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.policy == Ordered {
		return len(b.queue)
	}
	if b.latest != nil {
		return 1
	}
	return 0
}

// Stats returns a snapshot of the buffer counters.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stats
	s.Policy = b.policy.String()
	if b.policy == Ordered {
		s.Pending = len(b.queue)
	} else if b.latest != nil {
		s.Pending = 1
	}
	return s
}
