package gateway

import (
	"sort"
	"sync"
)

// replayEntry holds one sent frame.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps a user's most recent frames in seq order so a
// reconnecting client can resume from the last seq it saw.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	max     int
}

// NewReplayBuffer creates a replay buffer holding up to size frames.
func NewReplayBuffer(size int) *ReplayBuffer {
	if size <= 0 {
		size = 100
	}
	return &ReplayBuffer{max: size, entries: make([]replayEntry, 0, size)}
}

// Push stores a copy of data under seq. Seqs must be pushed in increasing
// order; once full the oldest frame is evicted.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.entries) == rb.max {
		copy(rb.entries, rb.entries[1:])
		rb.entries = rb.entries[:rb.max-1]
	}
	rb.entries = append(rb.entries, replayEntry{Seq: seq, Data: append([]byte(nil), data...)})
}

// Since returns the frames after seq, oldest first. The second result is
// false when frames after seq have already been evicted.
func (rb *ReplayBuffer) Since(seq int64) ([]replayEntry, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	i := sort.Search(len(rb.entries), func(i int) bool { return rb.entries[i].Seq > seq })
	complete := len(rb.entries) == 0 || rb.entries[0].Seq <= seq+1
	return append([]replayEntry(nil), rb.entries[i:]...), complete
}

// Len returns the number of frames held.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}
