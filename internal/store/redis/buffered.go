package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"taxsync-pro/internal/model"
)

// BufferedPublisher wraps a Cache so sync events raised while the circuit is
// open are queued locally and published once it closes again.
type BufferedPublisher struct {
	cache *Cache
	ctx   context.Context

	mu     sync.Mutex
	buffer []model.SyncEvent
	maxBuf int // max buffered events before dropping oldest (default: 1000)

	// Callbacks
	OnBuffer func()          // called when an event is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered events
}

var _ model.EventPublisher = (*BufferedPublisher)(nil)

// NewBufferedPublisher hooks flush-on-close into the cache's breaker.
// ctx bounds the background flushes.
func NewBufferedPublisher(ctx context.Context, c *Cache, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	bp := &BufferedPublisher{
		cache:  c,
		ctx:    ctx,
		buffer: make([]model.SyncEvent, 0, 64),
		maxBuf: maxBufferSize,
	}

	prevCallback := c.cb.OnStateChange
	c.cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bp.flush()
		}
	}
	return bp
}

// Publish sends ev, or buffers it if the breaker is open.
func (bp *BufferedPublisher) Publish(ctx context.Context, ev model.SyncEvent) {
	err := bp.cache.publish(ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, ErrCircuitOpen):
		bp.bufferEvent(ev)
	default:
		log.Printf("[redis] publish %s for %s: %v", ev.Type, ev.UserID, err)
	}
}

func (bp *BufferedPublisher) bufferEvent(ev model.SyncEvent) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		// Buffer full, drop oldest
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, ev)

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// flush replays buffered events in order.
func (bp *BufferedPublisher) flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = make([]model.SyncEvent, 0, 64)
	bp.mu.Unlock()

	flushed := 0
	for _, ev := range toFlush {
		if err := bp.cache.publish(bp.ctx, ev); err != nil {
			log.Printf("[redis] flush %s for %s: %v", ev.Type, ev.UserID, err)
			continue
		}
		flushed++
	}

	log.Printf("[redis] flushed %d buffered sync events", flushed)
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered events waiting to be flushed.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}
