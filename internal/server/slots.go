package server

import "sync"

// defaultMaxConcurrentChats bounds in-flight chat requests when no explicit
// limit is configured.
const defaultMaxConcurrentChats = 10

// chatRetryAfter is the Retry-After hint (seconds) returned when all chat
// slots are taken.
const chatRetryAfter = "30"

// slotCounter is a non-blocking admission counter for chat requests. There is
// no queueing: when all slots are taken the request is rejected immediately
// with a retry hint.
type slotCounter struct {
	mu       sync.Mutex
	inFlight int
	limit    int
}

func newSlotCounter(limit int) *slotCounter {
	if limit <= 0 {
		limit = defaultMaxConcurrentChats
	}
	return &slotCounter{limit: limit}
}

// TryAcquire claims a slot if one is free. The caller must Release exactly
// once on every exit path when it returns true.
func (c *slotCounter) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight >= c.limit {
		return false
	}
	c.inFlight++
	return true
}

// Release frees a slot claimed by TryAcquire.
func (c *slotCounter) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight > 0 {
		c.inFlight--
	}
}

// InFlight reports the current number of claimed slots.
func (c *slotCounter) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}
