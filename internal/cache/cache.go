package cache

import (
	"sync"
	"time"
)

// EventCache tracks webhook event IDs that have already been handled so
// redelivered events are not fulfilled twice.
type EventCache struct {
	seen sync.Map
}

// NewEventCache creates an empty event cache.
func NewEventCache() *EventCache {
	return &EventCache{}
}

// MarkProcessed records the event ID and reports whether this is the first
// time it has been seen. Safe for concurrent use.
func (c *EventCache) MarkProcessed(eventID string) bool {
	_, loaded := c.seen.LoadOrStore(eventID, time.Now())
	return !loaded
}

// Seen reports whether the event ID has already been recorded.
func (c *EventCache) Seen(eventID string) bool {
	_, ok := c.seen.Load(eventID)
	return ok
}
