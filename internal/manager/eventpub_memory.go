package manager

import "sync"

// MemoryPublisher keeps the most recent events in a bounded ring. It backs
// the /events debug endpoint and is also convenient in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewMemoryPublisher creates a publisher retaining at most limit events
// (256 when limit is not positive).
func NewMemoryPublisher(limit int) *MemoryPublisher {
	if limit <= 0 {
		limit = 256
	}
	return &MemoryPublisher{limit: limit}
}

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	if len(p.events) > p.limit {
		p.events = p.events[len(p.events)-p.limit:]
	}
	p.mu.Unlock()
}

// Events returns a copy of the retained events, oldest first.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
