package ipc

import (
	"encoding/json"
	"sync"
	"time"
)

// Pending correlates request/response exchanges by request id. A call opens
// an entry with an expected response count and a deadline; responses (or
// forfeits for unreachable peers) decrement the counter. The entry resolves
// the instant the counter reaches zero or the deadline fires, whichever
// happens first, always delivering whatever subset was collected. Callers
// therefore never block past the deadline and never see an error: partial
// results are the degraded mode, not a failure.
type Pending struct {
	mu      sync.Mutex
	waiting map[string]*call
}

type call struct {
	expected  int
	collected []json.RawMessage
	done      chan []json.RawMessage
	timer     *time.Timer
}

// NewPending returns an empty correlation table.
func NewPending() *Pending {
	return &Pending{waiting: make(map[string]*call)}
}

// Open registers a request expecting `expected` responses within timeout.
// The returned channel receives the collected payloads exactly once. With
// expected <= 0 the call resolves immediately with no payloads.
func (p *Pending) Open(id string, expected int, timeout time.Duration) <-chan []json.RawMessage {
	done := make(chan []json.RawMessage, 1)
	if expected <= 0 {
		done <- nil
		return done
	}

	c := &call{expected: expected, done: done}
	c.timer = time.AfterFunc(timeout, func() { p.resolve(id) })

	p.mu.Lock()
	p.waiting[id] = c
	p.mu.Unlock()
	return done
}

// Deliver records one response payload for id. Delivering to an unknown or
// already-resolved id is a no-op (a straggler answering after the deadline).
func (p *Pending) Deliver(id string, payload json.RawMessage) {
	p.mu.Lock()
	c, ok := p.waiting[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	c.collected = append(c.collected, payload)
	c.expected--
	last := c.expected <= 0
	p.mu.Unlock()
	if last {
		p.resolve(id)
	}
}

// Forfeit decrements the expected count without a payload, used when a send
// to a peer fails outright so the caller is not left waiting for an answer
// that can never arrive.
func (p *Pending) Forfeit(id string) {
	p.mu.Lock()
	c, ok := p.waiting[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	c.expected--
	last := c.expected <= 0
	p.mu.Unlock()
	if last {
		p.resolve(id)
	}
}

// Outstanding reports how many exchanges are still waiting. Used by tests and
// the matchmaking stats endpoint.
func (p *Pending) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting)
}

func (p *Pending) resolve(id string) {
	p.mu.Lock()
	c, ok := p.waiting[id]
	if ok {
		delete(p.waiting, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	c.timer.Stop()
	c.done <- c.collected
}
