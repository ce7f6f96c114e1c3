// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"sync"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the clock's current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Publisher records published notifications for assertions.
type Publisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

// PublishedEvent is one notification captured by Publisher.
type PublishedEvent struct {
	Topic   string
	Payload any
}

// Publish implements the notification sink used by the rewards engine.
func (p *Publisher) Publish(topic string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, PublishedEvent{Topic: topic, Payload: payload})
}

// Topics returns the published topics in order.
func (p *Publisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Events))
	for i, e := range p.Events {
		out[i] = e.Topic
	}
	return out
}
