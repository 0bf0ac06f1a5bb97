// Package changefeed decouples the reconciliation service from any
// particular notification transport. A Feed delivers push-style "this
// group's ledger changed" signals; consumers react by re-reading and
// recomputing, so a notification carries no payload beyond the group ID
// and missed or duplicated notifications are harmless.
package changefeed

import "sync"

// CancelFunc releases a subscription. It is safe to call more than once.
type CancelFunc func()

// Feed is the change-notification capability. Implementations may be
// in-process, a message broker, or a database changefeed.
type Feed interface {
	// Subscribe registers fn to run whenever the group's ledger changes.
	// fn must be quick or hand off to its own goroutine; the returned
	// CancelFunc must be called when the consumer stops observing.
	Subscribe(groupID string, fn func()) CancelFunc

	// Publish signals that the group's ledger changed.
	Publish(groupID string)

	// Close releases the feed and drops all subscriptions.
	Close() error
}

// Memory is an in-process Feed for single-instance deployments and
// tests.
type Memory struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func()
	closed bool
}

var _ Feed = (*Memory)(nil)

// NewMemory creates an in-process feed.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[int]func())}
}

// Subscribe registers fn for the group's change notifications.
func (m *Memory) Subscribe(groupID string, fn func()) CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return func() {}
	}
	id := m.nextID
	m.nextID++
	if m.subs[groupID] == nil {
		m.subs[groupID] = make(map[int]func())
	}
	m.subs[groupID][id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if subs := m.subs[groupID]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(m.subs, groupID)
			}
		}
	}
}

// Publish invokes every subscriber for the group. Callbacks run
// synchronously in Publish's goroutine; slow consumers must buffer on
// their side.
func (m *Memory) Publish(groupID string) {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.subs[groupID]))
	for _, fn := range m.subs[groupID] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Close drops all subscriptions.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = make(map[string]map[int]func())
	m.closed = true
	return nil
}
