package events

import (
	"context"
	"sync"

	"PageVault/internal/domain"
	"PageVault/internal/ports"
)

// MemoryBus delivers events to in-process subscribers. Default bus when no
// NATS URL is configured; also the test double.
type MemoryBus struct {
	mu       sync.Mutex
	handlers []func(domain.VersionCreated)
	events   []domain.VersionCreated
}

var _ ports.EventBus = (*MemoryBus)(nil)

// NewMemoryBus builds a bus with no subscribers.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Subscribe registers a handler invoked synchronously on every publish.
func (b *MemoryBus) Subscribe(handler func(domain.VersionCreated)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish records the event and notifies subscribers.
func (b *MemoryBus) Publish(_ context.Context, event domain.VersionCreated) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	handlers := make([]func(domain.VersionCreated), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
	return nil
}

// Events returns a copy of everything published so far.
func (b *MemoryBus) Events() []domain.VersionCreated {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.VersionCreated, len(b.events))
	copy(out, b.events)
	return out
}
