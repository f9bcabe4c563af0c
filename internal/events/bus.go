// Package events provides the in-process event channel connecting the
// annotation platform's lifecycle transitions to the exchange core.
package events

import (
	"sync"

	"github.com/raphaelgruber/annobridge/internal/models"
)

// ProjectStateChanged is emitted when a project moves between lifecycle
// states. Handlers receive each event at most once.
type ProjectStateChanged struct {
	ProjectSlug string
	OldState    models.ProjectState
	NewState    models.ProjectState
}

// Handler reacts to a project state change. Handlers must not panic and
// must swallow their own errors; the bus offers no retry.
type Handler func(ProjectStateChanged)

// Bus dispatches project state changes to subscribed handlers. Dispatch is
// synchronous on the publishing goroutine; events for different projects
// may be published concurrently.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers evt to every subscribed handler, in subscription order.
func (b *Bus) Publish(evt ProjectStateChanged) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}
