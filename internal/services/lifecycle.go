package services

import "sync"

// Lifecycle notifies the engine when the host app returns to the foreground
type Lifecycle interface {
	OnForeground(fn func()) (unsubscribe func())
}

// LifecycleEvents is an in-process Lifecycle driven by the host calling Foreground
type LifecycleEvents struct {
	mu       sync.Mutex
	handlers map[int]func()
	nextID   int
}

// NewLifecycleEvents creates a new LifecycleEvents
func NewLifecycleEvents() *LifecycleEvents {
	return &LifecycleEvents{handlers: make(map[int]func())}
}

func (l *LifecycleEvents) OnForeground(fn func()) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}
}

// Foreground invokes every registered handler
func (l *LifecycleEvents) Foreground() {
	l.mu.Lock()
	handlers := make([]func(), 0, len(l.handlers))
	for _, fn := range l.handlers {
		handlers = append(handlers, fn)
	}
	l.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}
