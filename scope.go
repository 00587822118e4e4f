package docsync

import "sync"

// Scope is the owning UI scope's lifecycle hook. Everything registered with
// OnDestroy runs when the scope is torn down.
type Scope interface {
	OnDestroy(fn func())
}

// BasicScope is a minimal Scope. Hooks run in reverse registration order;
// hooks registered after Destroy run immediately.
type BasicScope struct {
	mu        sync.Mutex
	hooks     []func()
	destroyed bool
}

// NewScope returns a live scope.
func NewScope() *BasicScope {
	return &BasicScope{}
}

func (s *BasicScope) OnDestroy(fn func()) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		fn()
		return
	}
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Destroy runs the registered hooks once.
func (s *BasicScope) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}
