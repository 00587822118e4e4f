// Package callback adapts (error, results...) style callbacks, as used by the
// transform transport, into promises that settle exactly once inside a
// caller-supplied notification hook.
//
// The hook stands in for a UI framework's batched-update primitive: whatever
// runs as a consequence of a promise settling (Then callbacks, closing the
// Done channel) runs inside it, so the UI is guaranteed to observe the
// settlement.
package callback

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/brunoga/docsync/internal/logger"
)

// Notifier runs fn inside the host's update cycle. It must eventually call
// fn exactly once.
type Notifier func(fn func())

// Immediate is a Notifier that runs fn synchronously.
func Immediate(fn func()) { fn() }

// Callback is a one-shot node-style callback bound to a Promise.
type Callback struct {
	once    sync.Once
	notify  Notifier
	promise *Promise
	log     *logger.Logger
}

// Option configures a Callback.
type Option func(*Callback)

// WithLogger sets the logger used to report repeated calls.
func WithLogger(l *zap.Logger) Option {
	return func(c *Callback) { c.log = logger.FromZap(l) }
}

// New creates a Callback whose promise settles through notify. A nil notify
// settles synchronously.
func New(notify Notifier, opts ...Option) *Callback {
	if notify == nil {
		notify = Immediate
	}
	c := &Callback{
		notify:  notify,
		promise: newPromise(),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call settles the promise. A non-nil err rejects it; otherwise zero results
// resolve to nil, one result to that value and several to a []any tuple.
// Only the first call has any effect.
func (c *Callback) Call(err error, results ...any) {
	called := false
	c.once.Do(func() {
		called = true
		value := collapse(results)
		c.notify(func() { c.promise.settle(value, err) })
	})
	if !called {
		c.log.Debug("callback invoked after settlement", "err", err)
	}
}

// Func returns Call as a plain function value.
func (c *Callback) Func() func(err error, results ...any) {
	return c.Call
}

// Promise returns the promise settled by this callback.
func (c *Callback) Promise() *Promise {
	return c.promise
}

func collapse(results []any) any {
	switch len(results) {
	case 0:
		return nil
	case 1:
		return results[0]
	}
	tuple := make([]any, len(results))
	copy(tuple, results)
	return tuple
}

// Promise is the eventual outcome of a Callback.
type Promise struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	value   any
	err     error
	then    []func(any, error)
}

func newPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

func (p *Promise) settle(value any, err error) {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return
	}
	p.settled = true
	p.value, p.err = value, err
	then := p.then
	p.then = nil
	close(p.done)
	p.mu.Unlock()

	for _, fn := range then {
		fn(value, err)
	}
}

// Done is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Settled reports whether the promise has settled.
func (p *Promise) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}

// Result returns the settled value and error. Before settlement both are nil.
func (p *Promise) Result() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// Wait blocks until the promise settles or ctx is done. A promise whose
// callback never fires is simply abandoned when ctx ends.
func (p *Promise) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then registers fn to run on settlement. When the promise has already
// settled fn runs immediately on the calling goroutine.
func (p *Promise) Then(fn func(value any, err error)) {
	p.mu.Lock()
	if !p.settled {
		p.then = append(p.then, fn)
		p.mu.Unlock()
		return
	}
	value, err := p.value, p.err
	p.mu.Unlock()
	fn(value, err)
}
