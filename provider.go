package docsync

import (
	"sync"

	"github.com/brunoga/docsync/internal/logger"
)

// Provider keeps exactly one live cursor for a (document, path) pair that
// changes over time, typically two fields of a UI scope.
//
// When only the path changes the existing cursor is re-pointed in place;
// when the document changes the cursor is closed and replaced. Paths are
// compared structurally, so supplying an equal but freshly built path does
// not disturb the cursor.
type Provider struct {
	mu       sync.Mutex
	doc      Document
	cursor   *Cursor
	watchers map[uint64]func(*Cursor)
	next     uint64
	closed   bool

	opts options
	log  *logger.Logger
}

// NewProvider returns a provider with no cursor. The options are applied to
// every cursor it creates.
func NewProvider(opts ...Option) *Provider {
	o := buildOptions(opts)
	if o.bus == nil {
		o.bus = NewBus(withOptions(o))
	}
	return &Provider{
		watchers: make(map[uint64]func(*Cursor)),
		opts:     o,
		log:      o.log,
	}
}

// Bus returns the bus shared by the provider's cursors.
func (p *Provider) Bus() *Bus {
	return p.opts.bus
}

// Update observes a new (doc, path) pair and returns the current cursor,
// nil unless both are set.
func (p *Provider) Update(doc Document, path Path) *Cursor {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}

	var old *Cursor
	created := false
	rebound := func() {}
	switch {
	case doc == nil || path == nil:
		old, p.cursor = p.cursor, nil
	case p.cursor != nil && p.doc == doc:
		rebound = p.cursor.rebind(path)
	default:
		old = p.cursor
		p.cursor = NewCursor(doc, path, withOptions(p.opts))
		created = true
	}
	p.doc = doc
	current := p.cursor
	var watchers []func(*Cursor)
	if old != nil || created {
		watchers = p.watcherList()
	}
	p.mu.Unlock()

	rebound()
	if old != nil {
		p.log.Debug("discarding cursor", "path", old.Path().String())
		old.Close()
	}
	for _, fn := range watchers {
		fn(current)
	}
	return current
}

func (p *Provider) watcherList() []func(*Cursor) {
	out := make([]func(*Cursor), 0, len(p.watchers))
	for _, fn := range p.watchers {
		out = append(out, fn)
	}
	return out
}

// Cursor returns the current cursor or nil.
func (p *Provider) Cursor() *Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// OnCursor registers fn to run whenever the exposed cursor instance changes,
// including to nil. Re-pointing in place does not count as a change.
func (p *Provider) OnCursor(fn func(*Cursor)) (unsubscribe func()) {
	p.mu.Lock()
	p.next++
	id := p.next
	p.watchers[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
}

// Watch closes the provider when scope is destroyed.
func (p *Provider) Watch(scope Scope) {
	scope.OnDestroy(p.Close)
}

// Close discards the cursor and all watchers.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	old := p.cursor
	p.cursor, p.doc = nil, nil
	p.watchers = make(map[uint64]func(*Cursor))
	p.mu.Unlock()

	if old != nil {
		old.Close()
	}
}
