package docsync

import (
	"errors"
	"sync"

	"github.com/huandu/go-clone"

	"github.com/brunoga/docsync/docerr"
	"github.com/brunoga/docsync/internal/logger"
)

// ErrInvalidCursor is reported to callbacks of writes through a cursor that
// has no document, no path, or has been closed.
var ErrInvalidCursor = errors.New("cursor has no document or path")

// WriteCallback receives the outcome of a write. On success confirmed is the
// value read back at the written path after acknowledgement.
type WriteCallback func(err error, confirmed any)

// Cursor addresses one location of a shared document. Its identity is
// stable: Rebind re-points it to another path of the same document without
// dropping the subscriptions made through it.
type Cursor struct {
	mu       sync.RWMutex
	doc      Document
	path     Path
	closed   bool
	subs     map[uint64]func(Change)
	rebinds  map[uint64]func(Path)
	next     uint64
	busUnsub func()
	detach   func()

	bus  *Bus
	opts options
	log  *logger.Logger
}

// NewCursor returns a cursor at path within doc. Either may be nil, which
// yields an invalid cursor.
func NewCursor(doc Document, path Path, opts ...Option) *Cursor {
	o := buildOptions(opts)
	if o.bus == nil {
		o.bus = NewBus(withOptions(o))
	}
	c := &Cursor{
		doc:  doc,
		path: path.Clone(),
		subs:    make(map[uint64]func(Change)),
		rebinds: make(map[uint64]func(Path)),
		bus:     o.bus,
		opts:    o,
		log:     o.log,
	}
	if doc != nil {
		c.detach = c.bus.Attach(doc)
	}
	return c
}

// Document returns the cursor's document, nil once closed.
func (c *Cursor) Document() Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc
}

// Path returns a copy of the current path.
func (c *Cursor) Path() Path {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path.Clone()
}

// Valid reports whether the cursor can read and write.
func (c *Cursor) Valid() bool {
	_, _, ok := c.target()
	return ok
}

func (c *Cursor) target() (Document, Path, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.doc == nil || c.path == nil {
		return nil, nil, false
	}
	return c.doc, c.path.Clone(), true
}

// Get returns a copy of the value at the cursor, or nil when absent or the
// cursor is invalid.
func (c *Cursor) Get() any {
	doc, path, ok := c.target()
	if !ok {
		return nil
	}
	return cloneValue(doc.At(path).Get())
}

func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	return clone.Clone(v)
}

// Set replaces the value at the cursor. cb runs once the transport accepts
// or rejects the operation; rejections are not retried here.
func (c *Cursor) Set(value any, cb WriteCallback) {
	doc, path, ok := c.target()
	if !ok {
		c.reject("set", cb)
		return
	}
	doc.At(path).Set(value, func(err error) { c.ack("set", doc, path, err, cb) })
}

// Remove deletes the value at the cursor.
func (c *Cursor) Remove(cb WriteCallback) {
	doc, path, ok := c.target()
	if !ok {
		c.reject("remove", cb)
		return
	}
	doc.At(path).Remove(func(err error) { c.ack("remove", doc, path, err, cb) })
}

// Move reorders the list at the cursor, moving the element at from to to.
func (c *Cursor) Move(from, to int, cb WriteCallback) {
	doc, path, ok := c.target()
	if !ok {
		c.reject("move", cb)
		return
	}
	doc.At(path).Move(from, to, func(err error) { c.ack("move", doc, path, err, cb) })
}

func (c *Cursor) reject(op string, cb WriteCallback) {
	c.log.Warn("write through invalid cursor", "op", op, "path", c.Path().String())
	if cb != nil {
		cb(docerr.New(docerr.KindProgramming, "cursor."+op, ErrInvalidCursor), nil)
	}
}

func (c *Cursor) ack(op string, doc Document, path Path, err error, cb WriteCallback) {
	if err != nil {
		c.log.Debug("write rejected", "op", op, "doc", doc.ID(), "path", path.String(), "error", err)
		if cb != nil {
			cb(docerr.New(docerr.KindTransportRejected, "cursor."+op, err), nil)
		}
		return
	}
	if cb != nil {
		cb(nil, cloneValue(doc.At(path).Get()))
	}
}

// At returns a new cursor at the cursor's path extended by sub, sharing its
// document and bus.
func (c *Cursor) At(sub ...any) *Cursor {
	c.mu.RLock()
	doc, path, closed := c.doc, c.path, c.closed
	c.mu.RUnlock()
	if closed || path == nil {
		return NewCursor(nil, nil, withOptions(c.opts))
	}
	return NewCursor(doc, path.Append(sub...), withOptions(c.opts))
}

// Rebind re-points the cursor to path. Subscriptions made through the cursor
// follow it and OnRebind hooks run once the new path is in place. Rebinding
// to a structurally equal path does nothing.
func (c *Cursor) Rebind(path Path) {
	c.rebind(path)()
}

// rebind swaps the path and returns the work left to do outside any lock the
// caller holds.
func (c *Cursor) rebind(path Path) (finish func()) {
	c.mu.Lock()
	if c.closed || c.path.Equal(path) {
		c.mu.Unlock()
		return func() {}
	}
	c.path = path.Clone()
	old := c.busUnsub
	c.busUnsub = nil
	c.resubscribeLocked()
	hooks := make([]func(Path), 0, len(c.rebinds))
	for _, fn := range c.rebinds {
		hooks = append(hooks, fn)
	}
	c.mu.Unlock()

	to := path.Clone()
	return func() {
		if old != nil {
			old()
		}
		for _, fn := range hooks {
			fn(to.Clone())
		}
	}
}

// OnRebind registers fn to run after each Rebind that changes the path.
func (c *Cursor) OnRebind(fn func(Path)) (unsubscribe func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	c.next++
	id := c.next
	c.rebinds[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.rebinds, id)
		c.mu.Unlock()
	}
}

// Subscribe registers fn for changes at the cursor's current path, including
// after Rebind. Invalid cursors never notify.
func (c *Cursor) Subscribe(fn func(Change)) (unsubscribe func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	c.next++
	id := c.next
	c.subs[id] = fn
	if c.busUnsub == nil {
		c.resubscribeLocked()
	}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			var busUnsub func()
			if len(c.subs) == 0 {
				busUnsub, c.busUnsub = c.busUnsub, nil
			}
			c.mu.Unlock()
			if busUnsub != nil {
				busUnsub()
			}
		})
	}
}

func (c *Cursor) resubscribeLocked() {
	if c.doc == nil || c.path == nil || len(c.subs) == 0 {
		return
	}
	c.busUnsub = c.bus.Subscribe(c.doc.ID(), c.path, c.dispatch)
}

func (c *Cursor) dispatch(ch Change) {
	c.mu.RLock()
	if c.closed || !c.path.Equal(ch.Path) {
		c.mu.RUnlock()
		return
	}
	fns := make([]func(Change), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(ch)
	}
}

// Close invalidates the cursor and releases its subscriptions. Closing twice
// is harmless.
func (c *Cursor) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.doc = nil
	c.subs = make(map[uint64]func(Change))
	c.rebinds = make(map[uint64]func(Path))
	busUnsub, detach := c.busUnsub, c.detach
	c.busUnsub, c.detach = nil, nil
	c.mu.Unlock()

	if busUnsub != nil {
		busUnsub()
	}
	if detach != nil {
		detach()
	}
}
