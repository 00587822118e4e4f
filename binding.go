package docsync

import (
	"sync"

	"github.com/brunoga/docsync/callback"
	"github.com/brunoga/docsync/internal/core"
	"github.com/brunoga/docsync/internal/logger"
)

// Model is the UI input side of a binding. SetValue is how the binding
// pushes confirmed values into the input; it must not report back through
// Binding.Changed.
type Model interface {
	Value() any
	SetValue(v any)
}

// ValueModel is a Model holding one value, safe for concurrent use.
type ValueModel struct {
	mu    sync.Mutex
	value any
	sets  int
}

// NewValueModel returns a model showing initial.
func NewValueModel(initial any) *ValueModel {
	return &ValueModel{value: initial}
}

func (m *ValueModel) Value() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

func (m *ValueModel) SetValue(v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = v
	m.sets++
}

// Sets returns how many times SetValue was called.
func (m *ValueModel) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

type pendingWrite struct {
	id    uint64
	value any
}

// Binding ties a Model to a Cursor in both directions.
//
// Local edits reported through Changed are written through the cursor and
// never applied to the model optimistically. Remote changes at the cursor's
// path are pushed into the model. The transport's echo of a write made by
// this binding is recognised and not re-applied whether it arrives before or
// after the acknowledgement; a remote change carrying an identical value is
// still applied, which is harmless.
//
// When the cursor is rebound the model is resynced to the new path and writes
// still in flight for the old path no longer count as confirmed.
//
// When a write fails the error is reported through the OnError option and the
// model keeps showing what the user typed.
type Binding struct {
	mu           sync.Mutex
	cursor       *Cursor
	model        Model
	pending      []pendingWrite
	acked        []any
	nextID       uint64
	gen          uint64
	confirmed    any
	hasConfirmed bool
	unsub        func()
	unrebind     func()
	closed       bool

	notify  callback.Notifier
	onError func(error)
	log     *logger.Logger
}

// Bind connects model to cursor. When the document already holds a value at
// the cursor the model is updated to show it.
func Bind(cursor *Cursor, model Model, opts ...Option) *Binding {
	o := buildOptions(opts)
	b := &Binding{
		cursor:  cursor,
		model:   model,
		notify:  o.notify,
		onError: o.onError,
		log:     o.log.With("path", cursor.Path().String()),
	}
	b.unsub = cursor.Subscribe(b.remote)
	b.unrebind = cursor.OnRebind(b.rebound)

	if cursor.Valid() {
		v := cursor.Get()
		b.confirmed, b.hasConfirmed = v, true
		if v != nil && !core.Equal(model.Value(), v) {
			b.notify(func() { model.SetValue(v) })
		}
	}
	return b
}

// Changed reports a UI-originated value. It is written upstream unless it
// matches the last confirmed value and no other write is in flight.
func (b *Binding) Changed(v any) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.hasConfirmed && len(b.pending) == 0 && core.Equal(v, b.confirmed) {
		b.mu.Unlock()
		return
	}
	b.nextID++
	id, gen := b.nextID, b.gen
	b.pending = append(b.pending, pendingWrite{id: id, value: cloneValue(v)})
	cursor := b.cursor
	b.mu.Unlock()

	cb := callback.New(b.notify)
	cb.Promise().Then(func(confirmed any, err error) { b.settle(id, gen, confirmed, err) })
	cursor.Set(v, func(err error, confirmed any) { cb.Call(err, confirmed) })
}

// settle records the outcome of write id. Writes issued before the last
// rebind target the old path and leave confirmed alone.
func (b *Binding) settle(id, gen uint64, confirmed any, err error) {
	b.mu.Lock()
	p, waiting := b.takePendingLocked(id)
	if err == nil && gen == b.gen {
		b.confirmed, b.hasConfirmed = confirmed, true
		if waiting {
			// The echo has not been seen yet.
			b.acked = append(b.acked, p.value)
		}
	}
	closed, onError := b.closed, b.onError
	b.mu.Unlock()

	if err == nil || closed {
		return
	}
	b.log.Warn("could not save change", "error", err)
	if onError != nil {
		onError(err)
	}
}

func (b *Binding) takePendingLocked(id uint64) (pendingWrite, bool) {
	for i, p := range b.pending {
		if p.id == id {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return p, true
		}
	}
	return pendingWrite{}, false
}

// echoLocked consumes the pending or acknowledged write v echoes.
func (b *Binding) echoLocked(v any) bool {
	for i, p := range b.pending {
		if core.Equal(p.value, v) {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return true
		}
	}
	for i, a := range b.acked {
		if core.Equal(a, v) {
			b.acked = append(b.acked[:i], b.acked[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Binding) remote(ch Change) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if ch.Local && b.echoLocked(ch.Value) {
		b.confirmed, b.hasConfirmed = ch.Value, true
		b.mu.Unlock()
		return
	}
	if !ch.Local {
		b.acked = nil
	}
	b.confirmed, b.hasConfirmed = ch.Value, true
	model := b.model
	b.mu.Unlock()

	v := cloneValue(ch.Value)
	b.notify(func() { model.SetValue(v) })
}

func (b *Binding) rebound(path Path) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.gen++
	b.pending = nil
	b.acked = nil
	v := b.cursor.Get()
	b.confirmed, b.hasConfirmed = v, b.cursor.Valid()
	model := b.model
	b.mu.Unlock()

	b.log.Debug("binding rebound", "to", path.String())
	b.notify(func() { model.SetValue(v) })
}

// Pending returns the number of local writes not yet acknowledged.
func (b *Binding) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Watch closes the binding when scope is destroyed.
func (b *Binding) Watch(scope Scope) {
	scope.OnDestroy(b.Close)
}

// Close stops both directions of the binding.
func (b *Binding) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	unsub, unrebind := b.unsub, b.unrebind
	b.unsub, b.unrebind = nil, nil
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	if unrebind != nil {
		unrebind()
	}
}
