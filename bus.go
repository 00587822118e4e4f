package docsync

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/brunoga/docsync/internal/core"
	"github.com/brunoga/docsync/internal/logger"
)

// Change is a value-changed notification for one document location.
type Change struct {
	DocID   string `json:"doc"`
	Path    Path   `json:"path"`
	Kind    OpKind `json:"kind"`
	Value   any    `json:"value,omitempty"`
	Local   bool   `json:"local,omitempty"`
	Version int    `json:"version"`
	Origin  string `json:"origin,omitempty"`
}

// Relay forwards changes published on a bus to other processes.
type Relay interface {
	Relay(c Change) error
}

type topic struct {
	path Path
	subs map[uint64]func(Change)
}

type attachment struct {
	refs  int
	unsub func()
}

// Bus fans out value-changed notifications by document and path. Each
// (document, path) pair is its own topic keyed by the path's JSON Pointer,
// so subscribers only ever see changes at their own location.
//
// A change at a path is also delivered to subscribers of its descendants,
// carrying the descendant's value extracted from the new subtree.
type Bus struct {
	mu       sync.RWMutex
	id       string
	topics   map[string]*topic
	next     uint64
	attached map[Document]*attachment
	relay    Relay
	log      *logger.Logger
}

// NewBus creates an empty bus. Only WithLogger is meaningful here.
func NewBus(opts ...Option) *Bus {
	o := buildOptions(opts)
	id := uuid.NewString()
	return &Bus{
		id:       id,
		topics:   make(map[string]*topic),
		attached: make(map[Document]*attachment),
		log:      o.log.With("bus", id),
	}
}

// ID identifies this bus as the origin of the changes it publishes.
func (b *Bus) ID() string {
	return b.id
}

// SetRelay installs r to receive every change originating on this bus.
func (b *Bus) SetRelay(r Relay) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay = r
}

func topicKey(docID string, path Path) string {
	return docID + "\x00" + path.Key()
}

// Subscribe registers fn for changes at (docID, path).
func (b *Bus) Subscribe(docID string, path Path, fn func(Change)) (unsubscribe func()) {
	key := topicKey(docID, path)

	b.mu.Lock()
	t, ok := b.topics[key]
	if !ok {
		t = &topic{path: path.Clone(), subs: make(map[uint64]func(Change))}
		b.topics[key] = t
	}
	b.next++
	id := b.next
	t.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if t, ok := b.topics[key]; ok {
				delete(t.subs, id)
				if len(t.subs) == 0 {
					delete(b.topics, key)
				}
			}
		})
	}
}

// Topics returns the number of topics with live subscribers.
func (b *Bus) Topics() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}

// Publish delivers c to local subscribers and, when c originated here, to the
// relay.
func (b *Bus) Publish(c Change) {
	if c.Origin == "" {
		c.Origin = b.id
	}
	b.deliver(c)

	b.mu.RLock()
	relay := b.relay
	b.mu.RUnlock()
	if relay != nil && c.Origin == b.id {
		if err := relay.Relay(c); err != nil {
			b.log.Warn("relay change failed", "doc", c.DocID, "path", c.Path.String(), "error", err)
		}
	}
}

// Deliver hands a change received from a relay to local subscribers. Changes
// that originated on this bus are dropped.
func (b *Bus) Deliver(c Change) {
	if c.Origin == b.id {
		return
	}
	b.deliver(c)
}

type delivery struct {
	fn     func(Change)
	change Change
}

func (b *Bus) deliver(c Change) {
	key := topicKey(c.DocID, c.Path)
	descendants := key + "/"
	if len(c.Path) == 0 {
		descendants = c.DocID + "\x00/"
	}

	var out []delivery
	b.mu.RLock()
	if t, ok := b.topics[key]; ok {
		for _, fn := range t.subs {
			out = append(out, delivery{fn: fn, change: c})
		}
	}
	for k, t := range b.topics {
		if !strings.HasPrefix(k, descendants) {
			continue
		}
		child := c
		child.Path = t.path
		child.Kind = OpSet
		rel := Path(t.path[len(c.Path):]).parts()
		v, found := core.Lookup(c.Value, rel)
		if c.Kind == OpRemove || !found {
			child.Kind, v = OpRemove, nil
		}
		child.Value = v
		for _, fn := range t.subs {
			out = append(out, delivery{fn: fn, change: child})
		}
	}
	b.mu.RUnlock()

	for _, d := range out {
		d.fn(d.change)
	}
}

// Attach publishes every operation applied to doc until the returned
// function is called. Attaching the same document again only takes another
// reference. Documents are tracked by identity so they must be comparable.
func (b *Bus) Attach(doc Document) (detach func()) {
	b.retain(doc)
	var once sync.Once
	return func() { once.Do(func() { b.release(doc) }) }
}

func (b *Bus) retain(doc Document) {
	b.mu.Lock()
	if a, ok := b.attached[doc]; ok {
		a.refs++
		b.mu.Unlock()
		return
	}
	a := &attachment{refs: 1}
	b.attached[doc] = a
	b.mu.Unlock()

	docID := doc.ID()
	unsub := doc.Subscribe(func(op Op) {
		b.Publish(Change{
			DocID:   docID,
			Path:    op.Path,
			Kind:    op.Kind,
			Value:   op.Value,
			Local:   op.Local,
			Version: op.Version,
		})
	})

	b.mu.Lock()
	if b.attached[doc] == a {
		a.unsub = unsub
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	// Released while subscribing.
	unsub()
}

func (b *Bus) release(doc Document) {
	b.mu.Lock()
	a, ok := b.attached[doc]
	if !ok {
		b.mu.Unlock()
		return
	}
	a.refs--
	if a.refs > 0 {
		b.mu.Unlock()
		return
	}
	delete(b.attached, doc)
	unsub := a.unsub
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Attached reports how many documents the bus currently listens to.
func (b *Bus) Attached() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.attached)
}
