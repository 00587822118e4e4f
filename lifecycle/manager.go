package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/brunoga/docsync/docerr"
	"github.com/brunoga/docsync/internal/logger"
)

// ErrVersionConflict is the machine-readable indicator an Entity returns
// (possibly wrapped) when the server rejects an action for a stale version.
var ErrVersionConflict = errors.New("version conflict")

// IsConflict reports whether err stems from a version conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// Entity is the REST collaborator for one entity. Every call returns the
// updated metadata, except Delete.
type Entity interface {
	Publish(ctx context.Context, version int) (*Sys, error)
	Unpublish(ctx context.Context) (*Sys, error)
	Archive(ctx context.Context) (*Sys, error)
	Unarchive(ctx context.Context) (*Sys, error)
	Delete(ctx context.Context) error
}

// Transition is emitted after an action's new metadata has been adopted.
type Transition struct {
	From   State
	To     State
	Action Action
	Sys    Sys
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = logger.FromZap(l) }
}

// Manager tracks an entity's metadata and state and applies lifecycle
// actions to it.
type Manager struct {
	mu          sync.Mutex
	entity      Entity
	sys         Sys
	state       State
	transitions map[uint64]func(Transition)
	watchers    map[uint64]func(State)
	next        uint64
	log         *logger.Logger
}

// NewManager starts tracking entity from its current metadata.
func NewManager(entity Entity, sys Sys, opts ...Option) *Manager {
	m := &Manager{
		entity:      entity,
		sys:         sys,
		state:       StateOf(sys),
		transitions: make(map[uint64]func(Transition)),
		watchers:    make(map[uint64]func(State)),
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("entity", sys.ID)
	return m
}

// Sys returns the current metadata.
func (m *Manager) Sys() Sys {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sys
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Apply performs action through the REST collaborator. On rejection the
// error is a docerr.KindLifecycleConflict wrapping the collaborator's error
// and nothing changes. On success the returned metadata is adopted and
// exactly one Transition is emitted. Delete returns (nil, nil) and emits
// nothing.
func (m *Manager) Apply(ctx context.Context, action Action) (*Sys, error) {
	current := m.Sys()

	var next *Sys
	var err error
	switch action {
	case Publish:
		next, err = m.entity.Publish(ctx, current.Version)
	case Unpublish:
		next, err = m.entity.Unpublish(ctx)
	case Archive:
		next, err = m.entity.Archive(ctx)
	case Unarchive:
		next, err = m.entity.Unarchive(ctx)
	case Delete:
		err = m.entity.Delete(ctx)
	default:
		m.log.Warn("unknown lifecycle action", "action", int(action))
		return nil, docerr.New(docerr.KindProgramming, "lifecycle.apply", fmt.Errorf("unknown action %d", action))
	}
	if err != nil {
		m.log.Info("lifecycle action rejected", "action", action.String(), "version", current.Version, "conflict", IsConflict(err), "error", err)
		return nil, docerr.New(docerr.KindLifecycleConflict, "lifecycle."+action.String(), err)
	}
	if next == nil {
		return nil, nil
	}

	from, to, watchers := m.adopt(*next)
	t := Transition{From: from, To: to, Action: action, Sys: *next}
	m.log.Debug("lifecycle transition", "action", action.String(), "from", from.String(), "to", to.String())

	for _, fn := range m.transitionList() {
		fn(t)
	}
	for _, fn := range watchers {
		fn(to)
	}
	adopted := *next
	return &adopted, nil
}

// UpdateSys adopts metadata that changed elsewhere, for example through the
// shared document. State watchers are notified when the state changes; no
// Transition is emitted.
func (m *Manager) UpdateSys(sys Sys) {
	_, to, watchers := m.adopt(sys)
	for _, fn := range watchers {
		fn(to)
	}
}

// adopt stores sys and returns the state change along with the watchers to
// notify, none when the state did not change.
func (m *Manager) adopt(sys Sys) (from, to State, watchers []func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from = m.state
	m.sys = sys
	m.state = StateOf(sys)
	to = m.state
	if from != to {
		for _, fn := range m.watchers {
			watchers = append(watchers, fn)
		}
	}
	return from, to, watchers
}

func (m *Manager) transitionList() []func(Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]func(Transition), 0, len(m.transitions))
	for _, fn := range m.transitions {
		out = append(out, fn)
	}
	return out
}

// OnTransition subscribes fn to the transition stream.
func (m *Manager) OnTransition(fn func(Transition)) (unsubscribe func()) {
	m.mu.Lock()
	m.next++
	id := m.next
	m.transitions[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.transitions, id)
		m.mu.Unlock()
	}
}

// WatchState calls fn with the current state right away and again whenever
// it changes.
func (m *Manager) WatchState(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	m.next++
	id := m.next
	m.watchers[id] = fn
	current := m.state
	m.mu.Unlock()

	fn(current)
	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}
