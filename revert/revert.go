// Package revert restores an entity's fields to the snapshot taken when an
// editing session started.
package revert

import (
	"context"
	"errors"
	"sync"

	"github.com/mitchellh/copystructure"
	"github.com/snorwin/jsonpatch"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/brunoga/docsync/docerr"
	"github.com/brunoga/docsync/internal/logger"
)

// ErrNoFieldsReader is returned by Diff when no live fields reader was
// configured.
var ErrNoFieldsReader = errors.New("revert: no fields reader")

// FieldSetter overwrites the live fields. It returns the version the save
// produced, or nil when the save reported none.
type FieldSetter interface {
	SetFields(ctx context.Context, fields any) (*int, error)
}

// FieldSetterFunc adapts a function to FieldSetter.
type FieldSetterFunc func(ctx context.Context, fields any) (*int, error)

func (f FieldSetterFunc) SetFields(ctx context.Context, fields any) (*int, error) {
	return f(ctx, fields)
}

// VersionFunc reads the live version counter.
type VersionFunc func() int

// Snapshot is the saved state an editing session can go back to.
type Snapshot struct {
	Fields  any
	Version int
}

// Option configures a Reverter.
type Option func(*Reverter)

// WithLogger sets the reverter logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reverter) { r.log = logger.FromZap(l) }
}

// WithFieldsReader sets the function Diff uses to read the live fields.
func WithFieldsReader(read func() any) Option {
	return func(r *Reverter) { r.read = read }
}

// Reverter compares a live version counter against a snapshot and can force
// the fields back to the snapshot.
type Reverter struct {
	mu     sync.Mutex
	snap   Snapshot
	live   VersionFunc
	setter FieldSetter
	read   func() any
	group  singleflight.Group
	log    *logger.Logger
}

// New snapshots fields at version. The fields are deep-copied so later
// edits to the caller's value do not leak into the snapshot.
func New(fields any, version int, live VersionFunc, setter FieldSetter, opts ...Option) (*Reverter, error) {
	copied, err := copystructure.Copy(fields)
	if err != nil {
		return nil, err
	}
	r := &Reverter{
		snap:   Snapshot{Fields: copied, Version: version},
		live:   live,
		setter: setter,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Snapshot returns a copy of the current baseline.
func (r *Reverter) Snapshot() Snapshot {
	r.mu.Lock()
	snap := r.snap
	r.mu.Unlock()
	snap.Fields = copystructure.Must(copystructure.Copy(snap.Fields))
	return snap
}

// Reset replaces the baseline, for example after the entity was published.
func (r *Reverter) Reset(fields any, version int) error {
	copied, err := copystructure.Copy(fields)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.snap = Snapshot{Fields: copied, Version: version}
	r.mu.Unlock()
	return nil
}

// HasChanges reports whether the live version moved away from the snapshot.
func (r *Reverter) HasChanges() bool {
	r.mu.Lock()
	baseline := r.snap.Version
	r.mu.Unlock()
	return r.live() != baseline
}

// Revert writes the snapshot fields back through the setter and adopts the
// version the save returned as the new baseline. It does nothing when there
// are no changes. Concurrent calls share one save.
//
// When the setter returns no version the baseline is kept. On failure the
// error is a docerr.KindRevertFailure and the baseline is unchanged, so
// HasChanges keeps reporting true.
func (r *Reverter) Revert(ctx context.Context) error {
	if !r.HasChanges() {
		return nil
	}
	_, err, _ := r.group.Do("revert", func() (any, error) {
		return nil, r.revert(ctx)
	})
	return err
}

func (r *Reverter) revert(ctx context.Context) error {
	// A revert that finished while we were waiting may have caught up.
	if !r.HasChanges() {
		return nil
	}

	r.mu.Lock()
	fields, err := copystructure.Copy(r.snap.Fields)
	baseline := r.snap.Version
	r.mu.Unlock()
	if err != nil {
		return docerr.New(docerr.KindRevertFailure, "revert", err)
	}

	version, err := r.setter.SetFields(ctx, fields)
	if err != nil {
		r.log.Warn("could not revert fields", "baseline", baseline, "error", err)
		return docerr.New(docerr.KindRevertFailure, "revert", err)
	}
	if version == nil {
		r.log.Info("revert returned no version, keeping baseline", "baseline", baseline)
		return nil
	}

	r.mu.Lock()
	r.snap.Version = *version
	r.mu.Unlock()
	r.log.Debug("reverted fields", "from", baseline, "to", *version)
	return nil
}

// Diff returns the JSON patch that turns the live fields into the snapshot
// fields, that is what Revert would write.
func (r *Reverter) Diff() (jsonpatch.JSONPatchList, error) {
	if r.read == nil {
		return jsonpatch.JSONPatchList{}, ErrNoFieldsReader
	}
	r.mu.Lock()
	snapshot := r.snap.Fields
	r.mu.Unlock()
	return jsonpatch.CreateJSONPatch(snapshot, r.read())
}
