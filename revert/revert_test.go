package revert

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/brunoga/docsync/docerr"
)

type fakeSetter struct {
	mu     sync.Mutex
	calls  int
	fields []any
	err    error
	next   *int
	live   *counter
}

type counter struct {
	mu sync.Mutex
	v  int
}

func (c *counter) Version() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *counter) set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (f *fakeSetter) SetFields(_ context.Context, fields any) (*int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.fields = append(f.fields, fields)
	if f.err != nil {
		return nil, f.err
	}
	if f.next != nil && f.live != nil {
		f.live.set(*f.next)
	}
	return f.next, nil
}

func (f *fakeSetter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newLive(v int) (*counter, VersionFunc) {
	c := &counter{v: v}
	return c, c.Version
}

func version(v int) *int { return &v }

func TestRevert_RoundTrip(t *testing.T) {
	live, liveFn := newLive(3)
	setter := &fakeSetter{next: version(4), live: live}

	r, err := New(map[string]any{"title": "A"}, 1, liveFn, setter)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !r.HasChanges() {
		t.Fatal("expected changes")
	}

	if err := r.Revert(context.Background()); err != nil {
		t.Fatalf("Revert failed: %v", err)
	}
	if r.HasChanges() {
		t.Error("expected no changes after revert")
	}
	if got := r.Snapshot().Version; got != 4 {
		t.Errorf("baseline = %d, want 4", got)
	}
	if setter.Calls() != 1 {
		t.Fatalf("setter called %d times, want 1", setter.Calls())
	}
	fields, ok := setter.fields[0].(map[string]any)
	if !ok || fields["title"] != "A" {
		t.Errorf("setter got %v", setter.fields[0])
	}

	if err := r.Revert(context.Background()); err != nil {
		t.Fatalf("second Revert failed: %v", err)
	}
	if setter.Calls() != 1 {
		t.Errorf("second revert issued a field-set")
	}
}

func TestRevert_Failure(t *testing.T) {
	_, liveFn := newLive(3)
	cause := errors.New("disconnected")
	setter := &fakeSetter{err: cause}

	r, err := New(map[string]any{"title": "A"}, 1, liveFn, setter)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = r.Revert(context.Background())
	if !errors.Is(err, docerr.ErrRevertFailure) {
		t.Errorf("error %v is not a revert failure", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error %v does not wrap the cause", err)
	}
	if !r.HasChanges() {
		t.Error("failed revert should keep reporting changes")
	}
	if r.Snapshot().Version != 1 {
		t.Errorf("baseline advanced to %d", r.Snapshot().Version)
	}

	// Retrying is allowed.
	setter.err = nil
	_ = r.Revert(context.Background())
	if setter.Calls() != 2 {
		t.Errorf("setter called %d times, want 2", setter.Calls())
	}
}

func TestRevert_NoVersionKeepsBaseline(t *testing.T) {
	_, liveFn := newLive(3)
	setter := &fakeSetter{}

	r, err := New(map[string]any{"title": "A"}, 1, liveFn, setter)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := r.Revert(context.Background()); err != nil {
		t.Fatalf("Revert failed: %v", err)
	}
	if r.Snapshot().Version != 1 {
		t.Errorf("baseline = %d, want 1", r.Snapshot().Version)
	}
}

func TestRevert_SnapshotIsolated(t *testing.T) {
	_, liveFn := newLive(1)
	fields := map[string]any{"title": "A", "tags": []any{"x"}}

	r, err := New(fields, 1, liveFn, &fakeSetter{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	fields["title"] = "B"
	fields["tags"].([]any)[0] = "y"

	snap := r.Snapshot().Fields.(map[string]any)
	if snap["title"] != "A" || snap["tags"].([]any)[0] != "x" {
		t.Errorf("snapshot changed with caller value: %v", snap)
	}

	snap["title"] = "C"
	if r.Snapshot().Fields.(map[string]any)["title"] != "A" {
		t.Error("Snapshot returned shared fields")
	}
}

func TestRevert_ConcurrentCallsShareSave(t *testing.T) {
	live, liveFn := newLive(5)
	setter := &fakeSetter{next: version(6), live: live}

	r, err := New(map[string]any{"title": "A"}, 1, liveFn, setter)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Revert(context.Background()); err != nil {
				t.Errorf("Revert failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if setter.Calls() != 1 {
		t.Errorf("setter called %d times, want 1", setter.Calls())
	}
}

func TestRevert_Reset(t *testing.T) {
	_, liveFn := newLive(7)
	setter := &fakeSetter{}

	r, err := New(map[string]any{"title": "A"}, 1, liveFn, setter)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := r.Reset(map[string]any{"title": "B"}, 7); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if r.HasChanges() {
		t.Error("expected no changes after reset")
	}
	if r.Snapshot().Fields.(map[string]any)["title"] != "B" {
		t.Errorf("unexpected fields after reset: %v", r.Snapshot().Fields)
	}
}

func TestRevert_Diff(t *testing.T) {
	_, liveFn := newLive(2)
	current := map[string]any{"title": "B", "body": "text"}

	r, err := New(map[string]any{"title": "A", "body": "text"}, 1, liveFn, &fakeSetter{},
		WithFieldsReader(func() any { return current }))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	patch, err := r.Diff()
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if patch.Len() != 1 {
		t.Fatalf("got %d operations, want 1: %s", patch.Len(), patch.String())
	}
	raw := string(patch.Raw())
	if !strings.Contains(raw, `"/title"`) || !strings.Contains(raw, `"A"`) {
		t.Errorf("unexpected patch: %s", raw)
	}

	r2, _ := New(map[string]any{}, 1, liveFn, &fakeSetter{})
	if _, err := r2.Diff(); !errors.Is(err, ErrNoFieldsReader) {
		t.Errorf("Diff without reader: %v", err)
	}
}
