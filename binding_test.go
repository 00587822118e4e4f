package docsync_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/brunoga/docsync"
	"github.com/brunoga/docsync/docerr"
	"github.com/brunoga/docsync/memdoc"
)

var titlePath = docsync.P("fields", "title", "en-US")

func TestBinding_InitialValue(t *testing.T) {
	doc := memdoc.NewServer(newEntry()).Connect()
	model := docsync.NewValueModel(nil)
	docsync.Bind(docsync.NewCursor(doc, titlePath), model)

	if model.Value() != "Hello" {
		t.Errorf("model = %v, want the document value", model.Value())
	}
}

func TestBinding_LocalEditWritesWithoutEcho(t *testing.T) {
	srv := memdoc.NewServer(newEntry())
	local, remote := srv.Connect(), srv.Connect()
	model := docsync.NewValueModel(nil)
	b := docsync.Bind(docsync.NewCursor(local, titlePath), model)
	sets := model.Sets()

	// The UI already shows what the user typed.
	model.SetValue("Typed")
	sets++
	b.Changed("Typed")

	if got := remote.At(titlePath).Get(); got != "Typed" {
		t.Errorf("remote replica = %v", got)
	}
	if model.Sets() != sets {
		t.Errorf("echo of the local write was applied to the model")
	}
	if b.Pending() != 0 {
		t.Errorf("Pending() = %d after ack", b.Pending())
	}
}

func TestBinding_RemoteValueIdempotent(t *testing.T) {
	srv := memdoc.NewServer(newEntry())
	local, remote := srv.Connect(), srv.Connect()
	model := docsync.NewValueModel(nil)
	b := docsync.Bind(docsync.NewCursor(local, titlePath), model)

	remote.At(titlePath).Set("Remote", nil)
	remote.At(titlePath).Set("Remote", nil)

	if model.Value() != "Remote" {
		t.Errorf("model = %v", model.Value())
	}

	// The UI layer reflecting the value back must not produce a write.
	b.Changed(model.Value())
	if local.Submitted() != 0 {
		t.Errorf("local replica submitted %d operations, want 0", local.Submitted())
	}
}

func TestBinding_IgnoresOtherPaths(t *testing.T) {
	srv := memdoc.NewServer(newEntry())
	local, remote := srv.Connect(), srv.Connect()
	bus := docsync.NewBus()
	model := docsync.NewValueModel(nil)
	docsync.Bind(docsync.NewCursor(local, titlePath, docsync.WithBus(bus)), model)
	sets := model.Sets()

	remote.At(docsync.P("fields", "body", "en-US")).Set("Other", nil)

	if model.Sets() != sets || model.Value() != "Hello" {
		t.Errorf("binding reacted to another path: %v", model.Value())
	}
}

func TestBinding_ParentReplacementReachesField(t *testing.T) {
	srv := memdoc.NewServer(newEntry())
	local, remote := srv.Connect(), srv.Connect()
	model := docsync.NewValueModel(nil)
	docsync.Bind(docsync.NewCursor(local, titlePath), model)

	remote.At(docsync.P("fields")).Set(map[string]any{"title": map[string]any{"en-US": "Reverted"}}, nil)

	if model.Value() != "Reverted" {
		t.Errorf("model = %v", model.Value())
	}
}

func TestBinding_RemoteSupersedesPendingWrite(t *testing.T) {
	srv := memdoc.NewServer(newEntry())
	local, remote := srv.Connect(), srv.Connect()
	model := docsync.NewValueModel(nil)
	b := docsync.Bind(docsync.NewCursor(local, titlePath), model)

	local.Hold()
	model.SetValue("Mine")
	b.Changed("Mine")
	if b.Pending() != 0 {
		t.Fatalf("the local echo must clear the pending write")
	}

	remote.At(titlePath).Set("Theirs", nil)
	if model.Value() != "Theirs" {
		t.Errorf("remote change while unacknowledged: model = %v", model.Value())
	}

	local.Flush()
	if model.Value() != "Mine" || remote.At(titlePath).Get() != "Mine" {
		t.Errorf("after ack model = %v remote = %v, want the server order", model.Value(), remote.At(titlePath).Get())
	}
}

func TestBinding_WriteFailureKeepsInput(t *testing.T) {
	srv := memdoc.NewServer(newEntry())
	local := srv.Connect()

	var reported []error
	var scheduled int
	notify := func(fn func()) { scheduled++; fn() }
	model := docsync.NewValueModel(nil)
	b := docsync.Bind(
		docsync.NewCursor(local, titlePath),
		model,
		docsync.OnError(func(err error) { reported = append(reported, err) }),
		docsync.WithNotifier(notify),
	)

	local.Close()
	model.SetValue("Unsaved")
	b.Changed("Unsaved")

	if len(reported) != 1 || !errors.Is(reported[0], docerr.ErrTransportRejected) {
		t.Fatalf("reported = %v", reported)
	}
	if model.Value() != "Unsaved" {
		t.Errorf("model reverted to %v", model.Value())
	}
	if scheduled < 2 {
		t.Errorf("updates must run through the notifier, got %d", scheduled)
	}
	if b.Pending() != 0 {
		t.Errorf("failed write still pending")
	}
}

func TestBinding_CloseStopsUpdates(t *testing.T) {
	srv := memdoc.NewServer(newEntry())
	local, remote := srv.Connect(), srv.Connect()
	model := docsync.NewValueModel(nil)
	b := docsync.Bind(docsync.NewCursor(local, titlePath), model)
	b.Close()

	remote.At(titlePath).Set("Late", nil)
	b.Changed("Ignored")

	if model.Value() != "Hello" || local.Submitted() != 0 {
		t.Errorf("closed binding still active: model=%v submitted=%d", model.Value(), local.Submitted())
	}
}

// ackFirstDoc acknowledges a write before it emits the write's local Op.
type ackFirstDoc struct {
	mu      sync.Mutex
	values  map[string]any
	subs    map[int]func(docsync.Op)
	next    int
	version int
}

func newAckFirstDoc(path docsync.Path, value any) *ackFirstDoc {
	return &ackFirstDoc{
		values: map[string]any{path.String(): value},
		subs:   make(map[int]func(docsync.Op)),
	}
}

func (d *ackFirstDoc) ID() string { return "ack-first" }

func (d *ackFirstDoc) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

func (d *ackFirstDoc) At(path docsync.Path) docsync.SubDoc {
	return ackFirstSub{doc: d, path: path.Clone()}
}

func (d *ackFirstDoc) Subscribe(fn func(docsync.Op)) func() {
	d.mu.Lock()
	d.next++
	id := d.next
	d.subs[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

func (d *ackFirstDoc) apply(path docsync.Path, value any, local bool, cb func(error)) {
	d.mu.Lock()
	d.values[path.String()] = value
	d.version++
	op := docsync.Op{Path: path, Kind: docsync.OpSet, Value: value, Local: local, Version: d.version}
	subs := make([]func(docsync.Op), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()

	if cb != nil {
		cb(nil)
	}
	for _, fn := range subs {
		fn(op)
	}
}

type ackFirstSub struct {
	doc  *ackFirstDoc
	path docsync.Path
}

func (s ackFirstSub) Get() any {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()
	return s.doc.values[s.path.String()]
}

func (s ackFirstSub) Set(value any, cb func(error)) { s.doc.apply(s.path, value, true, cb) }

func (s ackFirstSub) Remove(cb func(error)) { cb(errors.New("remove not supported")) }

func (s ackFirstSub) Move(from, to int, cb func(error)) { cb(errors.New("move not supported")) }

func TestBinding_EchoAfterAckIsNotReapplied(t *testing.T) {
	doc := newAckFirstDoc(titlePath, "Hello")
	model := docsync.NewValueModel(nil)
	b := docsync.Bind(docsync.NewCursor(doc, titlePath), model)
	sets := model.Sets()

	model.SetValue("Typed")
	sets++
	b.Changed("Typed")

	if model.Sets() != sets {
		t.Errorf("echo delivered after the ack was applied to the model")
	}
	if b.Pending() != 0 {
		t.Errorf("Pending() = %d after ack", b.Pending())
	}
	if got := doc.At(titlePath).Get(); got != "Typed" {
		t.Errorf("document = %v", got)
	}

	// Later remote changes still reach the model.
	doc.apply(titlePath, "Remote", false, nil)
	if model.Value() != "Remote" {
		t.Errorf("model = %v after a remote change", model.Value())
	}
}
