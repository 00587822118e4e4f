// Package memdoc is an in-memory transform server with client replicas that
// implement docsync.Document.
//
// The server is authoritative: it applies operations in arrival order,
// numbers them with a document version and forwards each one to every other
// connected replica. Conflicting writes to the same path resolve as last
// applied wins. A replica applies its own operations immediately and acks
// them once the server commits; Hold and Flush let callers delay that round
// trip to interleave remote operations with unacknowledged local ones.
package memdoc

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brunoga/docsync"
	"github.com/brunoga/docsync/internal/core"
	"github.com/brunoga/docsync/internal/logger"
)

// ErrClosed is reported for operations on a closed replica, including
// operations still waiting to be sent when it was closed.
var ErrClosed = errors.New("memdoc: document closed")

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = logger.FromZap(l) }
}

// WithID sets the document id. The default is a random UUID.
func WithID(id string) Option {
	return func(s *Server) { s.id = id }
}

type delivery struct {
	from    *Doc
	op      op
	version int
}

// Server holds the authoritative copy of one document.
type Server struct {
	mu       sync.Mutex
	id       string
	data     any
	version  int
	clients  map[*Doc]struct{}
	outbox   []delivery
	draining bool
	log      *logger.Logger
}

// NewServer creates a server for a document with the given initial content.
func NewServer(initial map[string]any, opts ...Option) *Server {
	s := &Server{
		id:      uuid.NewString(),
		clients: make(map[*Doc]struct{}),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if initial == nil {
		s.data = map[string]any{}
	} else {
		s.data = copyValue(initial)
	}
	s.log = s.log.With("doc", s.id)
	return s
}

// ID returns the document id.
func (s *Server) ID() string {
	return s.id
}

// Version returns the number of committed operations.
func (s *Server) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Snapshot returns a copy of the authoritative content.
func (s *Server) Snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyValue(s.data)
}

// Clients returns the number of connected replicas.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Connect opens a new replica initialised from the current content.
func (s *Server) Connect() *Doc {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &Doc{
		clientID: uuid.NewString(),
		server:   s,
		data:     copyValue(s.data),
		version:  s.version,
		subs:     make(map[uint64]func(docsync.Op)),
	}
	d.log = s.log.With("client", d.clientID)
	s.clients[d] = struct{}{}
	return d
}

func (s *Server) disconnect(d *Doc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, d)
}

func (s *Server) commit(from *Doc, o op) (int, error) {
	s.mu.Lock()
	if _, ok := s.clients[from]; !ok {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	data, err := apply(s.data, o)
	if err != nil {
		s.mu.Unlock()
		s.log.Debug("operation rejected", "path", o.path.String(), "error", err)
		return 0, err
	}
	s.data = data
	s.version++
	v := s.version
	s.outbox = append(s.outbox, delivery{from: from, op: o, version: v})
	if s.draining {
		s.mu.Unlock()
		return v, nil
	}
	s.draining = true
	s.mu.Unlock()

	s.drain()
	return v, nil
}

// drain forwards committed operations in version order. Commits made while
// draining, including ones triggered by subscribers, are queued behind.
func (s *Server) drain() {
	for {
		s.mu.Lock()
		if len(s.outbox) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		d := s.outbox[0]
		s.outbox = s.outbox[1:]
		targets := make([]*Doc, 0, len(s.clients))
		for c := range s.clients {
			if c != d.from {
				targets = append(targets, c)
			}
		}
		s.mu.Unlock()

		for _, c := range targets {
			c.receive(d.op, d.version)
		}
	}
}

type outgoing struct {
	op        op
	cb        func(error)
	remoteSeq int
}

// Doc is one client replica of a Server's document.
type Doc struct {
	mu        sync.Mutex
	clientID  string
	server    *Server
	data      any
	version   int
	subs      map[uint64]func(docsync.Op)
	next      uint64
	held      bool
	queue     []outgoing
	remoteSeq int
	submitted int
	closed    bool
	log       *logger.Logger
}

var _ docsync.Document = (*Doc)(nil)

func (d *Doc) ID() string {
	return d.server.id
}

// ClientID identifies this replica.
func (d *Doc) ClientID() string {
	return d.clientID
}

func (d *Doc) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Submitted returns how many operations this replica has submitted.
func (d *Doc) Submitted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submitted
}

// Pending returns the number of held operations not yet sent.
func (d *Doc) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Doc) At(path docsync.Path) docsync.SubDoc {
	return &subDoc{doc: d, path: path.Clone()}
}

func (d *Doc) Subscribe(fn func(docsync.Op)) (unsubscribe func()) {
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

// Subscribers returns the number of live op subscriptions.
func (d *Doc) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Hold queues operations locally instead of sending them.
func (d *Doc) Hold() {
	d.mu.Lock()
	d.held = true
	d.mu.Unlock()
}

// Flush sends held operations in submission order and stops holding.
func (d *Doc) Flush() {
	d.mu.Lock()
	d.held = false
	queue := d.queue
	d.queue = nil
	d.mu.Unlock()

	if len(queue) > 0 {
		d.sendAll(queue)
	}
}

// Close disconnects the replica. Held operations fail with ErrClosed.
func (d *Doc) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	queue := d.queue
	d.queue = nil
	d.subs = make(map[uint64]func(docsync.Op))
	d.mu.Unlock()

	d.server.disconnect(d)
	for _, out := range queue {
		if out.cb != nil {
			out.cb(ErrClosed)
		}
	}
}

func (d *Doc) get(path docsync.Path) any {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := core.Lookup(d.data, partsOf(path))
	if !ok {
		return nil
	}
	return copyValue(v)
}

func (d *Doc) submit(o op, cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		cb(ErrClosed)
		return
	}
	data, err := apply(d.data, o)
	if err != nil {
		d.mu.Unlock()
		cb(err)
		return
	}
	d.data = data
	d.submitted++
	ev := d.eventLocked(o, true)
	out := outgoing{op: o, cb: cb, remoteSeq: d.remoteSeq}
	if d.held {
		d.queue = append(d.queue, out)
		d.mu.Unlock()
		d.emit(ev)
		return
	}
	d.mu.Unlock()

	d.emit(ev)
	d.send(out)
}

func (d *Doc) send(out outgoing) {
	d.sendAll([]outgoing{out})
}

// sendAll commits ops in order and acks them. When remote operations were
// applied here after the first op was submitted, the server ordered every op
// of the batch after them, so the batch is replayed on top to converge.
func (d *Doc) sendAll(batch []outgoing) {
	committed := make([]outgoing, 0, len(batch))
	for _, out := range batch {
		v, err := d.server.commit(d, out.op)
		if err != nil {
			if !errors.Is(err, ErrClosed) {
				// Our optimistic state diverged from the server; adopt its copy.
				snapshot, version := d.server.Snapshot(), d.server.Version()
				d.mu.Lock()
				d.data, d.version = snapshot, version
				d.mu.Unlock()
			}
			out.cb(err)
			continue
		}
		d.mu.Lock()
		if v > d.version {
			d.version = v
		}
		d.mu.Unlock()
		committed = append(committed, out)
	}
	if len(committed) == 0 {
		return
	}

	var events []docsync.Op
	d.mu.Lock()
	if d.remoteSeq != committed[0].remoteSeq {
		for _, out := range committed {
			data, err := apply(d.data, out.op)
			if err != nil {
				d.log.Warn("replay failed", "path", out.op.path.String(), "error", err)
				continue
			}
			d.data = data
			events = append(events, d.eventLocked(out.op, true))
		}
	}
	d.mu.Unlock()

	for _, ev := range events {
		d.emit(ev)
	}
	for _, out := range committed {
		out.cb(nil)
	}
}

func (d *Doc) receive(o op, version int) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	data, err := apply(d.data, o)
	if err != nil {
		d.mu.Unlock()
		d.log.Warn("remote operation does not apply, resyncing", "path", o.path.String(), "error", err)
		snapshot, v := d.server.Snapshot(), d.server.Version()
		d.mu.Lock()
		d.data, d.version = snapshot, v
		d.mu.Unlock()
		return
	}
	d.data = data
	d.remoteSeq++
	if version > d.version {
		d.version = version
	}
	ev := d.eventLocked(o, false)
	d.mu.Unlock()

	d.emit(ev)
}

func (d *Doc) eventLocked(o op, local bool) docsync.Op {
	ev := docsync.Op{
		Path:    o.path.Clone(),
		Kind:    o.kind,
		Local:   local,
		Version: d.version,
	}
	if o.kind != docsync.OpRemove {
		if v, ok := core.Lookup(d.data, partsOf(o.path)); ok {
			ev.Value = copyValue(v)
		}
	}
	return ev
}

func (d *Doc) emit(ev docsync.Op) {
	d.mu.Lock()
	fns := make([]func(docsync.Op), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

type subDoc struct {
	doc  *Doc
	path docsync.Path
}

func (s *subDoc) Get() any {
	return s.doc.get(s.path)
}

func (s *subDoc) Set(value any, cb func(error)) {
	s.doc.submit(op{kind: docsync.OpSet, path: s.path, value: copyValue(value)}, cb)
}

func (s *subDoc) Remove(cb func(error)) {
	s.doc.submit(op{kind: docsync.OpRemove, path: s.path}, cb)
}

func (s *subDoc) Move(from, to int, cb func(error)) {
	s.doc.submit(op{kind: docsync.OpMove, path: s.path, from: from, to: to}, cb)
}
