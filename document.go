package docsync

// Document is the transform transport's view of one shared document. The
// transport sequences operations, applies them locally and remotely and
// guarantees convergence; this package only reads and submits through it.
type Document interface {
	// ID identifies the logical document shared by all collaborators.
	ID() string
	// Version is the latest version this replica knows about.
	Version() int
	// At returns the transport's subdocument handle for path.
	At(path Path) SubDoc
	// Subscribe registers fn for every operation applied to this replica,
	// local or remote. The Op for a local write may be delivered before or
	// after that write's callback. The returned function removes the
	// subscription.
	Subscribe(fn func(Op)) (unsubscribe func())
}

// SubDoc is the transport cursor for one location. Callbacks fire once the
// operation is acknowledged or rejected; they may never fire if the document
// is torn down first.
type SubDoc interface {
	Get() any
	Set(value any, cb func(error))
	Remove(cb func(error))
	Move(from, to int, cb func(error))
}

// OpKind is the kind of an applied operation.
type OpKind string

const (
	OpSet    OpKind = "set"
	OpRemove OpKind = "remove"
	OpMove   OpKind = "move"
)

// Op notifies that an operation was applied. Value is the new value at Path
// (nil for removals, the reordered list for moves).
type Op struct {
	Path    Path
	Kind    OpKind
	Value   any
	Local   bool
	Version int
}
