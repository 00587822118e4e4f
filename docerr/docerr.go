// Package docerr defines the error taxonomy shared by the document
// synchronization packages.
package docerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// KindTransportRejected is a write, remove or move the transform
	// transport refused (stale or disconnected document).
	KindTransportRejected Kind = "transport_rejected"
	// KindLifecycleConflict is a lifecycle action the REST collaborator
	// refused (version mismatch, permission).
	KindLifecycleConflict Kind = "lifecycle_conflict"
	// KindRevertFailure is a failed field-set while reverting to a snapshot.
	KindRevertFailure Kind = "revert_failure"
	// KindProgramming marks misuse such as writing through a closed cursor.
	KindProgramming Kind = "programming_error"
)

// Sentinels usable with errors.Is.
var (
	ErrTransportRejected = &Error{Kind: KindTransportRejected}
	ErrLifecycleConflict = &Error{Kind: KindLifecycleConflict}
	ErrRevertFailure     = &Error{Kind: KindRevertFailure}
	ErrProgramming       = &Error{Kind: KindProgramming}
)

// Error is a classified failure raised by operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New returns an Error of the given kind wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
