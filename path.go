package docsync

import (
	"encoding/json"
	"fmt"

	"github.com/brunoga/docsync/internal/core"
)

// Path addresses a location inside a document as an ordered list of object
// keys (string) and array indexes (int), e.g. Path{"fields", 3, "validations", 0}.
//
// Paths are compared structurally with Equal. A nil Path is "no path" and
// makes any cursor using it invalid; an empty non-nil Path is the root.
type Path []any

// P builds a Path from its elements.
func P(elems ...any) Path {
	p := make(Path, 0, len(elems))
	return append(p, elems...)
}

// Equal reports whether p and other address the same location. A string key
// and an int index never compare equal even when they print the same.
func (p Path) Equal(other Path) bool {
	if (p == nil) != (other == nil) {
		return false
	}
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		a, okA := core.PartOf(p[i])
		b, okB := core.PartOf(other[i])
		if okA != okB || (okA && !a.Equals(b)) {
			return false
		}
		if !okA && !core.Equal(p[i], other[i]) {
			return false
		}
	}
	return true
}

// Append returns a new Path of p followed by sub. p is not modified.
func (p Path) Append(sub ...any) Path {
	out := make(Path, 0, len(p)+len(sub))
	out = append(out, p...)
	return append(out, sub...)
}

// Clone returns a copy of p that shares no storage with it.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return p.Append()
}

// HasPrefix reports whether prefix addresses p itself or one of its
// ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return Path(p[:len(prefix)]).nonNil().Equal(prefix.nonNil())
}

// Key returns the JSON Pointer encoding of p, used as the bus topic.
func (p Path) Key() string {
	return core.Pointer(p.parts())
}

func (p Path) String() string {
	if p == nil {
		return "<nil>"
	}
	return core.FormatParts(p.parts())
}

// UnmarshalJSON decodes a JSON array, normalizing integral numbers to int.
func (p *Path) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*p = nil
		return nil
	}
	out := make(Path, len(raw))
	for i, elem := range raw {
		part, ok := core.PartOf(elem)
		if !ok {
			return fmt.Errorf("invalid path element %v at %d", elem, i)
		}
		out[i] = part.Value()
	}
	*p = out
	return nil
}

func (p Path) nonNil() Path {
	if p == nil {
		return Path{}
	}
	return p
}

func (p Path) parts() []core.PathPart {
	parts := make([]core.PathPart, 0, len(p))
	for _, elem := range p {
		part, ok := core.PartOf(elem)
		if !ok {
			part = core.PathPart{Key: fmt.Sprint(elem)}
		}
		parts = append(parts, part)
	}
	return parts
}

// ParsePath decodes a JSON Pointer into a Path.
func ParsePath(pointer string) Path {
	parts := core.ParsePointer(pointer)
	out := make(Path, len(parts))
	for i, part := range parts {
		out[i] = part.Value()
	}
	return out
}
