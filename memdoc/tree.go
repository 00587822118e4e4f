package memdoc

import (
	"fmt"
	"strconv"

	deepcopy "github.com/barkimedes/go-deepcopy"

	"github.com/brunoga/docsync"
	"github.com/brunoga/docsync/internal/core"
)

type op struct {
	kind     docsync.OpKind
	path     docsync.Path
	value    any
	from, to int
}

func partsOf(p docsync.Path) []core.PathPart {
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

// copyValue deep-copies v so that replicas never share mutable state.
func copyValue(v any) any {
	if v == nil {
		return nil
	}
	c, err := deepcopy.Anything(v)
	if err != nil {
		return v
	}
	return c
}

func apply(data any, o op) (any, error) {
	parts := partsOf(o.path)
	switch o.kind {
	case docsync.OpSet:
		return setAt(data, parts, copyValue(o.value))
	case docsync.OpRemove:
		return removeAt(data, parts)
	case docsync.OpMove:
		return moveAt(data, parts, o.from, o.to)
	}
	return data, fmt.Errorf("unknown operation %q", o.kind)
}

func keyOf(part core.PathPart) string {
	if part.IsIndex {
		return strconv.Itoa(part.Index)
	}
	return part.Key
}

func setAt(node any, parts []core.PathPart, value any) (any, error) {
	if len(parts) == 0 {
		return value, nil
	}
	head, rest := parts[0], parts[1:]

	if node == nil {
		if head.IsIndex {
			return nil, fmt.Errorf("cannot index %d into missing list", head.Index)
		}
		node = map[string]any{}
	}

	switch n := node.(type) {
	case map[string]any:
		key := keyOf(head)
		child, err := setAt(n[key], rest, value)
		if err != nil {
			return nil, err
		}
		n[key] = child
		return n, nil
	case []any:
		if !head.IsIndex || head.Index < 0 || head.Index > len(n) {
			return nil, fmt.Errorf("index %s out of range for list of %d", head.Token(), len(n))
		}
		if head.Index == len(n) {
			if len(rest) > 0 {
				return nil, fmt.Errorf("index %d out of range for list of %d", head.Index, len(n))
			}
			return append(n, value), nil
		}
		child, err := setAt(n[head.Index], rest, value)
		if err != nil {
			return nil, err
		}
		n[head.Index] = child
		return n, nil
	}
	return nil, fmt.Errorf("cannot set %q inside %T", head.Token(), node)
}

func removeAt(node any, parts []core.PathPart) (any, error) {
	if len(parts) == 0 {
		return nil, nil
	}
	head, rest := parts[0], parts[1:]

	switch n := node.(type) {
	case map[string]any:
		key := keyOf(head)
		child, ok := n[key]
		if !ok {
			return nil, fmt.Errorf("path %q not found", head.Token())
		}
		if len(rest) == 0 {
			delete(n, key)
			return n, nil
		}
		newChild, err := removeAt(child, rest)
		if err != nil {
			return nil, err
		}
		n[key] = newChild
		return n, nil
	case []any:
		if !head.IsIndex || head.Index < 0 || head.Index >= len(n) {
			return nil, fmt.Errorf("index %s out of range for list of %d", head.Token(), len(n))
		}
		if len(rest) == 0 {
			return append(n[:head.Index], n[head.Index+1:]...), nil
		}
		newChild, err := removeAt(n[head.Index], rest)
		if err != nil {
			return nil, err
		}
		n[head.Index] = newChild
		return n, nil
	}
	return nil, fmt.Errorf("path %q not found", head.Token())
}

func moveAt(node any, parts []core.PathPart, from, to int) (any, error) {
	target, ok := core.Lookup(node, parts)
	if !ok {
		return nil, fmt.Errorf("list not found")
	}
	list, ok := target.([]any)
	if !ok {
		return nil, fmt.Errorf("cannot move inside %T", target)
	}
	if from < 0 || from >= len(list) || to < 0 || to >= len(list) {
		return nil, fmt.Errorf("move %d -> %d out of range for list of %d", from, to, len(list))
	}
	moved := make([]any, 0, len(list))
	elem := list[from]
	for i, v := range list {
		if i != from {
			moved = append(moved, v)
		}
	}
	moved = append(moved[:to], append([]any{elem}, moved[to:]...)...)
	return setAt(node, parts, moved)
}
