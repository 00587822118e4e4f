package core

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// PathPart represents one segment of a path into a JSON-like document: an
// object key or an array index.
type PathPart struct {
	Key     string
	Index   int
	IsIndex bool
}

// PartOf converts a raw path element into a PathPart. Strings become keys,
// integers (and integral floats, as produced by encoding/json) become indexes.
func PartOf(v any) (PathPart, bool) {
	switch t := v.(type) {
	case string:
		return PathPart{Key: t}, true
	case int:
		return PathPart{Index: t, IsIndex: true}, true
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return PathPart{Index: int(t), IsIndex: true}, true
		}
		return PathPart{}, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return PathPart{Index: int(rv.Int()), IsIndex: true}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return PathPart{Index: int(rv.Uint()), IsIndex: true}, true
	case reflect.String:
		return PathPart{Key: rv.String()}, true
	}
	return PathPart{}, false
}

// Value returns the part as a raw path element (string or int).
func (p PathPart) Value() any {
	if p.IsIndex {
		return p.Index
	}
	return p.Key
}

func (p PathPart) Equals(other PathPart) bool {
	if p.IsIndex != other.IsIndex {
		return false
	}
	if p.IsIndex {
		return p.Index == other.Index
	}
	return p.Key == other.Key
}

// Token returns the escaped JSON Pointer token for the part.
func (p PathPart) Token() string {
	if p.IsIndex {
		return strconv.Itoa(p.Index)
	}
	return EscapeKey(p.Key)
}

// Pointer encodes parts as an RFC 6901 JSON Pointer. The root is "".
func Pointer(parts []PathPart) string {
	var b strings.Builder
	for _, part := range parts {
		b.WriteByte('/')
		b.WriteString(part.Token())
	}
	return b.String()
}

// ParsePointer parses a JSON Pointer. Tokens made of digits become indexes.
func ParsePointer(path string) []PathPart {
	if path == "" || path == "/" {
		return nil
	}

	var tokens []string
	if strings.HasPrefix(path, "/") {
		tokens = strings.Split(path, "/")[1:]
	} else {
		tokens = strings.Split(path, "/")
	}

	parts := make([]PathPart, len(tokens))
	for i, token := range tokens {
		token = strings.ReplaceAll(token, "~1", "/")
		token = strings.ReplaceAll(token, "~0", "~")
		if idx, err := strconv.Atoi(token); err == nil && idx >= 0 {
			parts[i] = PathPart{Index: idx, IsIndex: true}
		} else {
			parts[i] = PathPart{Key: token}
		}
	}
	return parts
}

func EscapeKey(key string) string {
	key = strings.ReplaceAll(key, "~", "~0")
	key = strings.ReplaceAll(key, "/", "~1")
	return key
}

// Lookup walks root along parts. It understands map[string]any and []any as
// produced by encoding/json, and falls back to reflection for other maps with
// string keys and slices.
func Lookup(root any, parts []PathPart) (any, bool) {
	current := root
	for _, part := range parts {
		if current == nil {
			return nil, false
		}
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[keyOf(part)]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			if !part.IsIndex || part.Index < 0 || part.Index >= len(node) {
				return nil, false
			}
			current = node[part.Index]
		default:
			v, ok := lookupReflect(current, part)
			if !ok {
				return nil, false
			}
			current = v
		}
	}
	return current, true
}

func lookupReflect(node any, part PathPart) (any, bool) {
	rv := reflect.ValueOf(node)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(keyOf(part)).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		if !part.IsIndex || part.Index < 0 || part.Index >= rv.Len() {
			return nil, false
		}
		return rv.Index(part.Index).Interface(), true
	}
	return nil, false
}

func keyOf(part PathPart) string {
	if part.IsIndex {
		return strconv.Itoa(part.Index)
	}
	return part.Key
}

// FormatParts renders parts for log output, e.g. [fields 3 title].
func FormatParts(parts []PathPart) string {
	vals := make([]any, len(parts))
	for i, p := range parts {
		vals[i] = p.Value()
	}
	return fmt.Sprint(vals)
}
