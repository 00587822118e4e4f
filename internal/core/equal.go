package core

import (
	"reflect"
)

// Equal performs a deep equality check between two JSON-compatible values.
// Numbers compare by value whatever their Go type, so the int 3 written
// locally equals the float64 3 decoded from the wire.
func Equal(a, b any) bool {
	return equalRecursive(reflect.ValueOf(a), reflect.ValueOf(b))
}

func equalRecursive(a, b reflect.Value) bool {
	a, b = unwrap(a), unwrap(b)
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}

	if na, ok := number(a); ok {
		nb, ok := number(b)
		return ok && na == nb
	}

	switch a.Kind() {
	case reflect.Bool:
		return b.Kind() == reflect.Bool && a.Bool() == b.Bool()
	case reflect.String:
		return b.Kind() == reflect.String && a.String() == b.String()
	case reflect.Slice, reflect.Array:
		if b.Kind() != reflect.Slice && b.Kind() != reflect.Array {
			return false
		}
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !equalRecursive(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Map:
		if b.Kind() != reflect.Map || a.Len() != b.Len() {
			return false
		}
		if a.Type().Key().Kind() != reflect.String || b.Type().Key().Kind() != reflect.String {
			return reflect.DeepEqual(a.Interface(), b.Interface())
		}
		iter := a.MapRange()
		for iter.Next() {
			bv := b.MapIndex(reflect.ValueOf(iter.Key().String()).Convert(b.Type().Key()))
			if !bv.IsValid() || !equalRecursive(iter.Value(), bv) {
				return false
			}
		}
		return true
	}

	if a.Type() != b.Type() {
		return false
	}
	if a.CanInterface() && b.CanInterface() {
		return reflect.DeepEqual(a.Interface(), b.Interface())
	}
	return false
}

func unwrap(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func number(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}
