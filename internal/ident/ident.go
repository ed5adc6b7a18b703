// Package ident implements the reference-identity rules shared by watchers,
// collections and the reconciler.
package ident

import "reflect"

// IsNil reports whether v is undefined: a nil interface or a typed nil
// pointer, map, slice, interface, func or chan.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface,
		reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

// Same reports whether a and b are the same reference.
//
// Pointers, maps and chans compare by address and slices by address and
// length. Plain values (strings, numbers, comparable structs) compare with ==.
// Funcs are never the same as anything but nil. There is no structural
// comparison: two distinct pointers to equal structs are different.
func Same(a, b any) bool {
	aNil, bNil := IsNil(a), IsNil(b)
	if aNil || bNil {
		return aNil && bNil
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Func:
		return false
	}

	if !va.Comparable() || !vb.Comparable() {
		return false
	}
	return a == b
}

type refKey struct {
	typ reflect.Type
	ptr uintptr
	len int
}

// Key returns a comparable value usable as a map key for v's identity, such
// that Same(a, b) implies Key(a) == Key(b).
func Key(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer, reflect.Func:
		return refKey{typ: rv.Type(), ptr: rv.Pointer()}
	case reflect.Slice:
		return refKey{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}
	}
	if rv.Comparable() {
		return v
	}
	// Non-comparable values held by value have no identity of their own.
	return refKey{typ: rv.Type()}
}
