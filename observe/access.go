package observe

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/delaneyj/chainparty/internal/ident"
)

var (
	ErrNoMethod    = errors.New("chainparty/observe: no such zero-argument method")
	ErrNotSettable = errors.New("chainparty/observe: property is not settable")
)

// Getter objects resolve their own properties.
type Getter interface {
	Get(name string) (any, bool)
}

// Setter objects store their own properties and are responsible for
// notifying Default.
type Setter interface {
	Set(name string, value any) error
}

// Caller objects resolve their own zero-argument methods.
type Caller interface {
	Call(name string) (any, error)
}

// Declarer objects declare what a property or method depends on. Each entry is a
// bare property name or "name@event".
type Declarer interface {
	DeclaredDependencies(name string) []string
}

// DeclaredDependencies returns the dependencies obj declares for name, or
// nil.
func DeclaredDependencies(obj any, name string) []string {
	d, ok := obj.(Declarer)
	if !ok {
		return nil
	}
	return d.DeclaredDependencies(name)
}

// Get reads property name of obj. Missing properties read as nil.
func Get(obj any, name string) any {
	switch o := obj.(type) {
	case nil:
		return nil
	case Getter:
		v, _ := o.Get(name)
		return v
	case map[string]any:
		return o[name]
	}

	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		f := rv.FieldByName(name)
		if f.IsValid() && f.CanInterface() {
			return f.Interface()
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if v.IsValid() {
			return v.Interface()
		}
	}
	return nil
}

// Call invokes the zero-argument method name on obj and returns its first
// result.
func Call(obj any, name string) (any, error) {
	if c, ok := obj.(Caller); ok {
		return c.Call(name)
	}
	if obj == nil {
		return nil, fmt.Errorf("%s() on nil: %w", name, ErrNoMethod)
	}

	m := reflect.ValueOf(obj).MethodByName(name)
	if !m.IsValid() || m.Type().NumIn() != 0 {
		return nil, fmt.Errorf("%T.%s(): %w", obj, name, ErrNoMethod)
	}
	out := m.Call(nil)
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// Set writes property name of obj and notifies Default when the value changed
// by identity. Setter objects handle both steps themselves.
func Set(obj any, name string, value any) error {
	switch o := obj.(type) {
	case Setter:
		return o.Set(name, value)
	case map[string]any:
		old := o[name]
		o[name] = value
		if !ident.Same(old, value) {
			Default.Notify(obj, name, value, old)
		}
		return nil
	}

	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%T.%s: %w", obj, name, ErrNotSettable)
	}
	f := rv.Elem().FieldByName(name)
	if !f.IsValid() || !f.CanSet() {
		return fmt.Errorf("%T.%s: %w", obj, name, ErrNotSettable)
	}

	var nv reflect.Value
	switch {
	case value == nil:
		nv = reflect.Zero(f.Type())
	case reflect.TypeOf(value).AssignableTo(f.Type()):
		nv = reflect.ValueOf(value)
	default:
		return fmt.Errorf("%T.%s: cannot assign %T: %w", obj, name, value, ErrNotSettable)
	}

	old := f.Interface()
	f.Set(nv)
	if !ident.Same(old, value) {
		Default.Notify(obj, name, value, old)
	}
	return nil
}
