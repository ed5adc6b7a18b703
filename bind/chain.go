// Package bind keeps derived values current as the object graph they are read
// from mutates.
//
// A Watcher walks a dot-separated chain of property reads and zero-argument
// method calls ("user.address.city", "cart.total()") and registers one
// listener per traversed depth. When any depth changes only the part of the
// chain below it is torn down and rebuilt. Binding writes a watcher's result
// into a target property, Binder concatenates literal text with several
// watchers' results, and EventWatcher follows whichever object currently sits
// at the end of a chain and subscribes to one of its events.
package bind

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedChain       = errors.New("chainparty/bind: malformed chain")
	ErrMalformedComposition = errors.New("chainparty/bind: malformed composition")
)

// Segment is one step of a Chain.
type Segment struct {
	Name string
	Call bool // method call, invoked with no arguments
}

func (s Segment) String() string {
	if s.Call {
		return s.Name + "()"
	}
	return s.Name
}

// Chain is an ordered, non-empty sequence of segments.
type Chain []Segment

// ParseChain parses "a.b.method()" into a Chain.
func ParseChain(expr string) (Chain, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrMalformedChain)
	}

	parts := strings.Split(expr, ".")
	c := make(Chain, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		seg := Segment{Name: part}
		if open := strings.IndexByte(part, '('); open >= 0 {
			if !strings.HasSuffix(part, ")") || open != len(part)-2 {
				return nil, fmt.Errorf("%w: %q: segment %d %q must end in \"()\"", ErrMalformedChain, expr, i, part)
			}
			seg = Segment{Name: part[:open], Call: true}
		} else if strings.ContainsRune(part, ')') {
			return nil, fmt.Errorf("%w: %q: stray \")\" in segment %d", ErrMalformedChain, expr, i)
		}
		if !validName(seg.Name) {
			return nil, fmt.Errorf("%w: %q: bad segment %d %q", ErrMalformedChain, expr, i, part)
		}
		c = append(c, seg)
	}
	return c, nil
}

// MustParseChain is ParseChain for expressions known to be valid.
func MustParseChain(expr string) Chain {
	c, err := ParseChain(expr)
	if err != nil {
		panic(err)
	}
	return c
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r > 0x7f:
		default:
			return false
		}
	}
	return true
}

func (c Chain) String() string {
	var sb strings.Builder
	for i, s := range c {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(s.String())
	}
	return sb.String()
}

// dependency is a parsed declared dependency, "name" or "name@event".
type dependency struct {
	chain Chain
	event string
}

func parseDependency(decl string) (dependency, error) {
	expr, event, hasEvent := strings.Cut(decl, "@")
	if hasEvent && strings.TrimSpace(event) == "" {
		return dependency{}, fmt.Errorf("%w: dependency %q has an empty event", ErrMalformedChain, decl)
	}
	c, err := ParseChain(expr)
	if err != nil {
		return dependency{}, fmt.Errorf("dependency %q: %w", decl, err)
	}
	return dependency{chain: c, event: strings.TrimSpace(event)}, nil
}
