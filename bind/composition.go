package bind

import (
	"fmt"
	"strings"
)

// Component is one piece of a Composition: literal Text when Chain is nil,
// otherwise an embedded chain expression.
type Component struct {
	Text  string
	Chain Chain
}

// Literal reports whether c is literal text.
func (c Component) Literal() bool { return c.Chain == nil }

// Composition is a parsed template such as "Hello {user.name}!".
type Composition []Component

// ParseComposition splits tpl into literal text and {chain} expressions.
// Braces do not nest and cannot be escaped.
func ParseComposition(tpl string) (Composition, error) {
	var (
		comp Composition
		lit  strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			comp = append(comp, Component{Text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tpl); i++ {
		switch tpl[i] {
		case '{':
			end := strings.IndexByte(tpl[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: %q: unterminated \"{\" at %d", ErrMalformedComposition, tpl, i)
			}
			expr := tpl[i+1 : i+1+end]
			if strings.IndexByte(expr, '{') >= 0 {
				return nil, fmt.Errorf("%w: %q: nested \"{\" at %d", ErrMalformedComposition, tpl, i)
			}
			if strings.TrimSpace(expr) == "" {
				return nil, fmt.Errorf("%w: %q: empty expression at %d", ErrMalformedComposition, tpl, i)
			}
			c, err := ParseChain(expr)
			if err != nil {
				return nil, fmt.Errorf("composition %q: %w", tpl, err)
			}
			flush()
			comp = append(comp, Component{Chain: c})
			i += end + 1
		case '}':
			return nil, fmt.Errorf("%w: %q: stray \"}\" at %d", ErrMalformedComposition, tpl, i)
		default:
			lit.WriteByte(tpl[i])
		}
	}
	flush()
	return comp, nil
}

// Expressions counts the chain components.
func (c Composition) Expressions() int {
	n := 0
	for _, comp := range c {
		if !comp.Literal() {
			n++
		}
	}
	return n
}

func (c Composition) String() string {
	var sb strings.Builder
	for _, comp := range c {
		if comp.Literal() {
			sb.WriteString(comp.Text)
			continue
		}
		sb.WriteByte('{')
		sb.WriteString(comp.Chain.String())
		sb.WriteByte('}')
	}
	return sb.String()
}
