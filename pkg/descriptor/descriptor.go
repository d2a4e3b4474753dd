// Package descriptor parses JVM field and method descriptors.
package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is wrapped by every parse failure.
var ErrMalformed = errors.New("malformed descriptor")

// Descriptor is a parsed type or method signature.
type Descriptor interface {
	// Encode returns the descriptor string this value was parsed from.
	Encode() string
	// String returns the Java source spelling, e.g. "int[]".
	String() string
}

// Primitive is a base type. Its value is the descriptor character.
type Primitive byte

const (
	Byte    Primitive = 'B'
	Char    Primitive = 'C'
	Double  Primitive = 'D'
	Float   Primitive = 'F'
	Int     Primitive = 'I'
	Long    Primitive = 'J'
	Short   Primitive = 'S'
	Boolean Primitive = 'Z'
	Void    Primitive = 'V'
)

var primitiveNames = map[Primitive]string{
	Byte:    "byte",
	Char:    "char",
	Double:  "double",
	Float:   "float",
	Int:     "int",
	Long:    "long",
	Short:   "short",
	Boolean: "boolean",
	Void:    "void",
}

func (p Primitive) Encode() string { return string(rune(p)) }
func (p Primitive) String() string { return primitiveNames[p] }

// Wide reports whether values of p take two local variable slots.
func (p Primitive) Wide() bool { return p == Long || p == Double }

// Array is a one-dimensional array of Elem. Multi-dimensional arrays nest.
type Array struct {
	Elem Descriptor
}

func (a *Array) Encode() string { return "[" + a.Elem.Encode() }
func (a *Array) String() string { return a.Elem.String() + "[]" }

// Class is a reference to a named class, in internal form (java/lang/String).
type Class struct {
	Name string
}

func (c *Class) Encode() string { return "L" + c.Name + ";" }
func (c *Class) String() string { return strings.ReplaceAll(c.Name, "/", ".") }

// Method is a method signature.
type Method struct {
	Params []Descriptor
	Return Descriptor
}

func (m *Method) Encode() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range m.Params {
		b.WriteString(p.Encode())
	}
	b.WriteByte(')')
	b.WriteString(m.Return.Encode())
	return b.String()
}

func (m *Method) String() string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.String()
	}
	return m.Return.String() + " (" + strings.Join(params, ", ") + ")"
}

// IsVoid reports whether the method returns nothing.
func (m *Method) IsVoid() bool { return m.Return == Void }

// ArgSlots returns the number of local variable slots the parameters occupy.
func (m *Method) ArgSlots() int {
	n := 0
	for _, p := range m.Params {
		n += SlotWidth(p)
	}
	return n
}

// SlotWidth returns 2 for long and double, 1 for everything else.
func SlotWidth(d Descriptor) int {
	if p, ok := d.(Primitive); ok && p.Wide() {
		return 2
	}
	return 1
}

// Parse parses a field or method descriptor. A leading '(' selects the
// method grammar.
func Parse(s string) (Descriptor, error) {
	p := &parser{input: s}
	var (
		d   Descriptor
		err error
	)
	if strings.HasPrefix(s, "(") {
		d, err = p.method()
	} else {
		d, err = p.field(false)
	}
	if err != nil {
		return nil, err
	}
	if p.pos != len(s) {
		return nil, p.errorf("unexpected trailing input %q", s[p.pos:])
	}
	return d, nil
}

// ParseMethod parses a method descriptor such as "(II)I".
func ParseMethod(s string) (*Method, error) {
	d, err := Parse(s)
	if err != nil {
		return nil, err
	}
	m, ok := d.(*Method)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a method descriptor", ErrMalformed, s)
	}
	return m, nil
}

// ParseField parses a field descriptor such as "[I".
func ParseField(s string) (Descriptor, error) {
	d, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if _, ok := d.(*Method); ok {
		return nil, fmt.Errorf("%w: %q is a method descriptor", ErrMalformed, s)
	}
	if d == Void {
		return nil, fmt.Errorf("%w: void is not a field type", ErrMalformed)
	}
	return d, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w %q at offset %d: %s", ErrMalformed, p.input, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) method() (*Method, error) {
	p.pos++ // '('
	m := &Method{}
	for {
		if p.pos >= len(p.input) {
			return nil, p.errorf("unterminated parameter list")
		}
		if p.input[p.pos] == ')' {
			p.pos++
			break
		}
		param, err := p.field(false)
		if err != nil {
			return nil, err
		}
		m.Params = append(m.Params, param)
	}
	ret, err := p.field(true)
	if err != nil {
		return nil, err
	}
	m.Return = ret
	return m, nil
}

// field parses one field descriptor. Void is only accepted where allowVoid
// is set (a method's return type, or a bare top-level "V").
func (p *parser) field(allowVoid bool) (Descriptor, error) {
	if p.pos >= len(p.input) {
		return nil, p.errorf("unexpected end of input")
	}
	c := p.input[p.pos]
	switch c {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		p.pos++
		return Primitive(c), nil
	case 'V':
		if !allowVoid && p.pos != 0 {
			return nil, p.errorf("void is only valid as a return type")
		}
		p.pos++
		return Void, nil
	case 'L':
		end := strings.IndexByte(p.input[p.pos:], ';')
		if end < 0 {
			return nil, p.errorf("unterminated class name")
		}
		name := p.input[p.pos+1 : p.pos+end]
		if name == "" {
			return nil, p.errorf("empty class name")
		}
		p.pos += end + 1
		return &Class{Name: name}, nil
	case '[':
		p.pos++
		elem, err := p.field(false)
		if err != nil {
			return nil, err
		}
		return &Array{Elem: elem}, nil
	default:
		return nil, p.errorf("unrecognized type character %q", c)
	}
}
