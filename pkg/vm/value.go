package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/daimatz/jvmtrace/pkg/descriptor"
)

// Kind tags a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindString
	KindRef
)

var kindNames = [...]string{
	KindNull:   "null",
	KindInt:    "int",
	KindLong:   "long",
	KindFloat:  "float",
	KindDouble: "double",
	KindString: "string",
	KindRef:    "reference",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is the unit that flows through locals, operand stacks, fields and
// array elements. The zero Value is null.
//
// int, boolean, byte, char and short all travel as KindInt. Strings are
// immutable constants and travel by value; every other reference is a heap
// id.
type Value struct {
	Kind Kind
	i    int64
	f    float64
	s    string
}

var Null = Value{}

func Int(v int32) Value { return Value{Kind: KindInt, i: int64(v)} }
func Long(v int64) Value { return Value{Kind: KindLong, i: v} }
func Float(v float32) Value { return Value{Kind: KindFloat, f: float64(v)} }
func Double(v float64) Value { return Value{Kind: KindDouble, f: v} }
func String(v string) Value { return Value{Kind: KindString, s: v} }
func Ref(id int) Value { return Value{Kind: KindRef, i: int64(id)} }
func Bool(v bool) Value {
	if v {
		return Int(1)
	}
	return Int(0)
}

func (v Value) AsInt() int32 { return int32(v.i) }
func (v Value) AsLong() int64 { return v.i }
func (v Value) AsFloat() float32 { return float32(v.f) }
func (v Value) AsDouble() float64 { return v.f }
func (v Value) AsString() string { return v.s }
func (v Value) AsRef() int { return int(v.i) }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsReference reports whether v can live in a reference-typed slot.
func (v Value) IsReference() bool {
	return v.Kind == KindNull || v.Kind == KindRef || v.Kind == KindString
}

// Wide reports whether v is a category 2 value (long or double).
func (v Value) Wide() bool { return v.Kind == KindLong || v.Kind == KindDouble }

// String renders v without consulting the heap. References print as "@id".
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindLong:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f, 32)
	case KindDouble:
		return formatFloat(v.f, 64)
	case KindString:
		return v.s
	case KindRef:
		return "@" + strconv.FormatInt(v.i, 10)
	}
	return "?"
}

// Equal reports reference or value identity as if_acmp sees it.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.s == o.s
	case KindFloat, KindDouble:
		return v.f == o.f
	default:
		return v.i == o.i
	}
}

// ZeroValue returns the default value of a field or array element of type d.
func ZeroValue(d descriptor.Descriptor) Value {
	p, ok := d.(descriptor.Primitive)
	if !ok {
		return Null
	}
	switch p {
	case descriptor.Long:
		return Long(0)
	case descriptor.Float:
		return Float(0)
	case descriptor.Double:
		return Double(0)
	default:
		return Int(0)
	}
}

// formatFloat renders f the way Java's Float.toString and Double.toString
// do: "1.0", "0.001", "1.0E7", "NaN", "-Infinity".
func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	abs := math.Abs(f)
	if abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(f, 'f', -1, bits)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}

	s := strconv.FormatFloat(f, 'E', -1, bits)
	mant, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	neg := strings.HasPrefix(exp, "-")
	exp = strings.TrimLeft(exp, "+-0")
	if neg {
		exp = "-" + exp
	}
	return mant + "E" + exp
}
