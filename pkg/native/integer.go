package native

import "strconv"

// Integer is a boxed java.lang.Integer.
type Integer struct {
	Value int32
}

// IntegerValueOf boxes v.
func IntegerValueOf(v int32) *Integer {
	return &Integer{Value: v}
}

// IntValue unboxes i.
func (i *Integer) IntValue() int32 { return i.Value }

func (i *Integer) ClassName() string { return "java/lang/Integer" }

func (i *Integer) String() string { return strconv.FormatInt(int64(i.Value), 10) }
