package vm

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/daimatz/jvmtrace/pkg/descriptor"
	"github.com/daimatz/jvmtrace/pkg/native"
)

// Invocation is a call routed to an intrinsic. Args are in declaration
// order; Receiver is null for static calls.
type Invocation struct {
	VM        *VM
	Owner     string
	Name      string
	Signature *descriptor.Method
	Receiver  Value
	Args      []Value
}

// Intrinsic implements a standard-library method on the host. Its result is
// pushed unless the method is void.
type Intrinsic func(inv *Invocation) (Value, error)

// Constructor creates the host object behind `new` of a library class.
type Constructor func(vm *VM) (any, error)

// StaticField produces the value of a library static field. It is called
// once per VM and the result cached.
type StaticField func(vm *VM) (Value, error)

type intrinsicKey struct {
	owner, name, desc string
}

// Intrinsics is a registry of host implementations for library classes.
type Intrinsics struct {
	methods      map[intrinsicKey]Intrinsic
	constructors map[string]Constructor
	statics      map[string]StaticField
}

func NewIntrinsics() *Intrinsics {
	return &Intrinsics{
		methods:      make(map[intrinsicKey]Intrinsic),
		constructors: make(map[string]Constructor),
		statics:      make(map[string]StaticField),
	}
}

// Register binds owner.name with the given descriptor. An empty desc
// matches any descriptor not registered explicitly.
func (r *Intrinsics) Register(owner, name, desc string, fn Intrinsic) {
	r.methods[intrinsicKey{owner, name, desc}] = fn
}

func (r *Intrinsics) RegisterConstructor(class string, fn Constructor) {
	r.constructors[class] = fn
}

func (r *Intrinsics) RegisterStatic(owner, name string, fn StaticField) {
	r.statics[owner+"."+name] = fn
}

// Lookup finds the intrinsic for a call site, preferring an exact
// descriptor match.
func (r *Intrinsics) Lookup(owner, name, desc string) (Intrinsic, bool) {
	if fn, ok := r.methods[intrinsicKey{owner, name, desc}]; ok {
		return fn, true
	}
	fn, ok := r.methods[intrinsicKey{owner, name, ""}]
	return fn, ok
}

func (r *Intrinsics) constructor(class string) (Constructor, bool) {
	fn, ok := r.constructors[class]
	return fn, ok
}

func (r *Intrinsics) static(owner, name string) (StaticField, bool) {
	fn, ok := r.statics[owner+"."+name]
	return fn, ok
}

// IsLibraryClass reports whether calls on class go to intrinsics rather
// than bytecode.
func IsLibraryClass(class string) bool {
	for _, prefix := range []string{"java/", "javax/", "jdk/"} {
		if strings.HasPrefix(class, prefix) {
			return true
		}
	}
	return false
}

// DefaultIntrinsics returns a registry covering console output, Math,
// Integer boxing, String basics and HashMap.
func DefaultIntrinsics() *Intrinsics {
	r := NewIntrinsics()

	r.RegisterStatic("java/lang/System", "out", func(vm *VM) (Value, error) {
		return Ref(vm.Heap.Alloc(native.NewPrintStream(vm.Stdout, vm.ConsoleColor))), nil
	})
	r.RegisterStatic("java/lang/System", "err", func(vm *VM) (Value, error) {
		return Ref(vm.Heap.Alloc(native.NewPrintStream(vm.Stderr, nil))), nil
	})
	r.Register("java/io/PrintStream", "println", "", printTo(true))
	r.Register("java/io/PrintStream", "print", "", printTo(false))

	const mathClass = "java/lang/Math"
	r.Register(mathClass, "min", "(II)I", intBinary(func(a, b int32) int32 { return min(a, b) }))
	r.Register(mathClass, "max", "(II)I", intBinary(func(a, b int32) int32 { return max(a, b) }))
	r.Register(mathClass, "min", "(JJ)J", longBinary(func(a, b int64) int64 { return min(a, b) }))
	r.Register(mathClass, "max", "(JJ)J", longBinary(func(a, b int64) int64 { return max(a, b) }))
	r.Register(mathClass, "min", "(FF)F", floatBinary(math.Min))
	r.Register(mathClass, "max", "(FF)F", floatBinary(math.Max))
	r.Register(mathClass, "min", "(DD)D", doubleBinary(math.Min))
	r.Register(mathClass, "max", "(DD)D", doubleBinary(math.Max))
	r.Register(mathClass, "pow", "(DD)D", doubleBinary(math.Pow))
	r.Register(mathClass, "abs", "(I)I", func(inv *Invocation) (Value, error) {
		v := inv.Args[0].AsInt()
		if v < 0 {
			v = -v
		}
		return Int(v), nil
	})
	r.Register(mathClass, "abs", "(J)J", func(inv *Invocation) (Value, error) {
		v := inv.Args[0].AsLong()
		if v < 0 {
			v = -v
		}
		return Long(v), nil
	})
	r.Register(mathClass, "abs", "(F)F", func(inv *Invocation) (Value, error) {
		return Float(float32(math.Abs(float64(inv.Args[0].AsFloat())))), nil
	})
	r.Register(mathClass, "abs", "(D)D", func(inv *Invocation) (Value, error) {
		return Double(math.Abs(inv.Args[0].AsDouble())), nil
	})
	r.Register(mathClass, "sqrt", "(D)D", func(inv *Invocation) (Value, error) {
		return Double(math.Sqrt(inv.Args[0].AsDouble())), nil
	})

	r.Register("java/lang/Object", "<init>", "()V", func(*Invocation) (Value, error) {
		return Null, nil
	})

	r.Register("java/lang/Integer", "valueOf", "(I)Ljava/lang/Integer;", func(inv *Invocation) (Value, error) {
		return Ref(inv.VM.Heap.Alloc(native.IntegerValueOf(inv.Args[0].AsInt()))), nil
	})
	r.Register("java/lang/Integer", "intValue", "()I", func(inv *Invocation) (Value, error) {
		boxed, err := hostObject[*native.Integer](inv.VM, inv.Receiver)
		if err != nil {
			return Null, err
		}
		return Int(boxed.IntValue()), nil
	})

	r.Register("java/lang/String", "length", "()I", func(inv *Invocation) (Value, error) {
		s, err := receiverString(inv)
		if err != nil {
			return Null, err
		}
		return Int(int32(len(utf16.Encode([]rune(s))))), nil
	})
	r.Register("java/lang/String", "charAt", "(I)C", func(inv *Invocation) (Value, error) {
		s, err := receiverString(inv)
		if err != nil {
			return Null, err
		}
		units := utf16.Encode([]rune(s))
		i := inv.Args[0].AsInt()
		if i < 0 || int(i) >= len(units) {
			return Null, fault(ErrHeapAccess, "string index %d out of range for length %d", i, len(units))
		}
		return Int(int32(units[i])), nil
	})

	const hashMap = "java/util/HashMap"
	r.RegisterConstructor(hashMap, func(*VM) (any, error) { return native.NewHashMap(), nil })
	r.Register(hashMap, "<init>", "()V", func(*Invocation) (Value, error) { return Null, nil })
	r.Register(hashMap, "get", "(Ljava/lang/Object;)Ljava/lang/Object;", func(inv *Invocation) (Value, error) {
		m, err := hostObject[*native.HashMap](inv.VM, inv.Receiver)
		if err != nil {
			return Null, err
		}
		return mapValue(m.Get(inv.VM.hostKey(inv.Args[0]))), nil
	})
	r.Register(hashMap, "put", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;", func(inv *Invocation) (Value, error) {
		m, err := hostObject[*native.HashMap](inv.VM, inv.Receiver)
		if err != nil {
			return Null, err
		}
		return mapValue(m.Put(inv.VM.hostKey(inv.Args[0]), inv.Args[1])), nil
	})
	r.Register(hashMap, "containsKey", "(Ljava/lang/Object;)Z", func(inv *Invocation) (Value, error) {
		m, err := hostObject[*native.HashMap](inv.VM, inv.Receiver)
		if err != nil {
			return Null, err
		}
		return Bool(m.ContainsKey(inv.VM.hostKey(inv.Args[0]))), nil
	})
	r.Register(hashMap, "size", "()I", func(inv *Invocation) (Value, error) {
		m, err := hostObject[*native.HashMap](inv.VM, inv.Receiver)
		if err != nil {
			return Null, err
		}
		return Int(int32(m.Len())), nil
	})

	return r
}

func printTo(newline bool) Intrinsic {
	return func(inv *Invocation) (Value, error) {
		ps, err := hostObject[*native.PrintStream](inv.VM, inv.Receiver)
		if err != nil {
			return Null, err
		}
		var text string
		if len(inv.Args) > 0 {
			text = inv.VM.printable(inv.Args[0], inv.Signature.Params[0])
		}
		if newline {
			err = ps.Println(text)
		} else {
			err = ps.Print(text)
		}
		return Null, err
	}
}

func intBinary(fn func(a, b int32) int32) Intrinsic {
	return func(inv *Invocation) (Value, error) {
		return Int(fn(inv.Args[0].AsInt(), inv.Args[1].AsInt())), nil
	}
}

func longBinary(fn func(a, b int64) int64) Intrinsic {
	return func(inv *Invocation) (Value, error) {
		return Long(fn(inv.Args[0].AsLong(), inv.Args[1].AsLong())), nil
	}
}

func floatBinary(fn func(a, b float64) float64) Intrinsic {
	return func(inv *Invocation) (Value, error) {
		return Float(float32(fn(float64(inv.Args[0].AsFloat()), float64(inv.Args[1].AsFloat())))), nil
	}
}

func doubleBinary(fn func(a, b float64) float64) Intrinsic {
	return func(inv *Invocation) (Value, error) {
		return Double(fn(inv.Args[0].AsDouble(), inv.Args[1].AsDouble())), nil
	}
}

// hostObject resolves v to a host object of type T.
func hostObject[T any](vm *VM, v Value) (T, error) {
	var zero T
	if v.IsNull() {
		return zero, fault(ErrHeapAccess, "null dereference")
	}
	if v.Kind != KindRef {
		return zero, fault(ErrType, "expected %T receiver, got %s", zero, v.Kind)
	}
	entry, err := vm.Heap.Get(v.AsRef())
	if err != nil {
		return zero, err
	}
	obj, ok := entry.(T)
	if !ok {
		return zero, fault(ErrType, "heap entry %d is %T, want %T", v.AsRef(), entry, zero)
	}
	return obj, nil
}

func receiverString(inv *Invocation) (string, error) {
	switch inv.Receiver.Kind {
	case KindString:
		return inv.Receiver.AsString(), nil
	case KindNull:
		return "", fault(ErrHeapAccess, "null dereference")
	}
	return "", fault(ErrType, "expected string receiver, got %s", inv.Receiver.Kind)
}

func mapValue(v any) Value {
	if v == nil {
		return Null
	}
	return v.(Value)
}

// printable renders v for console output as Java would print a value of
// static type t.
func (vm *VM) printable(v Value, t descriptor.Descriptor) string {
	switch t {
	case descriptor.Boolean:
		return strconv.FormatBool(v.AsInt() != 0)
	case descriptor.Char:
		return string(rune(uint16(v.AsInt())))
	}
	return vm.Display(v)
}
