package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/daimatz/jvmtrace/pkg/descriptor"
	"github.com/daimatz/jvmtrace/pkg/trace"
)

// DefaultMaxDepth is the default limit on nested method activations.
const DefaultMaxDepth = 1024

// Call kinds reported with trace Call events.
const (
	CallStatic      = "static"
	CallMethod      = "method"
	CallConstructor = "constructor"
)

// VM executes the methods of one loaded class and reports every observable
// step to its tracer.
type VM struct {
	Class      *Class
	Heap       *Heap
	Intrinsics *Intrinsics
	Tracer     trace.Writer
	Logger     zerolog.Logger

	Stdout       io.Writer
	Stderr       io.Writer
	ConsoleColor *color.Color

	// EntryPoint is the method Run invokes.
	EntryPoint string
	MaxDepth   int

	// LegacyBranches makes ifge branch on <= 0 and ifle on >= 0, the
	// behaviour of the interpreter traces were first recorded with.
	LegacyBranches bool

	host    *Frame
	frames  []*Frame
	statics map[string]Value
}

// NewVM prepares class for execution. It reports function and class
// metadata to tracer and allocates the class singleton as heap id 0. A nil
// tracer discards events.
func NewVM(class *Class, tracer trace.Writer) *VM {
	if tracer == nil {
		tracer = trace.Discard
	}
	vm := &VM{
		Class:        class,
		Heap:         NewHeap(),
		Intrinsics:   DefaultIntrinsics(),
		Tracer:       tracer,
		Logger:       zerolog.Nop(),
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		ConsoleColor: color.New(color.FgYellow),
		EntryPoint:   "main",
		MaxDepth:     DefaultMaxDepth,
		host:         newHostFrame(),
		statics:      make(map[string]Value),
	}
	for _, m := range class.Methods {
		tracer.DefineFunction(m.Name, m.ReturnType(), m.ParamNames...)
	}
	tracer.DefineClass(class.Name, class.FieldNames(), "")
	vm.Heap.Alloc(class.NewInstance())
	return vm
}

// Singleton returns the class instance allocated by NewVM. Static fields
// live on it.
func (vm *VM) Singleton() *Object {
	obj, _ := vm.Heap.Object(0)
	return obj
}

// Depth returns the number of active frames.
func (vm *VM) Depth() int { return len(vm.frames) }

// Push pushes an argument for the next InvokeStatic.
func (vm *VM) Push(v Value) {
	vm.host.Stack = append(vm.host.Stack, v)
}

// Pop pops the host stack, typically a return value.
func (vm *VM) Pop() (v Value, err error) {
	defer recoverFault(&err)
	return vm.host.Pop(), nil
}

// InvokeStatic runs the static method called name with its arguments
// already pushed. The return value, if any, is left on the host stack.
func (vm *VM) InvokeStatic(name string) error {
	m := vm.Class.MethodByName(name)
	if m == nil || !m.Static {
		return fmt.Errorf("%w: static method %s.%s", ErrEntryNotFound, vm.Class.Name, name)
	}
	return vm.call(m)
}

// Invoke is InvokeStatic with an exact descriptor.
func (vm *VM) Invoke(name, desc string) error {
	m := vm.Class.Method(name, desc)
	if m == nil || !m.Static {
		return fmt.Errorf("%w: static method %s.%s%s", ErrEntryNotFound, vm.Class.Name, name, desc)
	}
	return vm.call(m)
}

// Run invokes the entry point. If it takes parameters, args are passed as
// a String[].
func (vm *VM) Run(args ...string) error {
	m := vm.Class.Method(vm.EntryPoint, "([Ljava/lang/String;)V")
	if m == nil {
		m = vm.Class.MethodByName(vm.EntryPoint)
	}
	if m == nil || !m.Static {
		return fmt.Errorf("%w: %s.%s", ErrEntryNotFound, vm.Class.Name, vm.EntryPoint)
	}
	if len(m.Signature.Params) > 0 {
		arr := &Array{
			Elem:     &descriptor.Class{Name: "java/lang/String"},
			Elements: make([]Value, len(args)),
		}
		for i, a := range args {
			arr.Elements[i] = String(a)
		}
		vm.Push(Ref(vm.Heap.Alloc(arr)))
	}
	return vm.call(m)
}

// call runs m from the host frame until it returns.
func (vm *VM) call(m *Method) (err error) {
	base := len(vm.frames)
	defer func() {
		if err != nil {
			vm.frames = vm.frames[:base]
		}
	}()
	if err := vm.catch(func() error { return vm.invoke(vm.caller(), m, CallStatic) }); err != nil {
		return err
	}
	for len(vm.frames) > base {
		if err := vm.step(); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) catch(fn func() error) (err error) {
	defer recoverFault(&err)
	return fn()
}

// caller returns the frame issuing the next call.
func (vm *VM) caller() *Frame {
	if n := len(vm.frames); n > 0 {
		return vm.frames[n-1]
	}
	return vm.host
}

// invoke moves arguments from the caller's stack into a new frame for m and
// makes it current. The caller's pc already points past the invoke
// instruction and is saved as the return address.
func (vm *VM) invoke(caller *Frame, m *Method, kind string) error {
	if m.Code == nil {
		return fault(ErrNotImplemented, "%s has no code", m.FullName())
	}
	if len(vm.frames) >= vm.MaxDepth {
		return fault(ErrStackOverflow, "call depth exceeded %d", vm.MaxDepth)
	}

	f := NewFrame(m)
	params := m.Signature.Params
	args := make([]Value, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		args[i] = vm.popArg(caller, params[i])
	}
	if !m.Static {
		this := caller.PopReference()
		if this.IsNull() {
			return fault(ErrHeapAccess, "null receiver for %s", m.FullName())
		}
		f.Locals[0] = this
	}
	for i, slot := range m.ParamSlots() {
		f.Locals[slot] = args[i]
	}

	line := caller.Line()
	if !caller.isHost() {
		f.ReturnPC = caller.PC
	}
	vm.frames = append(vm.frames, f)

	rendered := make([]string, len(args))
	for i, a := range args {
		rendered[i] = vm.Display(a)
	}
	vm.Tracer.Call(line, m.Name, kind, rendered...)
	vm.Logger.Debug().
		Str("method", m.FullName()).
		Str("kind", kind).
		Int("depth", len(vm.frames)).
		Int("return_pc", f.ReturnPC).
		Strs("args", rendered).
		Msg("call")
	return nil
}

// popArg pops one argument and checks it against its declared type.
func (vm *VM) popArg(f *Frame, t descriptor.Descriptor) Value {
	p, ok := t.(descriptor.Primitive)
	if !ok {
		return f.PopReference()
	}
	switch p {
	case descriptor.Long:
		return Long(f.PopLong())
	case descriptor.Float:
		return Float(f.PopFloat())
	case descriptor.Double:
		return Double(f.PopDouble())
	default:
		return Int(f.PopInt())
	}
}

// ret pops the current frame, reports the return and hands ret (nil for
// void) to the caller.
func (vm *VM) ret(v *Value) {
	n := len(vm.frames)
	f := vm.frames[n-1]
	vm.frames = vm.frames[:n-1]
	caller := vm.caller()

	line := f.Line()
	value := trace.VoidValue
	if v == nil {
		vm.Tracer.ReturnVoid(line)
	} else {
		value = vm.Display(*v)
		vm.Tracer.Return(line, value)
	}

	if !caller.isHost() {
		caller.PC = f.ReturnPC
	}
	if v != nil {
		caller.Stack = append(caller.Stack, *v)
	}
	vm.Logger.Debug().
		Str("method", f.Method.FullName()).
		Str("value", value).
		Int("depth", len(vm.frames)).
		Int("return_pc", f.ReturnPC).
		Msg("return")
}

// step executes one instruction of the current frame.
func (vm *VM) step() (err error) {
	f := vm.frames[len(vm.frames)-1]
	if f.PC < 0 || f.PC >= len(f.Method.Code) {
		return &Error{Method: f.Method.FullName(), PC: f.PC, Err: fault(ErrBadCode, "execution ran past the end of code")}
	}
	f.OpPC = f.PC
	op := f.Method.Code[f.PC]
	f.PC++

	defer func() {
		if err != nil {
			err = vm.wrap(f, op, err)
		}
	}()
	defer recoverFault(&err)

	vm.Logger.Trace().
		Str("method", f.Method.FullName()).
		Int("pc", f.OpPC).
		Str("op", OpcodeName(op)).
		Int("stack", len(f.Stack)).
		Msg("exec")
	return vm.exec(f, op)
}

func (vm *VM) wrap(f *Frame, op byte, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Method: f.Method.FullName(), PC: f.OpPC, Opcode: op, HasOpcode: true, Err: err}
}

// Display renders v as trace events show it: heap objects as
// "Class@id", arrays as "int[]@id", boxed integers by value.
func (vm *VM) Display(v Value) string {
	if v.Kind != KindRef {
		return v.String()
	}
	id := v.AsRef()
	entry, err := vm.Heap.Get(id)
	if err != nil {
		return v.String()
	}
	switch e := entry.(type) {
	case *Object:
		return javaName(e.Class.Name) + "@" + strconv.Itoa(id)
	case *Array:
		return e.Elem.String() + "[]@" + strconv.Itoa(id)
	case fmt.Stringer:
		return e.String()
	case interface{ ClassName() string }:
		return javaName(e.ClassName()) + "@" + strconv.Itoa(id)
	}
	return v.String()
}

// hostKey converts v to a comparable key for host collections.
func (vm *VM) hostKey(v Value) any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindInt:
		return v.AsInt()
	case KindLong:
		return v.AsLong()
	case KindFloat:
		return v.AsFloat()
	case KindDouble:
		return v.AsDouble()
	case KindString:
		return v.AsString()
	}
	if entry, err := vm.Heap.Get(v.AsRef()); err == nil {
		return entry
	}
	return v
}

func javaName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}
