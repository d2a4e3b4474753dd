package vm

// Frame is one activation: locals, its own operand stack, and the caller pc
// to resume at. The host frame has no method; it is the operand stack that
// VM.Push, VM.Pop and VM.InvokeStatic work on.
type Frame struct {
	Method   *Method
	Locals   []Value
	Stack    []Value
	PC       int
	OpPC     int // address of the instruction being executed
	ReturnPC int
}

// NewFrame creates a frame for m with every local set to null.
func NewFrame(m *Method) *Frame {
	n := m.Signature.ArgSlots()
	if !m.Static {
		n++
	}
	if m.MaxLocals > n {
		n = m.MaxLocals
	}
	return &Frame{
		Method:   m,
		Locals:   make([]Value, n),
		Stack:    make([]Value, 0, m.MaxStack),
		ReturnPC: -1,
	}
}

func newHostFrame() *Frame {
	return &Frame{ReturnPC: -1}
}

func (f *Frame) isHost() bool { return f.Method == nil }

// Line returns the source line of the current instruction, -1 for the host
// frame.
func (f *Frame) Line() int {
	if f.isHost() {
		return -1
	}
	return f.Method.Line(f.OpPC)
}

// Push pushes v. Exceeding the method's declared max stack is a fault.
func (f *Frame) Push(v Value) {
	if !f.isHost() && len(f.Stack) >= f.Method.MaxStack {
		throw(ErrBadCode, "operand stack overflow: max=%d", f.Method.MaxStack)
	}
	f.Stack = append(f.Stack, v)
}

// Pop pops a value of any kind.
func (f *Frame) Pop() Value {
	n := len(f.Stack)
	if n == 0 {
		throw(ErrBadCode, "operand stack underflow")
	}
	v := f.Stack[n-1]
	f.Stack = f.Stack[:n-1]
	return v
}

// Peek returns the value depth entries below the top without popping.
func (f *Frame) Peek(depth int) Value {
	n := len(f.Stack)
	if depth >= n {
		throw(ErrBadCode, "operand stack underflow")
	}
	return f.Stack[n-1-depth]
}

func (f *Frame) pop(kind Kind) Value {
	v := f.Pop()
	if v.Kind != kind {
		throw(ErrType, "expected %s on operand stack, got %s", kind, v.Kind)
	}
	return v
}

func (f *Frame) PopInt() int32 { return f.pop(KindInt).AsInt() }
func (f *Frame) PopLong() int64 { return f.pop(KindLong).AsLong() }
func (f *Frame) PopFloat() float32 { return f.pop(KindFloat).AsFloat() }
func (f *Frame) PopDouble() float64 { return f.pop(KindDouble).AsDouble() }

// PopReference pops null, a string or a heap reference.
func (f *Frame) PopReference() Value {
	v := f.Pop()
	if !v.IsReference() {
		throw(ErrType, "expected reference on operand stack, got %s", v.Kind)
	}
	return v
}

// Local returns local slot i.
func (f *Frame) Local(i int) Value {
	if i < 0 || i >= len(f.Locals) {
		throw(ErrBadCode, "local variable index %d out of range (max %d)", i, len(f.Locals))
	}
	return f.Locals[i]
}

// SetLocal stores v in slot i. A long or double also claims slot i+1.
func (f *Frame) SetLocal(i int, v Value) {
	width := 1
	if v.Wide() {
		width = 2
	}
	if i < 0 || i+width > len(f.Locals) {
		throw(ErrBadCode, "local variable index %d out of range (max %d)", i, len(f.Locals))
	}
	f.Locals[i] = v
	if width == 2 {
		f.Locals[i+1] = Null
	}
}

func (f *Frame) code() []byte { return f.Method.Code }

func (f *Frame) need(n int) {
	if f.PC+n > len(f.code()) {
		throw(ErrBadCode, "truncated operand at pc %d", f.PC)
	}
}

// ReadU8 reads an unsigned byte operand and advances PC.
func (f *Frame) ReadU8() uint8 {
	f.need(1)
	v := f.code()[f.PC]
	f.PC++
	return v
}

// ReadI8 reads a signed byte operand and advances PC.
func (f *Frame) ReadI8() int8 {
	return int8(f.ReadU8())
}

// ReadU16 reads a big-endian uint16 operand and advances PC by 2.
func (f *Frame) ReadU16() uint16 {
	f.need(2)
	c := f.code()
	v := uint16(c[f.PC])<<8 | uint16(c[f.PC+1])
	f.PC += 2
	return v
}

// ReadI16 reads a big-endian int16 operand and advances PC by 2.
func (f *Frame) ReadI16() int16 {
	return int16(f.ReadU16())
}

// ReadI32 reads a big-endian int32 operand and advances PC by 4.
func (f *Frame) ReadI32() int32 {
	f.need(4)
	c := f.code()
	v := uint32(c[f.PC])<<24 | uint32(c[f.PC+1])<<16 | uint32(c[f.PC+2])<<8 | uint32(c[f.PC+3])
	f.PC += 4
	return int32(v)
}
