package vm

import (
	"math"
	"strconv"

	"github.com/daimatz/jvmtrace/pkg/descriptor"
)

// exec executes a single instruction. f.PC already points past the opcode
// byte; f.OpPC is the opcode's address.
func (vm *VM) exec(f *Frame, op byte) error {
	switch op {
	case OpNop:

	// --- Constants ---
	case OpAconstNull:
		f.Push(Null)
	case OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5:
		f.Push(Int(int32(op) - OpIconst0))
	case OpLconst0, OpLconst1:
		f.Push(Long(int64(op - OpLconst0)))
	case OpFconst0, OpFconst1, OpFconst2:
		f.Push(Float(float32(op - OpFconst0)))
	case OpDconst0, OpDconst1:
		f.Push(Double(float64(op - OpDconst0)))
	case OpBipush:
		f.Push(Int(int32(f.ReadI8())))
	case OpSipush:
		f.Push(Int(int32(f.ReadI16())))
	case OpLdc:
		return vm.ldc(f, uint16(f.ReadU8()), false)
	case OpLdcW:
		return vm.ldc(f, f.ReadU16(), false)
	case OpLdc2W:
		return vm.ldc(f, f.ReadU16(), true)

	// --- Loads ---
	case OpIload, OpLload, OpFload, OpDload, OpAload:
		vm.load(f, int(f.ReadU8()), loadKinds[(op-OpIload)])
	case OpIload0, OpIload1, OpIload2, OpIload3:
		vm.load(f, int(op-OpIload0), KindInt)
	case OpLload0, OpLload1, OpLload2, OpLload3:
		vm.load(f, int(op-OpLload0), KindLong)
	case OpFload0, OpFload1, OpFload2, OpFload3:
		vm.load(f, int(op-OpFload0), KindFloat)
	case OpDload0, OpDload1, OpDload2, OpDload3:
		vm.load(f, int(op-OpDload0), KindDouble)
	case OpAload0, OpAload1, OpAload2, OpAload3:
		vm.load(f, int(op-OpAload0), KindRef)

	// --- Stores ---
	case OpIstore, OpLstore, OpFstore, OpDstore, OpAstore:
		slot := int(f.ReadU8())
		vm.store(f, slot, vm.popKind(f, loadKinds[op-OpIstore]))
	case OpIstore0, OpIstore1, OpIstore2, OpIstore3:
		vm.store(f, int(op-OpIstore0), Int(f.PopInt()))
	case OpLstore0, OpLstore1, OpLstore2, OpLstore3:
		vm.store(f, int(op-OpLstore0), Long(f.PopLong()))
	case OpFstore0, OpFstore1, OpFstore2, OpFstore3:
		vm.store(f, int(op-OpFstore0), Float(f.PopFloat()))
	case OpDstore0, OpDstore1, OpDstore2, OpDstore3:
		vm.store(f, int(op-OpDstore0), Double(f.PopDouble()))
	case OpAstore0, OpAstore1, OpAstore2, OpAstore3:
		vm.store(f, int(op-OpAstore0), f.PopReference())
	case OpIinc:
		slot := int(f.ReadU8())
		delta := int32(f.ReadI8())
		cur := f.Local(slot)
		if cur.Kind != KindInt {
			return fault(ErrType, "iinc on %s local %d", cur.Kind, slot)
		}
		vm.store(f, slot, Int(cur.AsInt()+delta))

	// --- Arrays ---
	case OpIaload, OpLaload, OpFaload, OpDaload, OpAaload, OpBaload, OpCaload, OpSaload:
		return vm.arrayLoad(f)
	case OpIastore, OpLastore, OpFastore, OpDastore, OpAastore, OpBastore, OpCastore, OpSastore:
		return vm.arrayStore(f, op)
	case OpNewarray:
		atype := f.ReadU8()
		elem, ok := newarrayTypes[atype]
		if !ok {
			return fault(ErrBadCode, "newarray: bad element type %d", atype)
		}
		return vm.newArray(f, elem)
	case OpAnewarray:
		cr, err := vm.Class.Pool.Class(f.ReadU16())
		if err != nil {
			return err
		}
		return vm.newArray(f, classDescriptor(cr.Name))
	case OpArraylength:
		arr, _, err := vm.popArray(f)
		if err != nil {
			return err
		}
		f.Push(Int(int32(len(arr.Elements))))

	// --- Stack ---
	case OpPop:
		if f.Pop().Wide() {
			return fault(ErrType, "pop of a category 2 value")
		}
	case OpPop2:
		if !f.Pop().Wide() {
			if f.Pop().Wide() {
				return fault(ErrType, "pop2 splits a category 2 value")
			}
		}
	case OpDup:
		v := f.Peek(0)
		if v.Wide() {
			return fault(ErrType, "dup of a category 2 value")
		}
		f.Push(v)
	case OpDupX1:
		v1, v2 := f.Pop(), f.Pop()
		if v1.Wide() || v2.Wide() {
			return fault(ErrType, "dup_x1 of a category 2 value")
		}
		f.Push(v1)
		f.Push(v2)
		f.Push(v1)
	case OpDupX2:
		v1, v2 := f.Pop(), f.Pop()
		if v2.Wide() {
			f.Push(v1)
			f.Push(v2)
			f.Push(v1)
			break
		}
		v3 := f.Pop()
		f.Push(v1)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)
	case OpDup2:
		v1 := f.Pop()
		if v1.Wide() {
			f.Push(v1)
			f.Push(v1)
			break
		}
		v2 := f.Pop()
		f.Push(v2)
		f.Push(v1)
		f.Push(v2)
		f.Push(v1)
	case OpDup2X1:
		v1 := f.Pop()
		if v1.Wide() {
			v2 := f.Pop()
			f.Push(v1)
			f.Push(v2)
			f.Push(v1)
			break
		}
		v2, v3 := f.Pop(), f.Pop()
		f.Push(v2)
		f.Push(v1)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)
	case OpDup2X2:
		vm.dup2x2(f)
	case OpSwap:
		v1, v2 := f.Pop(), f.Pop()
		if v1.Wide() || v2.Wide() {
			return fault(ErrType, "swap of a category 2 value")
		}
		f.Push(v1)
		f.Push(v2)

	// --- Arithmetic ---
	case OpIadd, OpIsub, OpImul, OpIdiv, OpIrem, OpIshl, OpIshr, OpIushr, OpIand, OpIor, OpIxor:
		b, a := f.PopInt(), f.PopInt()
		r, err := intOp(op, a, b)
		if err != nil {
			return err
		}
		f.Push(Int(r))
	case OpLshl, OpLshr, OpLushr:
		s, a := f.PopInt(), f.PopLong()
		r, _ := longOp(op, a, int64(s))
		f.Push(Long(r))
	case OpLadd, OpLsub, OpLmul, OpLdiv, OpLrem, OpLand, OpLor, OpLxor:
		b, a := f.PopLong(), f.PopLong()
		r, err := longOp(op, a, b)
		if err != nil {
			return err
		}
		f.Push(Long(r))
	case OpFadd, OpFsub, OpFmul, OpFdiv, OpFrem:
		b, a := f.PopFloat(), f.PopFloat()
		f.Push(Float(floatOp(op, a, b)))
	case OpDadd, OpDsub, OpDmul, OpDdiv, OpDrem:
		b, a := f.PopDouble(), f.PopDouble()
		f.Push(Double(doubleOp(op, a, b)))
	case OpIneg:
		f.Push(Int(-f.PopInt()))
	case OpLneg:
		f.Push(Long(-f.PopLong()))
	case OpFneg:
		f.Push(Float(-f.PopFloat()))
	case OpDneg:
		f.Push(Double(-f.PopDouble()))

	// --- Conversions ---
	case OpI2l:
		f.Push(Long(int64(f.PopInt())))
	case OpI2f:
		f.Push(Float(float32(f.PopInt())))
	case OpI2d:
		f.Push(Double(float64(f.PopInt())))
	case OpL2i:
		f.Push(Int(int32(f.PopLong())))
	case OpL2f:
		f.Push(Float(float32(f.PopLong())))
	case OpL2d:
		f.Push(Double(float64(f.PopLong())))
	case OpF2i:
		f.Push(Int(toInt32(float64(f.PopFloat()))))
	case OpF2l:
		f.Push(Long(toInt64(float64(f.PopFloat()))))
	case OpF2d:
		f.Push(Double(float64(f.PopFloat())))
	case OpD2i:
		f.Push(Int(toInt32(f.PopDouble())))
	case OpD2l:
		f.Push(Long(toInt64(f.PopDouble())))
	case OpD2f:
		f.Push(Float(float32(f.PopDouble())))
	case OpI2b:
		f.Push(Int(int32(int8(f.PopInt()))))
	case OpI2c:
		f.Push(Int(int32(uint16(f.PopInt()))))
	case OpI2s:
		f.Push(Int(int32(int16(f.PopInt()))))

	// --- Comparisons ---
	case OpLcmp:
		b, a := f.PopLong(), f.PopLong()
		f.Push(Int(compare(a, b)))
	case OpFcmpl, OpFcmpg:
		b, a := f.PopFloat(), f.PopFloat()
		f.Push(Int(compareFloat(float64(a), float64(b), op == OpFcmpg)))
	case OpDcmpl, OpDcmpg:
		b, a := f.PopDouble(), f.PopDouble()
		f.Push(Int(compareFloat(a, b, op == OpDcmpg)))

	// --- Branches ---
	case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle:
		offset := f.ReadI16()
		if vm.test(op-OpIfeq, f.PopInt(), 0, true) {
			vm.jump(f, int(offset))
		}
	case OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple:
		offset := f.ReadI16()
		b, a := f.PopInt(), f.PopInt()
		if vm.test(op-OpIfIcmpeq, a, b, false) {
			vm.jump(f, int(offset))
		}
	case OpIfAcmpeq, OpIfAcmpne:
		offset := f.ReadI16()
		b, a := f.PopReference(), f.PopReference()
		if a.Equal(b) == (op == OpIfAcmpeq) {
			vm.jump(f, int(offset))
		}
	case OpIfnull, OpIfnonnull:
		offset := f.ReadI16()
		if f.PopReference().IsNull() == (op == OpIfnull) {
			vm.jump(f, int(offset))
		}
	case OpGoto:
		vm.jump(f, int(f.ReadI16()))
	case OpGotoW:
		vm.jump(f, int(f.ReadI32()))
	case OpTableswitch:
		vm.tableswitch(f)
	case OpLookupswitch:
		vm.lookupswitch(f)

	// --- Returns ---
	case OpIreturn:
		v := Int(f.PopInt())
		vm.ret(&v)
	case OpLreturn:
		v := Long(f.PopLong())
		vm.ret(&v)
	case OpFreturn:
		v := Float(f.PopFloat())
		vm.ret(&v)
	case OpDreturn:
		v := Double(f.PopDouble())
		vm.ret(&v)
	case OpAreturn:
		v := f.PopReference()
		vm.ret(&v)
	case OpReturn:
		vm.ret(nil)

	// --- Fields and objects ---
	case OpGetstatic:
		return vm.getstatic(f)
	case OpPutstatic:
		return vm.putstatic(f)
	case OpGetfield:
		return vm.getfield(f)
	case OpPutfield:
		return vm.putfield(f)
	case OpNew:
		return vm.newObject(f)

	// --- Invocation ---
	case OpInvokevirtual:
		return vm.invokeRef(f, f.ReadU16(), CallMethod)
	case OpInvokespecial:
		return vm.invokeRef(f, f.ReadU16(), "")
	case OpInvokestatic:
		return vm.invokeRef(f, f.ReadU16(), CallStatic)

	// --- Coverage gaps ---
	case OpAthrow, OpInvokeinterface, OpInvokedynamic, OpMultianewarray, OpCheckcast, OpInstanceof,
		OpMonitorenter, OpMonitorexit, OpJsr, OpJsrW, OpRet, OpWide:
		return fault(ErrNotImplemented, "opcode %s", OpcodeName(op))

	default:
		return fault(ErrUnsupportedOpcode, "0x%02X at pc %d", op, f.OpPC)
	}
	return nil
}

// loadKinds maps the xload/xstore family offset (i, l, f, d, a) to a kind.
var loadKinds = [...]Kind{KindInt, KindLong, KindFloat, KindDouble, KindRef}

var newarrayTypes = map[uint8]descriptor.Descriptor{
	4:  descriptor.Boolean,
	5:  descriptor.Char,
	6:  descriptor.Float,
	7:  descriptor.Double,
	8:  descriptor.Byte,
	9:  descriptor.Short,
	10: descriptor.Int,
	11: descriptor.Long,
}

func (vm *VM) popKind(f *Frame, k Kind) Value {
	if k == KindRef {
		return f.PopReference()
	}
	return f.pop(k)
}

func (vm *VM) load(f *Frame, slot int, k Kind) {
	v := f.Local(slot)
	if k == KindRef {
		if !v.IsReference() {
			throw(ErrType, "aload of %s local %d", v.Kind, slot)
		}
	} else if v.Kind != k {
		throw(ErrType, "load of %s local %d as %s", v.Kind, slot, k)
	}
	f.Push(v)
}

// store writes a local and reports the assignment. The variable name comes
// from the LocalVariableTable at the pc after the instruction, where a
// freshly stored variable's scope begins; failing that, at the instruction
// itself.
func (vm *VM) store(f *Frame, slot int, v Value) {
	old := f.Local(slot)
	f.SetLocal(slot, v)
	vm.Tracer.Assign(f.Line(), vm.localName(f, slot), vm.Display(old), vm.Display(v), "")
}

func (vm *VM) localName(f *Frame, slot int) string {
	if lv, ok := f.Method.Local(f.PC, slot); ok {
		return lv.Name
	}
	if lv, ok := f.Method.Local(f.OpPC, slot); ok {
		return lv.Name
	}
	return "local" + strconv.Itoa(slot)
}

func (vm *VM) ldc(f *Frame, idx uint16, wide bool) error {
	v, err := vm.Class.Pool.Loadable(idx)
	if err != nil {
		return err
	}
	if v.Wide() != wide {
		return fault(ErrBadCode, "constant %d of kind %s loaded by %s", idx, v.Kind, OpcodeName(f.Method.Code[f.OpPC]))
	}
	f.Push(v)
	return nil
}

// jump transfers control to the current instruction's address plus
// offset.
func (vm *VM) jump(f *Frame, offset int) {
	target := f.OpPC + offset
	if target < 0 || target >= len(f.Method.Code) {
		throw(ErrBadCode, "branch target %d outside code of length %d", target, len(f.Method.Code))
	}
	f.PC = target
}

// Condition order shared by if<cond> and if_icmp<cond>.
const (
	condEq = iota
	condNe
	condLt
	condGe
	condGt
	condLe
)

func (vm *VM) test(cond byte, a, b int32, unary bool) bool {
	if unary && vm.LegacyBranches {
		switch cond {
		case condGe:
			cond = condLe
		case condLe:
			cond = condGe
		}
	}
	switch cond {
	case condEq:
		return a == b
	case condNe:
		return a != b
	case condLt:
		return a < b
	case condGe:
		return a >= b
	case condGt:
		return a > b
	default:
		return a <= b
	}
}

// align skips the padding that puts switch operands on a 4-byte boundary
// relative to the start of the code.
func align(f *Frame) {
	for f.PC%4 != 0 {
		f.ReadU8()
	}
}

func (vm *VM) tableswitch(f *Frame) {
	align(f)
	def := f.ReadI32()
	low, high := f.ReadI32(), f.ReadI32()
	if high < low {
		throw(ErrBadCode, "tableswitch low %d > high %d", low, high)
	}
	n := int64(high) - int64(low) + 1
	if n > int64(len(f.code())-f.PC)/4 {
		throw(ErrBadCode, "tableswitch range %d..%d exceeds code", low, high)
	}
	offsets := make([]int32, n)
	for i := range offsets {
		offsets[i] = f.ReadI32()
	}
	key := f.PopInt()
	if key >= low && key <= high {
		vm.jump(f, int(offsets[int64(key)-int64(low)]))
		return
	}
	vm.jump(f, int(def))
}

func (vm *VM) lookupswitch(f *Frame) {
	align(f)
	def := f.ReadI32()
	n := f.ReadI32()
	if n < 0 {
		throw(ErrBadCode, "lookupswitch with %d pairs", n)
	}
	key := f.PopInt()
	target := def
	for i := int32(0); i < n; i++ {
		match, offset := f.ReadI32(), f.ReadI32()
		if match == key {
			target = offset
		}
	}
	vm.jump(f, int(target))
}

func intOp(op byte, a, b int32) (int32, error) {
	switch op {
	case OpIadd:
		return a + b, nil
	case OpIsub:
		return a - b, nil
	case OpImul:
		return a * b, nil
	case OpIdiv, OpIrem:
		if b == 0 {
			return 0, fault(ErrArithmetic, "/ by zero")
		}
		if op == OpIdiv {
			return a / b, nil
		}
		return a % b, nil
	case OpIshl:
		return a << (b & 0x1f), nil
	case OpIshr:
		return a >> (b & 0x1f), nil
	case OpIushr:
		return int32(uint32(a) >> (b & 0x1f)), nil
	case OpIand:
		return a & b, nil
	case OpIor:
		return a | b, nil
	default:
		return a ^ b, nil
	}
}

func longOp(op byte, a, b int64) (int64, error) {
	switch op {
	case OpLadd:
		return a + b, nil
	case OpLsub:
		return a - b, nil
	case OpLmul:
		return a * b, nil
	case OpLdiv, OpLrem:
		if b == 0 {
			return 0, fault(ErrArithmetic, "/ by zero")
		}
		if op == OpLdiv {
			return a / b, nil
		}
		return a % b, nil
	case OpLshl:
		return a << (b & 0x3f), nil
	case OpLshr:
		return a >> (b & 0x3f), nil
	case OpLushr:
		return int64(uint64(a) >> (b & 0x3f)), nil
	case OpLand:
		return a & b, nil
	case OpLor:
		return a | b, nil
	default:
		return a ^ b, nil
	}
}

func floatOp(op byte, a, b float32) float32 {
	switch op {
	case OpFadd:
		return a + b
	case OpFsub:
		return a - b
	case OpFmul:
		return a * b
	case OpFdiv:
		return a / b
	default:
		return float32(math.Mod(float64(a), float64(b)))
	}
}

func doubleOp(op byte, a, b float64) float64 {
	switch op {
	case OpDadd:
		return a + b
	case OpDsub:
		return a - b
	case OpDmul:
		return a * b
	case OpDdiv:
		return a / b
	default:
		return math.Mod(a, b)
	}
}

// toInt32 and toInt64 convert with Java's rules: NaN is 0 and out of range
// values saturate.
func toInt32(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

func toInt64(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(v)
}

func compare[T int32 | int64](a, b T) int32 {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

// compareFloat implements [fd]cmp[lg]; nanIsGreater selects the g variant.
func compareFloat(a, b float64, nanIsGreater bool) int32 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		if nanIsGreater {
			return 1
		}
		return -1
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

func (vm *VM) dup2x2(f *Frame) {
	v1 := f.Pop()
	v2 := f.Pop()
	switch {
	case v1.Wide() && v2.Wide():
		f.Push(v1)
		f.Push(v2)
		f.Push(v1)
	case v1.Wide():
		v3 := f.Pop()
		f.Push(v1)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)
	default:
		v3 := f.Pop()
		if v3.Wide() {
			f.Push(v2)
			f.Push(v1)
			f.Push(v3)
			f.Push(v2)
			f.Push(v1)
			return
		}
		v4 := f.Pop()
		f.Push(v2)
		f.Push(v1)
		f.Push(v4)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)
	}
}
