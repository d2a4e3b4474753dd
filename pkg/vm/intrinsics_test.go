package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/jvmtrace/pkg/native"
	"github.com/daimatz/jvmtrace/pkg/trace"
)

func TestMathIntrinsics(t *testing.T) {
	b := newClassBuilder("M")
	minII := b.methodRef("java/lang/Math", "min", "(II)I")
	maxJJ := b.methodRef("java/lang/Math", "max", "(JJ)J")
	absI := b.methodRef("java/lang/Math", "abs", "(I)I")
	sqrt := b.methodRef("java/lang/Math", "sqrt", "(D)D")
	pow := b.methodRef("java/lang/Math", "pow", "(DD)D")
	b.static("minInt", "(II)I", 2, 2, bytecode(OpIload0, OpIload1, op16(OpInvokestatic, minII), OpIreturn))
	b.static("maxLong", "(JJ)J", 4, 4, bytecode(OpLload0, OpLload2, op16(OpInvokestatic, maxJJ), OpLreturn))
	b.static("absInt", "(I)I", 1, 1, bytecode(OpIload0, op16(OpInvokestatic, absI), OpIreturn))
	b.static("hyp", "(DD)D", 6, 4, bytecode(
		OpDload0, OpDload0, OpDmul,
		OpDload2, OpDconst1, OpDconst1, OpDadd, op16(OpInvokestatic, pow),
		OpDadd, op16(OpInvokestatic, sqrt), OpDreturn,
	))
	v, rec, _ := newTestVM(t, b)

	assert.Equal(t, Int(-3), invoke(t, v, "minInt", Int(-3), Int(4)))
	assert.Equal(t, Long(1<<33), invoke(t, v, "maxLong", Long(1<<33), Long(5)))
	assert.Equal(t, Int(9), invoke(t, v, "absInt", Int(-9)))
	assert.Equal(t, Double(5), invoke(t, v, "hyp", Double(3), Double(4)))

	// Intrinsic calls are not traced.
	assert.Equal(t, 4, rec.Count(trace.EventCall))
}

func TestStringIntrinsics(t *testing.T) {
	b := newClassBuilder("S")
	s := b.str("héllo😀")
	length := b.methodRef("java/lang/String", "length", "()I")
	charAt := b.methodRef("java/lang/String", "charAt", "(I)C")
	b.static("len", "()I", 1, 0, bytecode(op16(OpLdcW, s), op16(OpInvokevirtual, length), OpIreturn))
	b.static("at", "(I)I", 2, 1, bytecode(op16(OpLdcW, s), OpIload0, op16(OpInvokevirtual, charAt), OpIreturn))
	b.static("nullLen", "()I", 1, 0, bytecode(OpAconstNull, op16(OpInvokevirtual, length), OpIreturn))
	v, _, _ := newTestVM(t, b)

	assert.Equal(t, Int(7), invoke(t, v, "len"))
	assert.Equal(t, Int('é'), invoke(t, v, "at", Int(1)))
	assert.Equal(t, Int(0xD83D), invoke(t, v, "at", Int(5)))

	v.Push(Int(7))
	assert.ErrorIs(t, v.InvokeStatic("at"), ErrHeapAccess)
	assert.ErrorIs(t, v.InvokeStatic("nullLen"), ErrHeapAccess)
}

func TestHashMapIntrinsics(t *testing.T) {
	b := newClassBuilder("H")
	hashMap := b.class("java/util/HashMap")
	initMap := b.methodRef("java/util/HashMap", "<init>", "()V")
	put := b.methodRef("java/util/HashMap", "put", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;")
	get := b.methodRef("java/util/HashMap", "get", "(Ljava/lang/Object;)Ljava/lang/Object;")
	size := b.methodRef("java/util/HashMap", "size", "()I")
	valueOf := b.methodRef("java/lang/Integer", "valueOf", "(I)Ljava/lang/Integer;")
	intValue := b.methodRef("java/lang/Integer", "intValue", "()I")
	b.static("run", "()I", 4, 1, bytecode(
		op16(OpNew, hashMap), OpDup, op16(OpInvokespecial, initMap), OpAstore0,
		OpAload0, OpIconst1, op16(OpInvokestatic, valueOf), OpIconst2, op16(OpInvokestatic, valueOf),
		op16(OpInvokevirtual, put), OpPop,
		OpAload0, OpIconst1, op16(OpInvokestatic, valueOf), op16(OpInvokevirtual, get),
		op16(OpInvokevirtual, intValue),
		OpAload0, op16(OpInvokevirtual, size),
		OpIadd,
		OpIreturn,
	))
	v, rec, _ := newTestVM(t, b)

	assert.Equal(t, Int(3), invoke(t, v, "run"))

	m, err := hostObject[*native.HashMap](v, Ref(1))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, "java.util.HashMap@1", v.Display(Ref(1)))
	assert.Equal(t, "2", v.Display(Ref(3)))

	assigns := entriesOf(rec, trace.EventAssign)
	require.Len(t, assigns, 1)
	assert.Equal(t, "java.util.HashMap@1", assigns[0].EventData.(trace.AssignData).NewValue)
}

func TestCustomIntrinsic(t *testing.T) {
	b := newClassBuilder("C")
	nano := b.methodRef("java/lang/System", "nanoTime", "()J")
	b.static("now", "()J", 2, 0, bytecode(op16(OpInvokestatic, nano), OpLreturn))
	v, _, _ := newTestVM(t, b)

	assert.ErrorIs(t, v.InvokeStatic("now"), ErrNotImplemented)

	v.Intrinsics.Register("java/lang/System", "nanoTime", "()J", func(*Invocation) (Value, error) {
		return Long(42), nil
	})
	assert.Equal(t, Long(42), invoke(t, v, "now"))
}

func TestUnknownClassFaults(t *testing.T) {
	b := newClassBuilder("U")
	other := b.methodRef("other/Helper", "help", "()V")
	otherClass := b.class("other/Helper")
	b.static("call", "()V", 1, 0, bytecode(op16(OpInvokestatic, other), OpReturn))
	b.static("alloc", "()V", 1, 0, bytecode(op16(OpNew, otherClass), OpPop, OpReturn))
	v, _, _ := newTestVM(t, b)

	assert.ErrorIs(t, v.InvokeStatic("call"), ErrNotImplemented)
	assert.ErrorIs(t, v.InvokeStatic("alloc"), ErrNotImplemented)
}

func TestIntrinsicsLookup(t *testing.T) {
	r := NewIntrinsics()
	r.Register("a/B", "f", "", func(*Invocation) (Value, error) { return Int(1), nil })
	r.Register("a/B", "f", "(I)I", func(*Invocation) (Value, error) { return Int(2), nil })

	fn, ok := r.Lookup("a/B", "f", "(I)I")
	require.True(t, ok)
	got, err := fn(nil)
	require.NoError(t, err)
	assert.Equal(t, Int(2), got)

	fn, ok = r.Lookup("a/B", "f", "(J)V")
	require.True(t, ok)
	got, err = fn(nil)
	require.NoError(t, err)
	assert.Equal(t, Int(1), got)

	_, ok = r.Lookup("a/B", "g", "()V")
	assert.False(t, ok)

	assert.True(t, IsLibraryClass("java/lang/Math"))
	assert.False(t, IsLibraryClass("javafoo/Bar"))
}
