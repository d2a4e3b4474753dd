package classfile

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// classWriter assembles class-file bytes for parser tests.
type classWriter struct {
	pool  bytes.Buffer
	count uint16
	utf8  map[string]uint16
}

func newClassWriter() *classWriter {
	return &classWriter{count: 1, utf8: map[string]uint16{}}
}

func (w *classWriter) entry(tag uint8, payload ...any) uint16 {
	w.pool.WriteByte(tag)
	for _, p := range payload {
		binary.Write(&w.pool, binary.BigEndian, p)
	}
	idx := w.count
	w.count++
	if tag == TagLong || tag == TagDouble {
		w.count++
	}
	return idx
}

func (w *classWriter) str(s string) uint16 {
	if idx, ok := w.utf8[s]; ok {
		return idx
	}
	idx := w.entry(TagUtf8, uint16(len(s)), []byte(s))
	w.utf8[s] = idx
	return idx
}

func (w *classWriter) class(name string) uint16 {
	return w.entry(TagClass, w.str(name))
}

func u16(v int) []byte { return binary.BigEndian.AppendUint16(nil, uint16(v)) }
func u32(v int) []byte { return binary.BigEndian.AppendUint32(nil, uint32(v)) }
func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func (w *classWriter) attr(name string, body []byte) []byte {
	return cat(u16(int(w.str(name))), u32(len(body)), body)
}

// buildAddClass assembles:
//
//	class Add { int total; static int add(int a, int b) { return a + b; } }
func buildAddClass(t *testing.T) []byte {
	t.Helper()
	w := newClassWriter()
	this := w.class("Add")
	super := w.class("java/lang/Object")
	fieldName, fieldDesc := w.str("total"), w.str("I")
	methodName, methodDesc := w.str("add"), w.str("(II)I")
	w.entry(TagInteger, int32(100000))
	w.entry(TagLong, int64(1)<<40)
	w.entry(TagDouble, math.Float64bits(2.5))
	natIdx := w.entry(TagNameAndType, methodName, methodDesc)
	w.entry(TagMethodref, this, natIdx)
	w.entry(TagMethodHandle, uint8(6), uint16(1))

	code := []byte{0x1A, 0x1B, 0x60, 0xAC} // iload_0 iload_1 iadd ireturn
	lnt := cat(u16(2), u16(0), u16(3), u16(2), u16(4))
	lvt := cat(u16(2),
		u16(0), u16(4), u16(int(w.str("a"))), u16(int(w.str("I"))), u16(0),
		u16(0), u16(4), u16(int(w.str("b"))), u16(int(w.str("I"))), u16(1),
	)
	codeAttr := cat(u16(2), u16(2), u32(len(code)), code, u16(0), u16(2),
		w.attr("LineNumberTable", lnt),
		w.attr("LocalVariableTable", lvt),
	)
	methods := cat(u16(1),
		u16(AccPublic|AccStatic), u16(int(methodName)), u16(int(methodDesc)), u16(1),
		w.attr("Code", codeAttr),
	)
	fields := cat(u16(1), u16(0), u16(int(fieldName)), u16(int(fieldDesc)), u16(0))
	classAttrs := cat(u16(1), w.attr("SourceFile", []byte{0, byte(w.str("Add.java"))}))

	var out bytes.Buffer
	out.Write(u32(classMagic))
	out.Write(cat(u16(0), u16(61)))
	out.Write(u16(int(w.count)))
	out.Write(w.pool.Bytes())
	out.Write(cat(u16(AccPublic|AccSuper), u16(int(this)), u16(int(super)), u16(0)))
	out.Write(fields)
	out.Write(methods)
	out.Write(classAttrs)
	return out.Bytes()
}

func TestParseClassFile(t *testing.T) {
	cf, err := Parse(bytes.NewReader(buildAddClass(t)))
	require.NoError(t, err)

	assert.EqualValues(t, 61, cf.MajorVersion)

	className, err := cf.ClassName()
	require.NoError(t, err)
	assert.Equal(t, "Add", className)
	assert.Equal(t, "java/lang/Object", cf.SuperClassName())

	require.Len(t, cf.Fields, 1)
	assert.Equal(t, "total", cf.Fields[0].Name)
	assert.Equal(t, "I", cf.Fields[0].Descriptor)
	assert.NotZero(t, cf.Fields[0].NameIndex)

	add := cf.FindMethod("add", "(II)I")
	require.NotNil(t, add)
	assert.True(t, add.IsStatic())
	require.NotNil(t, add.Code)
	assert.Equal(t, []byte{0x1A, 0x1B, 0x60, 0xAC}, add.Code.Code)
	assert.EqualValues(t, 2, add.Code.MaxStack)
	assert.EqualValues(t, 2, add.Code.MaxLocals)

	assert.Equal(t, []LineNumber{{StartPC: 0, Line: 3}, {StartPC: 2, Line: 4}}, add.Code.LineNumbers)
	require.Len(t, add.Code.LocalVariables, 2)
	assert.Equal(t, LocalVariable{StartPC: 0, Length: 4, Index: 1, Name: "b", Descriptor: "I"}, add.Code.LocalVariables[1])
}

func TestParseWideConstants(t *testing.T) {
	cf, err := Parse(bytes.NewReader(buildAddClass(t)))
	require.NoError(t, err)

	var (
		longs, doubles, placeholders int
		gapAfterWide                 bool
	)
	for i, e := range cf.ConstantPool {
		switch c := e.(type) {
		case *ConstantLong:
			longs++
			assert.Equal(t, int64(1)<<40, c.Value)
			gapAfterWide = cf.ConstantPool[i+1] == nil
		case *ConstantDouble:
			doubles++
			assert.Equal(t, 2.5, c.Value)
		case *ConstantPlaceholder:
			placeholders++
			assert.EqualValues(t, TagMethodHandle, c.Tag())
		}
	}
	assert.Equal(t, 1, longs)
	assert.Equal(t, 1, doubles)
	assert.Equal(t, 1, placeholders)
	assert.True(t, gapAfterWide, "long must occupy two pool slots")

	raw := cf.RawPool()
	assert.Len(t, raw, len(cf.ConstantPool)-1)
	assert.Same(t, cf.ConstantPool[1], raw[0])
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Add.class")
	require.NoError(t, os.WriteFile(path, buildAddClass(t), 0o644))

	cf, err := ParseFile(path)
	require.NoError(t, err)
	assert.NotNil(t, cf.FindMethod("add", "(II)I"))
	assert.Nil(t, cf.FindMethod("add", "(JJ)J"))
}

func TestParseInvalidMagic(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	assert.ErrorContains(t, err, "invalid magic number")
}

func TestParseTruncated(t *testing.T) {
	data := buildAddClass(t)
	for _, n := range []int{3, 9, len(data) / 2, len(data) - 1} {
		_, err := Parse(bytes.NewReader(data[:n]))
		assert.Error(t, err, "truncated at %d bytes", n)
	}
}
