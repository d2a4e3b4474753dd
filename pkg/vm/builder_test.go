package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daimatz/jvmtrace/pkg/classfile"
	"github.com/daimatz/jvmtrace/pkg/trace"
)

// classBuilder assembles a classfile.ClassFile in memory so tests can drive
// LoadClass and the interpreter without .class fixtures.
type classBuilder struct {
	name string
	cf   *classfile.ClassFile
}

func newClassBuilder(name string) *classBuilder {
	b := &classBuilder{
		name: name,
		cf:   &classfile.ClassFile{MajorVersion: 52, ConstantPool: []classfile.ConstantPoolEntry{nil}},
	}
	b.cf.ThisClass = b.class(name)
	b.cf.SuperClass = b.class("java/lang/Object")
	return b
}

func (b *classBuilder) add(e classfile.ConstantPoolEntry) uint16 {
	b.cf.ConstantPool = append(b.cf.ConstantPool, e)
	idx := uint16(len(b.cf.ConstantPool) - 1)
	switch e.(type) {
	case *classfile.ConstantLong, *classfile.ConstantDouble:
		b.cf.ConstantPool = append(b.cf.ConstantPool, nil)
	}
	return idx
}

func (b *classBuilder) utf8(s string) uint16 {
	return b.add(&classfile.ConstantUtf8{Value: s})
}

func (b *classBuilder) class(name string) uint16 {
	return b.add(&classfile.ConstantClass{NameIndex: b.utf8(name)})
}

func (b *classBuilder) str(s string) uint16 {
	return b.add(&classfile.ConstantString{StringIndex: b.utf8(s)})
}

func (b *classBuilder) nat(name, desc string) uint16 {
	return b.add(&classfile.ConstantNameAndType{NameIndex: b.utf8(name), DescriptorIndex: b.utf8(desc)})
}

func (b *classBuilder) methodRef(owner, name, desc string) uint16 {
	return b.add(&classfile.ConstantMethodref{ClassIndex: b.class(owner), NameAndTypeIndex: b.nat(name, desc)})
}

func (b *classBuilder) fieldRef(owner, name, desc string) uint16 {
	return b.add(&classfile.ConstantFieldref{ClassIndex: b.class(owner), NameAndTypeIndex: b.nat(name, desc)})
}

func (b *classBuilder) field(name, desc string, flags uint16) {
	b.cf.Fields = append(b.cf.Fields, classfile.FieldInfo{AccessFlags: flags, Name: name, Descriptor: desc})
}

// method declares a method. Code is optional metadata beyond the bytes:
// lines and locals may be nil.
func (b *classBuilder) method(name, desc string, flags uint16, maxStack, maxLocals int, code []byte, lines []classfile.LineNumber, locals ...classfile.LocalVariable) {
	b.cf.Methods = append(b.cf.Methods, classfile.MethodInfo{
		AccessFlags: flags,
		Name:        name,
		Descriptor:  desc,
		Code: &classfile.CodeAttribute{
			MaxStack:       uint16(maxStack),
			MaxLocals:      uint16(maxLocals),
			Code:           code,
			LineNumbers:    lines,
			LocalVariables: locals,
		},
	})
}

// static is method with ACC_PUBLIC|ACC_STATIC.
func (b *classBuilder) static(name, desc string, maxStack, maxLocals int, code []byte, lines ...classfile.LineNumber) {
	b.method(name, desc, classfile.AccPublic|classfile.AccStatic, maxStack, maxLocals, code, lines)
}

func (b *classBuilder) load(t *testing.T) *Class {
	t.Helper()
	c, err := LoadClass(b.cf)
	require.NoError(t, err)
	return c
}

// newTestVM loads b into a VM recording its trace, with console output
// captured and uncolored.
func newTestVM(t *testing.T, b *classBuilder) (*VM, *trace.Recorder, *bytes.Buffer) {
	t.Helper()
	rec := trace.NewRecorder()
	v := NewVM(b.load(t), rec)
	out := &bytes.Buffer{}
	v.Stdout = out
	v.ConsoleColor = nil
	return v, rec, out
}

// invoke pushes args, runs the named static method and pops its result.
func invoke(t *testing.T, v *VM, name string, args ...Value) Value {
	t.Helper()
	for _, a := range args {
		v.Push(a)
	}
	require.NoError(t, v.InvokeStatic(name))
	res, err := v.Pop()
	require.NoError(t, err)
	return res
}

func hi(idx uint16) byte { return byte(idx >> 8) }
func lo(idx uint16) byte { return byte(idx) }

// op16 encodes op followed by a 16-bit operand such as a pool index.
func op16(op byte, idx uint16) []byte { return []byte{op, hi(idx), lo(idx)} }

// bytecode concatenates opcodes, operand bytes and op16 sequences.
func bytecode(parts ...any) []byte {
	var out []byte
	for _, p := range parts {
		switch p := p.(type) {
		case int:
			out = append(out, byte(p))
		case byte:
			out = append(out, p)
		case []byte:
			out = append(out, p...)
		default:
			panic("bytecode: unexpected part")
		}
	}
	return out
}

func entriesOf(rec *trace.Recorder, event string) []trace.Entry {
	var out []trace.Entry
	for _, e := range rec.Entries() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
