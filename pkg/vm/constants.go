package vm

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/daimatz/jvmtrace/pkg/classfile"
	"github.com/daimatz/jvmtrace/pkg/descriptor"
)

// Constant is a resolved constant pool entry.
type Constant interface {
	Tag() uint8
}

type Utf8 struct {
	Text string
}

type ClassRef struct {
	Name      string
	NameIndex uint16
}

// NameAndType carries its descriptor both as text and parsed.
type NameAndType struct {
	Name       string
	Descriptor string
	Type       descriptor.Descriptor
}

// FieldRef and MethodRef are denormalized at load time so dispatch never
// walks the pool or parses a descriptor again.
type FieldRef struct {
	Class       *ClassRef
	NameAndType *NameAndType
	Type        descriptor.Descriptor
}

type MethodRef struct {
	Class       *ClassRef
	NameAndType *NameAndType
	Signature   *descriptor.Method
	Interface   bool
}

type StringRef struct {
	Index uint16
	Text  string
}

type IntConst int32
type FloatConst float32
type LongConst int64
type DoubleConst float64

// Unsupported stands in for method handles, method types and dynamic
// constants. Only an instruction that actually uses one fails.
type Unsupported struct {
	tag uint8
}

func (*Utf8) Tag() uint8 { return classfile.TagUtf8 }
func (*ClassRef) Tag() uint8 { return classfile.TagClass }
func (*NameAndType) Tag() uint8 { return classfile.TagNameAndType }
func (*FieldRef) Tag() uint8 { return classfile.TagFieldref }
func (*StringRef) Tag() uint8 { return classfile.TagString }
func (IntConst) Tag() uint8 { return classfile.TagInteger }
func (FloatConst) Tag() uint8 { return classfile.TagFloat }
func (LongConst) Tag() uint8 { return classfile.TagLong }
func (DoubleConst) Tag() uint8 { return classfile.TagDouble }
func (u *Unsupported) Tag() uint8 { return u.tag }

func (m *MethodRef) Tag() uint8 {
	if m.Interface {
		return classfile.TagInterfaceMethodref
	}
	return classfile.TagMethodref
}

// ConstantPool is 1-based: index 0 and the slot after each long or double
// are empty.
type ConstantPool struct {
	entries []Constant
}

// ResolvePool builds a typed pool from the 0-based raw sequence produced by
// classfile.ClassFile.RawPool. Raw entry k lands at index k+1. Any
// dangling or mistyped reference fails the whole pool.
func ResolvePool(raw []classfile.ConstantPoolEntry) (*ConstantPool, error) {
	r := &poolResolver{
		raw:  raw,
		pool: &ConstantPool{entries: make([]Constant, len(raw)+1)},
	}

	// Leaves first, then entries that reference them.
	for i, e := range raw {
		idx := uint16(i + 1)
		switch c := e.(type) {
		case nil:
		case *classfile.ConstantUtf8:
			r.set(idx, &Utf8{Text: c.Value})
		case *classfile.ConstantInteger:
			r.set(idx, IntConst(c.Value))
		case *classfile.ConstantFloat:
			r.set(idx, FloatConst(c.Value))
		case *classfile.ConstantLong:
			r.set(idx, LongConst(c.Value))
		case *classfile.ConstantDouble:
			r.set(idx, DoubleConst(c.Value))
		case *classfile.ConstantClass, *classfile.ConstantString, *classfile.ConstantNameAndType,
			*classfile.ConstantFieldref, *classfile.ConstantMethodref, *classfile.ConstantInterfaceMethodref:
		default:
			r.set(idx, &Unsupported{tag: e.Tag()})
		}
	}

	for i, e := range raw {
		idx := uint16(i + 1)
		switch c := e.(type) {
		case *classfile.ConstantClass:
			if name, ok := r.utf8(idx, c.NameIndex); ok {
				r.set(idx, &ClassRef{Name: name, NameIndex: c.NameIndex})
			}
		case *classfile.ConstantString:
			if text, ok := r.utf8(idx, c.StringIndex); ok {
				r.set(idx, &StringRef{Index: c.StringIndex, Text: text})
			}
		case *classfile.ConstantNameAndType:
			name, ok1 := r.utf8(idx, c.NameIndex)
			desc, ok2 := r.utf8(idx, c.DescriptorIndex)
			if !ok1 || !ok2 {
				break
			}
			t, err := descriptor.Parse(desc)
			if err != nil {
				r.errs = multierror.Append(r.errs, fmt.Errorf("entry %d: %w", idx, err))
				break
			}
			r.set(idx, &NameAndType{Name: name, Descriptor: desc, Type: t})
		}
	}

	for i, e := range raw {
		idx := uint16(i + 1)
		switch c := e.(type) {
		case *classfile.ConstantFieldref:
			if class, nat, ok := r.member(idx, c.ClassIndex, c.NameAndTypeIndex); ok {
				if t := r.fieldType(idx, nat); t != nil {
					r.set(idx, &FieldRef{Class: class, NameAndType: nat, Type: t})
				}
			}
		case *classfile.ConstantMethodref:
			if class, nat, ok := r.member(idx, c.ClassIndex, c.NameAndTypeIndex); ok {
				if sig := r.signature(idx, nat); sig != nil {
					r.set(idx, &MethodRef{Class: class, NameAndType: nat, Signature: sig})
				}
			}
		case *classfile.ConstantInterfaceMethodref:
			if class, nat, ok := r.member(idx, c.ClassIndex, c.NameAndTypeIndex); ok {
				if sig := r.signature(idx, nat); sig != nil {
					r.set(idx, &MethodRef{Class: class, NameAndType: nat, Signature: sig, Interface: true})
				}
			}
		}
	}

	if err := r.errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: constant pool: %w", ErrLoad, err)
	}
	return r.pool, nil
}

type poolResolver struct {
	raw  []classfile.ConstantPoolEntry
	pool *ConstantPool
	errs *multierror.Error
}

func (r *poolResolver) set(idx uint16, c Constant) { r.pool.entries[idx] = c }

func (r *poolResolver) fail(from uint16, format string, args ...any) {
	r.errs = multierror.Append(r.errs, fmt.Errorf("entry %d: %s", from, fmt.Sprintf(format, args...)))
}

func (r *poolResolver) utf8(from, idx uint16) (string, bool) {
	if idx == 0 || int(idx) > len(r.raw) {
		r.fail(from, "index %d out of range", idx)
		return "", false
	}
	u, ok := r.raw[idx-1].(*classfile.ConstantUtf8)
	if !ok {
		r.fail(from, "index %d is not Utf8", idx)
		return "", false
	}
	return u.Value, true
}

func (r *poolResolver) member(from, classIdx, natIdx uint16) (*ClassRef, *NameAndType, bool) {
	class, ok1 := r.resolved(classIdx).(*ClassRef)
	if !ok1 {
		r.fail(from, "index %d is not a resolvable Class", classIdx)
	}
	nat, ok2 := r.resolved(natIdx).(*NameAndType)
	if !ok2 {
		r.fail(from, "index %d is not a resolvable NameAndType", natIdx)
	}
	return class, nat, ok1 && ok2
}

func (r *poolResolver) fieldType(from uint16, nat *NameAndType) descriptor.Descriptor {
	if _, ok := nat.Type.(*descriptor.Method); ok {
		r.fail(from, "%s: %q is not a field type", nat.Name, nat.Descriptor)
		return nil
	}
	return nat.Type
}

func (r *poolResolver) signature(from uint16, nat *NameAndType) *descriptor.Method {
	sig, ok := nat.Type.(*descriptor.Method)
	if !ok {
		r.fail(from, "%s: %q is not a method descriptor", nat.Name, nat.Descriptor)
		return nil
	}
	return sig
}

func (r *poolResolver) resolved(idx uint16) Constant {
	if idx == 0 || int(idx) >= len(r.pool.entries) {
		return nil
	}
	return r.pool.entries[idx]
}

// Len returns the number of addressable slots, including slot 0.
func (p *ConstantPool) Len() int { return len(p.entries) }

// Get returns the constant at a 1-based index.
func (p *ConstantPool) Get(idx uint16) (Constant, error) {
	if idx == 0 || int(idx) >= len(p.entries) || p.entries[idx] == nil {
		return nil, fault(ErrLoad, "invalid constant pool index %d", idx)
	}
	return p.entries[idx], nil
}

func (p *ConstantPool) Utf8(idx uint16) (string, error) {
	c, err := p.Get(idx)
	if err != nil {
		return "", err
	}
	u, ok := c.(*Utf8)
	if !ok {
		return "", mismatch(idx, c, "Utf8")
	}
	return u.Text, nil
}

func (p *ConstantPool) Class(idx uint16) (*ClassRef, error) {
	c, err := p.Get(idx)
	if err != nil {
		return nil, err
	}
	cr, ok := c.(*ClassRef)
	if !ok {
		return nil, mismatch(idx, c, "Class")
	}
	return cr, nil
}

func (p *ConstantPool) FieldRef(idx uint16) (*FieldRef, error) {
	c, err := p.Get(idx)
	if err != nil {
		return nil, err
	}
	fr, ok := c.(*FieldRef)
	if !ok {
		return nil, mismatch(idx, c, "Fieldref")
	}
	return fr, nil
}

func (p *ConstantPool) MethodRef(idx uint16) (*MethodRef, error) {
	c, err := p.Get(idx)
	if err != nil {
		return nil, err
	}
	mr, ok := c.(*MethodRef)
	if !ok {
		return nil, mismatch(idx, c, "Methodref")
	}
	return mr, nil
}

// Loadable returns the value ldc, ldc_w or ldc2_w pushes for idx.
func (p *ConstantPool) Loadable(idx uint16) (Value, error) {
	c, err := p.Get(idx)
	if err != nil {
		return Null, err
	}
	switch c := c.(type) {
	case IntConst:
		return Int(int32(c)), nil
	case FloatConst:
		return Float(float32(c)), nil
	case LongConst:
		return Long(int64(c)), nil
	case DoubleConst:
		return Double(float64(c)), nil
	case *StringRef:
		return String(c.Text), nil
	case *ClassRef, *Unsupported:
		return Null, fault(ErrNotImplemented, "loading constant %d (tag %d)", idx, c.Tag())
	}
	return Null, mismatch(idx, c, "loadable constant")
}

func mismatch(idx uint16, c Constant, want string) error {
	return fault(ErrLoad, "constant pool index %d has tag %d, want %s", idx, c.Tag(), want)
}
