package vm

import (
	"strconv"

	"github.com/daimatz/jvmtrace/pkg/descriptor"
)

// LocalVar is a LocalVariableTable entry.
type LocalVar struct {
	Name       string
	Descriptor string
	StartPC    int
	Length     int
	Slot       int
}

type localKey struct {
	pc, slot int
}

// Method is a loaded method. It is immutable after LoadClass.
type Method struct {
	Name       string
	Class      string
	Descriptor string
	Signature  *descriptor.Method
	Static     bool
	MaxStack   int
	MaxLocals  int
	Code       []byte

	// Lines holds the source line of every pc; -1 where none is known.
	Lines      []int
	ParamNames []string

	locals map[localKey]*LocalVar
}

// FullName returns "Class.name(desc)ret".
func (m *Method) FullName() string {
	return m.Class + "." + m.Name + m.Descriptor
}

// ReturnType returns the Java spelling of the return type.
func (m *Method) ReturnType() string {
	return m.Signature.Return.String()
}

// Line returns the source line for pc, or -1.
func (m *Method) Line(pc int) int {
	if pc < 0 || pc >= len(m.Lines) {
		return -1
	}
	return m.Lines[pc]
}

// Local returns the variable occupying slot at pc, if the method carries a
// LocalVariableTable entry for it.
func (m *Method) Local(pc, slot int) (*LocalVar, bool) {
	lv, ok := m.locals[localKey{pc, slot}]
	return lv, ok
}

// ParamSlots returns the first local slot of every declared parameter.
func (m *Method) ParamSlots() []int {
	slots := make([]int, len(m.Signature.Params))
	slot := 0
	if !m.Static {
		slot = 1
	}
	for i, p := range m.Signature.Params {
		slots[i] = slot
		slot += descriptor.SlotWidth(p)
	}
	return slots
}

func (m *Method) paramNames() []string {
	names := make([]string, len(m.Signature.Params))
	for i, slot := range m.ParamSlots() {
		if lv, ok := m.Local(0, slot); ok {
			names[i] = lv.Name
		} else {
			names[i] = "arg" + strconv.Itoa(i)
		}
	}
	return names
}

// Field is a declared field.
type Field struct {
	Name   string
	Type   descriptor.Descriptor
	Static bool
}

type methodKey struct {
	name, desc string
}

// Class is the single class a VM executes.
type Class struct {
	Name  string
	Super string
	Pool  *ConstantPool

	// Fields and Methods are in declaration order.
	Fields  []*Field
	Methods []*Method

	fields  map[string]*Field
	methods map[methodKey]*Method
}

func newClass(name, super string, pool *ConstantPool) *Class {
	return &Class{
		Name:    name,
		Super:   super,
		Pool:    pool,
		fields:  make(map[string]*Field),
		methods: make(map[methodKey]*Method),
	}
}

func (c *Class) addField(f *Field) {
	c.Fields = append(c.Fields, f)
	c.fields[f.Name] = f
}

func (c *Class) addMethod(m *Method) {
	c.Methods = append(c.Methods, m)
	c.methods[methodKey{m.Name, m.Descriptor}] = m
}

// Method looks a method up by name and descriptor.
func (c *Class) Method(name, desc string) *Method {
	return c.methods[methodKey{name, desc}]
}

// MethodByName returns the first declared method called name. Entry points
// are addressed this way; bytecode always carries a full descriptor.
func (c *Class) MethodByName(name string) *Method {
	for _, m := range c.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func (c *Class) Field(name string) *Field {
	return c.fields[name]
}

// FieldNames returns the declared field names in order.
func (c *Class) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// NewInstance returns an object with one null entry per declared field. It
// is not placed on any heap.
func (c *Class) NewInstance() *Object {
	obj := &Object{Class: c, Fields: make(map[string]Value, len(c.Fields))}
	for _, f := range c.Fields {
		obj.Fields[f.Name] = Null
	}
	return obj
}
