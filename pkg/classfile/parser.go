package classfile

import (
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a .class file from the given reader and returns a ClassFile.
func Parse(in io.Reader) (*ClassFile, error) {
	r := &reader{r: in}
	cf := &ClassFile{}

	magic, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("reading magic number: %w", err)
	}
	if magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	if cf.MinorVersion, cf.MajorVersion, err = r.u16pair(); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}

	cpCount, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("reading constant pool count: %w", err)
	}
	if cf.ConstantPool, err = parseConstantPool(r, cpCount); err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}

	if cf.AccessFlags, err = r.u16(); err != nil {
		return nil, fmt.Errorf("reading access flags: %w", err)
	}
	if cf.ThisClass, cf.SuperClass, err = r.u16pair(); err != nil {
		return nil, fmt.Errorf("reading this_class/super_class: %w", err)
	}

	interfacesCount, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("reading interfaces count: %w", err)
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := range cf.Interfaces {
		if cf.Interfaces[i], err = r.u16(); err != nil {
			return nil, fmt.Errorf("reading interface %d: %w", i, err)
		}
	}

	fieldsCount, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("reading fields count: %w", err)
	}
	cf.Fields = make([]FieldInfo, fieldsCount)
	for i := range cf.Fields {
		m, err := parseMember(r, cf.ConstantPool)
		if err != nil {
			return nil, fmt.Errorf("parsing field %d: %w", i, err)
		}
		cf.Fields[i] = FieldInfo(m)
	}

	methodsCount, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("reading methods count: %w", err)
	}
	cf.Methods = make([]MethodInfo, methodsCount)
	for i := range cf.Methods {
		m, err := parseMember(r, cf.ConstantPool)
		if err != nil {
			return nil, fmt.Errorf("parsing method %d: %w", i, err)
		}
		method := MethodInfo{
			AccessFlags:     m.AccessFlags,
			NameIndex:       m.NameIndex,
			DescriptorIndex: m.DescriptorIndex,
			Name:            m.Name,
			Descriptor:      m.Descriptor,
			Attributes:      m.Attributes,
		}
		for _, attr := range m.Attributes {
			if attr.Name == "Code" {
				code, err := parseCodeAttribute(attr.Data, cf.ConstantPool)
				if err != nil {
					return nil, fmt.Errorf("parsing Code attribute for method %s: %w", m.Name, err)
				}
				method.Code = code
				break
			}
		}
		cf.Methods[i] = method
	}

	// Class-level attributes are read and discarded.
	if _, err := parseAttributeInfos(r, cf.ConstantPool); err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	return cf, nil
}

// member is the layout shared by field_info and method_info.
type member struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Name            string
	Descriptor      string
	Attributes      []AttributeInfo
}

func parseMember(r *reader, pool []ConstantPoolEntry) (member, error) {
	var m member
	var err error
	if m.AccessFlags, err = r.u16(); err != nil {
		return m, fmt.Errorf("reading access flags: %w", err)
	}
	if m.NameIndex, m.DescriptorIndex, err = r.u16pair(); err != nil {
		return m, fmt.Errorf("reading name/descriptor index: %w", err)
	}
	if m.Name, err = GetUtf8(pool, m.NameIndex); err != nil {
		return m, fmt.Errorf("resolving name: %w", err)
	}
	if m.Descriptor, err = GetUtf8(pool, m.DescriptorIndex); err != nil {
		return m, fmt.Errorf("resolving descriptor: %w", err)
	}
	if m.Attributes, err = parseAttributeInfos(r, pool); err != nil {
		return m, fmt.Errorf("parsing attributes of %s: %w", m.Name, err)
	}
	return m, nil
}

func parseAttributeInfos(r *reader, pool []ConstantPoolEntry) ([]AttributeInfo, error) {
	count, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("reading attributes count: %w", err)
	}
	attrs := make([]AttributeInfo, count)
	for i := range attrs {
		nameIndex, err := r.u16()
		if err != nil {
			return nil, fmt.Errorf("reading attribute %d name index: %w", i, err)
		}
		length, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("reading attribute %d length: %w", i, err)
		}
		data, err := r.bytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("reading attribute %d data: %w", i, err)
		}
		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}
		attrs[i] = AttributeInfo{Name: name, Data: data}
	}
	return attrs, nil
}

func parseCodeAttribute(data []byte, pool []ConstantPoolEntry) (*CodeAttribute, error) {
	s := &sliceReader{data: data, name: "Code attribute"}
	code := &CodeAttribute{}
	var err error

	if code.MaxStack, err = s.u16(); err != nil {
		return nil, err
	}
	if code.MaxLocals, err = s.u16(); err != nil {
		return nil, err
	}
	codeLength, err := s.u32()
	if err != nil {
		return nil, err
	}
	raw, err := s.bytes(int(codeLength))
	if err != nil {
		return nil, err
	}
	code.Code = append([]byte(nil), raw...)

	exTableLen, err := s.u16()
	if err != nil {
		return nil, err
	}
	code.ExceptionHandlers = make([]ExceptionHandler, exTableLen)
	for i := range code.ExceptionHandlers {
		h := &code.ExceptionHandlers[i]
		for _, dst := range []*uint16{&h.StartPC, &h.EndPC, &h.HandlerPC, &h.CatchType} {
			if *dst, err = s.u16(); err != nil {
				return nil, err
			}
		}
	}

	attrCount, err := s.u16()
	if err != nil {
		return nil, err
	}
	for i := uint16(0); i < attrCount; i++ {
		nameIndex, err := s.u16()
		if err != nil {
			return nil, err
		}
		length, err := s.u32()
		if err != nil {
			return nil, err
		}
		body, err := s.bytes(int(length))
		if err != nil {
			return nil, err
		}
		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving code attribute %d name: %w", i, err)
		}
		code.Attributes = append(code.Attributes, AttributeInfo{Name: name, Data: body})

		switch name {
		case "LineNumberTable":
			lines, err := parseLineNumberTable(body)
			if err != nil {
				return nil, err
			}
			code.LineNumbers = append(code.LineNumbers, lines...)
		case "LocalVariableTable":
			vars, err := parseLocalVariableTable(body, pool)
			if err != nil {
				return nil, err
			}
			code.LocalVariables = append(code.LocalVariables, vars...)
		}
	}

	return code, nil
}

func parseLineNumberTable(data []byte) ([]LineNumber, error) {
	s := &sliceReader{data: data, name: "LineNumberTable"}
	n, err := s.u16()
	if err != nil {
		return nil, err
	}
	lines := make([]LineNumber, n)
	for i := range lines {
		if lines[i].StartPC, err = s.u16(); err != nil {
			return nil, err
		}
		if lines[i].Line, err = s.u16(); err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func parseLocalVariableTable(data []byte, pool []ConstantPoolEntry) ([]LocalVariable, error) {
	s := &sliceReader{data: data, name: "LocalVariableTable"}
	n, err := s.u16()
	if err != nil {
		return nil, err
	}
	vars := make([]LocalVariable, n)
	for i := range vars {
		v := &vars[i]
		var nameIndex, descIndex uint16
		for _, dst := range []*uint16{&v.StartPC, &v.Length, &nameIndex, &descIndex, &v.Index} {
			if *dst, err = s.u16(); err != nil {
				return nil, err
			}
		}
		if v.Name, err = GetUtf8(pool, nameIndex); err != nil {
			return nil, fmt.Errorf("LocalVariableTable entry %d name: %w", i, err)
		}
		if v.Descriptor, err = GetUtf8(pool, descIndex); err != nil {
			return nil, fmt.Errorf("LocalVariableTable entry %d descriptor: %w", i, err)
		}
	}
	return vars, nil
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}
