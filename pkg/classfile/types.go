package classfile

// Access flags consumed by the loader.
const (
	AccPublic = 0x0001
	AccStatic = 0x0008
	AccSuper  = 0x0020
)

// ClassFile is the decoded form of one .class file. ConstantPool keeps the
// JVM's 1-based numbering: index 0 and the slot after every Long or Double
// are nil.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool []ConstantPoolEntry
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []FieldInfo
	Methods      []MethodInfo
}

// RawPool returns the pool without the reserved slot 0, so entry k of the
// result is pool index k+1.
func (cf *ClassFile) RawPool() []ConstantPoolEntry {
	if len(cf.ConstantPool) == 0 {
		return nil
	}
	return cf.ConstantPool[1:]
}

// SuperClassName is "" for java/lang/Object or an unreadable super_class.
func (cf *ClassFile) SuperClassName() string {
	if cf.SuperClass == 0 {
		return ""
	}
	if name, err := GetClassName(cf.ConstantPool, cf.SuperClass); err == nil {
		return name
	}
	return ""
}

// ConstantPoolEntry is one cp_info structure.
type ConstantPoolEntry interface {
	Tag() uint8
}

type (
	ConstantUtf8    struct{ Value string }
	ConstantInteger struct{ Value int32 }
	ConstantFloat   struct{ Value float32 }
	ConstantLong    struct{ Value int64 }
	ConstantDouble  struct{ Value float64 }

	// ConstantClass points at the Utf8 internal name (pkg/Name).
	ConstantClass struct{ NameIndex uint16 }

	// ConstantString points at the Utf8 holding the literal.
	ConstantString struct{ StringIndex uint16 }

	ConstantFieldref struct {
		ClassIndex       uint16
		NameAndTypeIndex uint16
	}
	ConstantMethodref struct {
		ClassIndex       uint16
		NameAndTypeIndex uint16
	}
	ConstantInterfaceMethodref struct {
		ClassIndex       uint16
		NameAndTypeIndex uint16
	}

	ConstantNameAndType struct {
		NameIndex       uint16
		DescriptorIndex uint16
	}
)

func (*ConstantUtf8) Tag() uint8 { return TagUtf8 }
func (*ConstantInteger) Tag() uint8 { return TagInteger }
func (*ConstantFloat) Tag() uint8 { return TagFloat }
func (*ConstantLong) Tag() uint8 { return TagLong }
func (*ConstantDouble) Tag() uint8 { return TagDouble }
func (*ConstantClass) Tag() uint8 { return TagClass }
func (*ConstantString) Tag() uint8 { return TagString }
func (*ConstantFieldref) Tag() uint8 { return TagFieldref }
func (*ConstantMethodref) Tag() uint8 { return TagMethodref }
func (*ConstantInterfaceMethodref) Tag() uint8 { return TagInterfaceMethodref }
func (*ConstantNameAndType) Tag() uint8 { return TagNameAndType }

// MethodInfo is a method_info with its name and descriptor already
// resolved. Code is nil for abstract and native methods.
type MethodInfo struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Name            string
	Descriptor      string
	Attributes      []AttributeInfo
	Code            *CodeAttribute
}

func (m *MethodInfo) IsStatic() bool { return m.AccessFlags&AccStatic != 0 }

// FieldInfo is a field_info with its name and descriptor resolved.
type FieldInfo struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Name            string
	Descriptor      string
	Attributes      []AttributeInfo
}

// AttributeInfo is an attribute the parser keeps undecoded.
type AttributeInfo struct {
	Name string
	Data []byte
}

type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// LineNumber is one LineNumberTable row. Line holds from StartPC up to the
// next row's StartPC.
type LineNumber struct {
	StartPC uint16
	Line    uint16
}

// LocalVariable is one LocalVariableTable row, live for pcs in
// [StartPC, StartPC+Length).
type LocalVariable struct {
	StartPC    uint16
	Length     uint16
	Index      uint16
	Name       string
	Descriptor string
}

// CodeAttribute is a decoded Code attribute. Nested attributes are kept
// raw in Attributes; LineNumbers and LocalVariables are also decoded.
type CodeAttribute struct {
	MaxStack          uint16
	MaxLocals         uint16
	Code              []byte
	ExceptionHandlers []ExceptionHandler
	Attributes        []AttributeInfo
	LineNumbers       []LineNumber
	LocalVariables    []LocalVariable
}
