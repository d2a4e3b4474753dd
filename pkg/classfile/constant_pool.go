package classfile

import (
	"fmt"
	"math"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
)

// parseConstantPool reads constant_pool_count-1 entries.
// The returned slice is 1-indexed: index 0 is nil.
func parseConstantPool(r *reader, count uint16) ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		tag, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("reading constant pool tag at index %d: %w", i, err)
		}

		entry, wide, err := parseConstant(r, tag)
		if err != nil {
			return nil, fmt.Errorf("reading constant pool entry %d (tag=%d): %w", i, tag, err)
		}
		pool[i] = entry
		if wide {
			i++ // long and double take 2 slots
		}
	}

	return pool, nil
}

func parseConstant(r *reader, tag uint8) (ConstantPoolEntry, bool, error) {
	switch tag {
	case TagUtf8:
		length, err := r.u16()
		if err != nil {
			return nil, false, err
		}
		data, err := r.bytes(int(length))
		if err != nil {
			return nil, false, err
		}
		return &ConstantUtf8{Value: string(data)}, false, nil

	case TagInteger:
		v, err := r.u32()
		return &ConstantInteger{Value: int32(v)}, false, err

	case TagFloat:
		v, err := r.u32()
		return &ConstantFloat{Value: math.Float32frombits(v)}, false, err

	case TagLong:
		v, err := r.u64()
		return &ConstantLong{Value: int64(v)}, true, err

	case TagDouble:
		v, err := r.u64()
		return &ConstantDouble{Value: math.Float64frombits(v)}, true, err

	case TagClass:
		v, err := r.u16()
		return &ConstantClass{NameIndex: v}, false, err

	case TagString:
		v, err := r.u16()
		return &ConstantString{StringIndex: v}, false, err

	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		classIndex, natIndex, err := r.u16pair()
		if err != nil {
			return nil, false, err
		}
		switch tag {
		case TagFieldref:
			return &ConstantFieldref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}, false, nil
		case TagMethodref:
			return &ConstantMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}, false, nil
		default:
			return &ConstantInterfaceMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}, false, nil
		}

	case TagNameAndType:
		nameIndex, descIndex, err := r.u16pair()
		return &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descIndex}, false, err

	case TagMethodHandle:
		// reference_kind (u1) + reference_index (u2)
		_, err := r.bytes(3)
		return &ConstantPlaceholder{tag: tag}, false, err

	case TagMethodType:
		// descriptor_index (u2)
		_, err := r.bytes(2)
		return &ConstantPlaceholder{tag: tag}, false, err

	case TagDynamic, TagInvokeDynamic:
		// bootstrap_method_attr_index (u2) + name_and_type_index (u2)
		_, err := r.bytes(4)
		return &ConstantPlaceholder{tag: tag}, false, err

	default:
		return nil, false, fmt.Errorf("unknown constant pool tag %d", tag)
	}
}

// ConstantPlaceholder stands in for entries that are skipped rather than
// decoded (method handles, method types, dynamic constants).
type ConstantPlaceholder struct {
	tag uint8
}

func (c *ConstantPlaceholder) Tag() uint8 { return c.tag }

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", index)
	}
	utf8, ok := pool[index].(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", index, pool[index].Tag())
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	if int(classIndex) >= len(pool) || pool[classIndex] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", classIndex)
	}
	class, ok := pool[classIndex].(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class", classIndex)
	}
	return GetUtf8(pool, class.NameIndex)
}
