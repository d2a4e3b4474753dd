package vm

import (
	"github.com/daimatz/jvmtrace/pkg/descriptor"
)

// Object is an instance of the loaded class.
type Object struct {
	Class  *Class
	Fields map[string]Value
}

// Array is a fixed-length array. Elements start out null; typed loads read
// a null element as the element type's zero value.
type Array struct {
	Elem     descriptor.Descriptor
	Elements []Value
}

// Load returns element i with nulls replaced by the element type's zero.
func (a *Array) Load(i int) Value {
	v := a.Elements[i]
	if v.IsNull() {
		return ZeroValue(a.Elem)
	}
	return v
}

// Heap is an append-only store. An entry's id is its insertion index and
// never changes.
type Heap struct {
	entries []any
}

func NewHeap() *Heap {
	return &Heap{}
}

// Alloc stores v and returns its id. v is an *Object, an *Array, or a host
// object created by an intrinsic.
func (h *Heap) Alloc(v any) int {
	h.entries = append(h.entries, v)
	return len(h.entries) - 1
}

func (h *Heap) Len() int { return len(h.entries) }

func (h *Heap) Get(id int) (any, error) {
	if id < 0 || id >= len(h.entries) {
		return nil, fault(ErrHeapAccess, "no heap entry %d", id)
	}
	return h.entries[id], nil
}

func (h *Heap) Object(id int) (*Object, error) {
	v, err := h.Get(id)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, fault(ErrHeapAccess, "heap entry %d is %T, not an object", id, v)
	}
	return obj, nil
}

func (h *Heap) Array(id int) (*Array, error) {
	v, err := h.Get(id)
	if err != nil {
		return nil, err
	}
	arr, ok := v.(*Array)
	if !ok {
		return nil, fault(ErrHeapAccess, "heap entry %d is %T, not an array", id, v)
	}
	return arr, nil
}
