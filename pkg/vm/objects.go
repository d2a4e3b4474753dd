package vm

import (
	"github.com/daimatz/jvmtrace/pkg/descriptor"
)

func classDescriptor(name string) descriptor.Descriptor {
	if len(name) > 0 && name[0] == '[' {
		if d, err := descriptor.Parse(name); err == nil {
			return d
		}
	}
	return &descriptor.Class{Name: name}
}

func (vm *VM) popArray(f *Frame) (*Array, int, error) {
	ref := f.PopReference()
	if ref.IsNull() {
		return nil, 0, fault(ErrHeapAccess, "null array reference")
	}
	if ref.Kind != KindRef {
		return nil, 0, fault(ErrType, "expected array, got %s", ref.Kind)
	}
	arr, err := vm.Heap.Array(ref.AsRef())
	if err != nil {
		return nil, 0, err
	}
	return arr, ref.AsRef(), nil
}

func checkIndex(arr *Array, i int32) error {
	if i < 0 || int(i) >= len(arr.Elements) {
		return fault(ErrHeapAccess, "index %d out of bounds for length %d", i, len(arr.Elements))
	}
	return nil
}

func (vm *VM) newArray(f *Frame, elem descriptor.Descriptor) error {
	n := f.PopInt()
	if n < 0 {
		return fault(ErrHeapAccess, "negative array size %d", n)
	}
	id := vm.Heap.Alloc(&Array{Elem: elem, Elements: make([]Value, n)})
	f.Push(Ref(id))
	return nil
}

func (vm *VM) arrayLoad(f *Frame) error {
	i := f.PopInt()
	arr, _, err := vm.popArray(f)
	if err != nil {
		return err
	}
	if err := checkIndex(arr, i); err != nil {
		return err
	}
	f.Push(arr.Load(int(i)))
	return nil
}

// arrayStore handles [ilfdabcs]astore. Narrow integer stores truncate as
// the JVM does; the value must match the opcode's family.
func (vm *VM) arrayStore(f *Frame, op byte) error {
	var v Value
	switch op {
	case OpLastore:
		v = Long(f.PopLong())
	case OpFastore:
		v = Float(f.PopFloat())
	case OpDastore:
		v = Double(f.PopDouble())
	case OpAastore:
		v = f.PopReference()
	default:
		v = Int(f.PopInt())
	}
	i := f.PopInt()
	arr, id, err := vm.popArray(f)
	if err != nil {
		return err
	}
	if err := checkIndex(arr, i); err != nil {
		return err
	}

	switch op {
	case OpBastore:
		if arr.Elem == descriptor.Boolean {
			v = Int(v.AsInt() & 1)
		} else {
			v = Int(int32(int8(v.AsInt())))
		}
	case OpCastore:
		v = Int(int32(uint16(v.AsInt())))
	case OpSastore:
		v = Int(int32(int16(v.AsInt())))
	}
	if !storable(arr.Elem, v) {
		return fault(ErrType, "cannot store %s in %s[]", v.Kind, arr.Elem)
	}

	old := arr.Elements[i]
	arr.Elements[i] = v
	vm.Tracer.SetArrayElement(f.Line(), id, int(i), vm.Display(old), vm.Display(v), "")
	return nil
}

func storable(elem descriptor.Descriptor, v Value) bool {
	if _, ok := elem.(descriptor.Primitive); ok {
		return ZeroValue(elem).Kind == v.Kind
	}
	return v.IsReference()
}

func (vm *VM) fieldRef(f *Frame) (*FieldRef, error) {
	return vm.Class.Pool.FieldRef(f.ReadU16())
}

func (vm *VM) popObject(f *Frame) (*Object, int, error) {
	ref := f.PopReference()
	if ref.IsNull() {
		return nil, 0, fault(ErrHeapAccess, "null object reference")
	}
	if ref.Kind != KindRef {
		return nil, 0, fault(ErrType, "expected object, got %s", ref.Kind)
	}
	obj, err := vm.Heap.Object(ref.AsRef())
	if err != nil {
		return nil, 0, err
	}
	return obj, ref.AsRef(), nil
}

// readField returns a field value, reading an unset primitive field as the
// type's zero.
func readField(obj *Object, name string, t descriptor.Descriptor) Value {
	v := obj.Fields[name]
	if v.IsNull() {
		return ZeroValue(t)
	}
	return v
}

func (vm *VM) getfield(f *Frame) error {
	ref, err := vm.fieldRef(f)
	if err != nil {
		return err
	}
	obj, _, err := vm.popObject(f)
	if err != nil {
		return err
	}
	name := ref.NameAndType.Name
	if _, ok := obj.Fields[name]; !ok {
		return fault(ErrHeapAccess, "%s has no field %s", obj.Class.Name, name)
	}
	f.Push(readField(obj, name, ref.Type))
	return nil
}

func (vm *VM) putfield(f *Frame) error {
	ref, err := vm.fieldRef(f)
	if err != nil {
		return err
	}
	v := vm.popArg(f, ref.Type)
	obj, id, err := vm.popObject(f)
	if err != nil {
		return err
	}
	return vm.setField(f, obj, id, ref.NameAndType.Name, v)
}

func (vm *VM) setField(f *Frame, obj *Object, id int, name string, v Value) error {
	old, ok := obj.Fields[name]
	if !ok {
		return fault(ErrHeapAccess, "%s has no field %s", obj.Class.Name, name)
	}
	obj.Fields[name] = v
	vm.Tracer.SetField(f.Line(), id, name, vm.Display(old), vm.Display(v), "")
	return nil
}

// getstatic reads a library static through the intrinsics, creating it on
// first use, or an own-class static from the singleton.
func (vm *VM) getstatic(f *Frame) error {
	ref, err := vm.fieldRef(f)
	if err != nil {
		return err
	}
	owner, name := ref.Class.Name, ref.NameAndType.Name
	if owner == vm.Class.Name {
		obj := vm.Singleton()
		if _, ok := obj.Fields[name]; !ok {
			return fault(ErrHeapAccess, "%s has no static field %s", owner, name)
		}
		f.Push(readField(obj, name, ref.Type))
		return nil
	}

	key := owner + "." + name
	if v, ok := vm.statics[key]; ok {
		f.Push(v)
		return nil
	}
	fn, ok := vm.Intrinsics.static(owner, name)
	if !ok {
		return fault(ErrNotImplemented, "static field %s", key)
	}
	v, err := fn(vm)
	if err != nil {
		return err
	}
	vm.statics[key] = v
	f.Push(v)
	return nil
}

func (vm *VM) putstatic(f *Frame) error {
	ref, err := vm.fieldRef(f)
	if err != nil {
		return err
	}
	owner := ref.Class.Name
	if owner != vm.Class.Name {
		return fault(ErrNotImplemented, "putstatic %s.%s", owner, ref.NameAndType.Name)
	}
	v := vm.popArg(f, ref.Type)
	return vm.setField(f, vm.Singleton(), 0, ref.NameAndType.Name, v)
}

func (vm *VM) newObject(f *Frame) error {
	cr, err := vm.Class.Pool.Class(f.ReadU16())
	if err != nil {
		return err
	}
	if cr.Name == vm.Class.Name {
		f.Push(Ref(vm.Heap.Alloc(vm.Class.NewInstance())))
		return nil
	}
	ctor, ok := vm.Intrinsics.constructor(cr.Name)
	if !ok {
		return fault(ErrNotImplemented, "new %s", cr.Name)
	}
	obj, err := ctor(vm)
	if err != nil {
		return err
	}
	f.Push(Ref(vm.Heap.Alloc(obj)))
	return nil
}

// invokeRef dispatches invokestatic, invokevirtual and invokespecial. An
// empty kind marks invokespecial, whose kind depends on the target.
func (vm *VM) invokeRef(f *Frame, idx uint16, kind string) error {
	ref, err := vm.Class.Pool.MethodRef(idx)
	if err != nil {
		return err
	}
	owner, name, desc := ref.Class.Name, ref.NameAndType.Name, ref.NameAndType.Descriptor
	static := kind == CallStatic

	if owner == vm.Class.Name {
		m := vm.Class.Method(name, desc)
		if m == nil {
			return fault(ErrNotImplemented, "method %s.%s%s", owner, name, desc)
		}
		if m.Static != static {
			return fault(ErrType, "%s called as %s", m.FullName(), OpcodeName(f.Method.Code[f.OpPC]))
		}
		if kind == "" {
			kind = CallMethod
			if name == "<init>" {
				kind = CallConstructor
			}
		}
		return vm.invoke(f, m, kind)
	}

	if !IsLibraryClass(owner) {
		return fault(ErrNotImplemented, "call into unloaded class %s", owner)
	}
	fn, ok := vm.Intrinsics.Lookup(owner, name, desc)
	if !ok {
		return fault(ErrNotImplemented, "method %s.%s%s", owner, name, desc)
	}
	sig := ref.Signature
	inv := &Invocation{VM: vm, Owner: owner, Name: name, Signature: sig, Args: make([]Value, len(sig.Params))}
	for i := len(sig.Params) - 1; i >= 0; i-- {
		inv.Args[i] = vm.popArg(f, sig.Params[i])
	}
	if !static {
		inv.Receiver = f.PopReference()
		if inv.Receiver.IsNull() {
			return fault(ErrHeapAccess, "null receiver for %s.%s", owner, name)
		}
	}
	v, err := fn(inv)
	if err != nil {
		return err
	}
	if !sig.IsVoid() {
		f.Push(v)
	}
	return nil
}
