// Package trace defines the event contract between the interpreter and
// whatever persists or displays an execution trace.
package trace

// Writer receives trace events in emission order. All values arrive
// already rendered to their display text.
type Writer interface {
	// DefineFunction records method metadata; emitted once per method at load.
	DefineFunction(name, returnType string, params ...string)
	// DefineClass records class metadata; emitted once per loaded class.
	DefineClass(name string, fields []string, tag string)

	Assign(line int, name, oldValue, newValue, tag string)
	SetField(line, objectID int, field, oldValue, newValue, tag string)
	SetArrayElement(line, arrayID, index int, oldValue, newValue, tag string)
	Call(line int, function, kind string, args ...string)
	Return(line int, value string)
	ReturnVoid(line int)
}

// Event names used in recorded documents.
const (
	EventAssign          = "store"
	EventSetField        = "store_field"
	EventSetArrayElement = "store_element"
	EventCall            = "call"
	EventReturn          = "return"
)

// VoidValue is the value recorded for returns from void methods.
const VoidValue = "void"

// Discard drops every event.
var Discard Writer = discard{}

type discard struct{}

func (discard) DefineFunction(string, string, ...string) {}
func (discard) DefineClass(string, []string, string) {}
func (discard) Assign(int, string, string, string, string) {}
func (discard) SetField(int, int, string, string, string, string) {}
func (discard) SetArrayElement(int, int, int, string, string, string) {}
func (discard) Call(int, string, string, ...string) {}
func (discard) Return(int, string) {}
func (discard) ReturnVoid(int) {}

// Multi fans each event out to every writer in order.
func Multi(writers ...Writer) Writer {
	return multi(writers)
}

type multi []Writer

func (m multi) DefineFunction(name, returnType string, params ...string) {
	for _, w := range m {
		w.DefineFunction(name, returnType, params...)
	}
}

func (m multi) DefineClass(name string, fields []string, tag string) {
	for _, w := range m {
		w.DefineClass(name, fields, tag)
	}
}

func (m multi) Assign(line int, name, oldValue, newValue, tag string) {
	for _, w := range m {
		w.Assign(line, name, oldValue, newValue, tag)
	}
}

func (m multi) SetField(line, objectID int, field, oldValue, newValue, tag string) {
	for _, w := range m {
		w.SetField(line, objectID, field, oldValue, newValue, tag)
	}
}

func (m multi) SetArrayElement(line, arrayID, index int, oldValue, newValue, tag string) {
	for _, w := range m {
		w.SetArrayElement(line, arrayID, index, oldValue, newValue, tag)
	}
}

func (m multi) Call(line int, function, kind string, args ...string) {
	for _, w := range m {
		w.Call(line, function, kind, args...)
	}
}

func (m multi) Return(line int, value string) {
	for _, w := range m {
		w.Return(line, value)
	}
}

func (m multi) ReturnVoid(line int) {
	for _, w := range m {
		w.ReturnVoid(line)
	}
}
