package trace

import (
	"github.com/google/uuid"
)

// Document is the persisted form of a run: metadata plus the ordered trace.
type Document struct {
	RunID     string     `json:"run_id,omitempty"`
	Classes   []Class    `json:"classes"`
	Functions []Function `json:"functions"`
	Trace     []Entry    `json:"trace"`
}

type Class struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
	Tag    string   `json:"tag,omitempty"`
}

type Function struct {
	Name       string   `json:"name"`
	ReturnType string   `json:"returnType"`
	Parameters []string `json:"parameters"`
}

// Entry is one trace event. EventData holds one of the *Data types below
// when recorded, or a generic map when decoded.
type Entry struct {
	Line      int    `json:"line"`
	Event     string `json:"event"`
	EventData any    `json:"event_data"`
	Tag       string `json:"tag,omitempty"`
}

type AssignData struct {
	Name     string `json:"name"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

type FieldData struct {
	ObjectID  int    `json:"objectId"`
	FieldName string `json:"fieldName"`
	OldValue  string `json:"oldVal"`
	NewValue  string `json:"newVal"`
}

type ArrayData struct {
	ArrayID  int    `json:"arrayId"`
	Index    int    `json:"index"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

type CallData struct {
	FuncName string   `json:"funcName"`
	Args     []string `json:"args"`
}

type ReturnData struct {
	Value string `json:"value"`
}

// Recorder accumulates events into a Document.
type Recorder struct {
	doc Document
}

// NewRecorder returns a Recorder whose document carries a fresh run id.
func NewRecorder() *Recorder {
	return &Recorder{doc: Document{
		RunID:     uuid.NewString(),
		Classes:   []Class{},
		Functions: []Function{},
		Trace:     []Entry{},
	}}
}

// Document returns the recorded document. It is not a copy.
func (r *Recorder) Document() *Document { return &r.doc }

// Entries returns the recorded trace entries.
func (r *Recorder) Entries() []Entry { return r.doc.Trace }

// Count returns how many entries of the given event were recorded.
func (r *Recorder) Count(event string) int {
	n := 0
	for _, e := range r.doc.Trace {
		if e.Event == event {
			n++
		}
	}
	return n
}

func (r *Recorder) add(line int, event string, data any, tag string) {
	r.doc.Trace = append(r.doc.Trace, Entry{Line: line, Event: event, EventData: data, Tag: tag})
}

func (r *Recorder) DefineFunction(name, returnType string, params ...string) {
	r.doc.Functions = append(r.doc.Functions, Function{
		Name:       name,
		ReturnType: returnType,
		Parameters: append([]string{}, params...),
	})
}

func (r *Recorder) DefineClass(name string, fields []string, tag string) {
	r.doc.Classes = append(r.doc.Classes, Class{
		Name:   name,
		Fields: append([]string{}, fields...),
		Tag:    tag,
	})
}

func (r *Recorder) Assign(line int, name, oldValue, newValue, tag string) {
	r.add(line, EventAssign, AssignData{Name: name, OldValue: oldValue, NewValue: newValue}, tag)
}

func (r *Recorder) SetField(line, objectID int, field, oldValue, newValue, tag string) {
	r.add(line, EventSetField, FieldData{ObjectID: objectID, FieldName: field, OldValue: oldValue, NewValue: newValue}, tag)
}

func (r *Recorder) SetArrayElement(line, arrayID, index int, oldValue, newValue, tag string) {
	r.add(line, EventSetArrayElement, ArrayData{ArrayID: arrayID, Index: index, OldValue: oldValue, NewValue: newValue}, tag)
}

// Call records the kind ("static", "method", ...) as the entry tag.
func (r *Recorder) Call(line int, function, kind string, args ...string) {
	r.add(line, EventCall, CallData{FuncName: function, Args: append([]string{}, args...)}, kind)
}

func (r *Recorder) Return(line int, value string) {
	r.add(line, EventReturn, ReturnData{Value: value}, "")
}

func (r *Recorder) ReturnVoid(line int) {
	r.add(line, EventReturn, ReturnData{Value: VoidValue}, "")
}
