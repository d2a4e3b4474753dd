package trace

import (
	"github.com/rs/zerolog"
)

// LogWriter streams each event as a structured log record. Metadata events
// are logged at debug level, execution events at info.
type LogWriter struct {
	Logger zerolog.Logger
}

// NewLogWriter returns a LogWriter writing through logger.
func NewLogWriter(logger zerolog.Logger) *LogWriter {
	return &LogWriter{Logger: logger}
}

func (l *LogWriter) DefineFunction(name, returnType string, params ...string) {
	l.Logger.Debug().
		Str("function", name).
		Str("return_type", returnType).
		Strs("params", params).
		Msg("define function")
}

func (l *LogWriter) DefineClass(name string, fields []string, tag string) {
	l.Logger.Debug().
		Str("class", name).
		Strs("fields", fields).
		Str("tag", tag).
		Msg("define class")
}

func (l *LogWriter) Assign(line int, name, oldValue, newValue, tag string) {
	ev := l.Logger.Info().
		Int("line", line).
		Str("name", name).
		Str("old", oldValue).
		Str("new", newValue)
	withTag(ev, tag).Msg(EventAssign)
}

func (l *LogWriter) SetField(line, objectID int, field, oldValue, newValue, tag string) {
	ev := l.Logger.Info().
		Int("line", line).
		Int("object", objectID).
		Str("field", field).
		Str("old", oldValue).
		Str("new", newValue)
	withTag(ev, tag).Msg(EventSetField)
}

func (l *LogWriter) SetArrayElement(line, arrayID, index int, oldValue, newValue, tag string) {
	ev := l.Logger.Info().
		Int("line", line).
		Int("array", arrayID).
		Int("index", index).
		Str("old", oldValue).
		Str("new", newValue)
	withTag(ev, tag).Msg(EventSetArrayElement)
}

func (l *LogWriter) Call(line int, function, kind string, args ...string) {
	l.Logger.Info().
		Int("line", line).
		Str("function", function).
		Str("kind", kind).
		Strs("args", args).
		Msg(EventCall)
}

func (l *LogWriter) Return(line int, value string) {
	l.Logger.Info().Int("line", line).Str("value", value).Msg(EventReturn)
}

func (l *LogWriter) ReturnVoid(line int) {
	l.Return(line, VoidValue)
}

func withTag(ev *zerolog.Event, tag string) *zerolog.Event {
	if tag == "" {
		return ev
	}
	return ev.Str("tag", tag)
}
