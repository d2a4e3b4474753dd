package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/jvmtrace/pkg/classfile"
	"github.com/daimatz/jvmtrace/pkg/trace"
	"github.com/daimatz/jvmtrace/pkg/vm"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeAll(t, args...)
	return out, err
}

// executeAll runs the root command and returns what it wrote to stdout and
// stderr.
func executeAll(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// classWriter assembles the bytes of a class whose only method is
// static void main(String[]).
type classWriter struct {
	pool  bytes.Buffer
	count uint16
}

func newClassWriter() *classWriter {
	return &classWriter{count: 1}
}

func (w *classWriter) entry(tag uint8, payload ...any) uint16 {
	w.pool.WriteByte(tag)
	for _, p := range payload {
		binary.Write(&w.pool, binary.BigEndian, p)
	}
	idx := w.count
	w.count++
	return idx
}

func (w *classWriter) utf8(s string) uint16 {
	return w.entry(classfile.TagUtf8, uint16(len(s)), []byte(s))
}

func (w *classWriter) class(name string) uint16 {
	return w.entry(classfile.TagClass, w.utf8(name))
}

func (w *classWriter) str(s string) uint16 {
	return w.entry(classfile.TagString, w.utf8(s))
}

func (w *classWriter) ref(tag uint8, owner, name, desc string) uint16 {
	nat := w.entry(classfile.TagNameAndType, w.utf8(name), w.utf8(desc))
	return w.entry(tag, w.class(owner), nat)
}

func (w *classWriter) build(name string, maxStack, maxLocals uint16, code []byte) []byte {
	this := w.class(name)
	super := w.class("java/lang/Object")
	mainName, mainDesc, codeName := w.utf8("main"), w.utf8("([Ljava/lang/String;)V"), w.utf8("Code")

	var out bytes.Buffer
	put := func(vs ...any) {
		for _, v := range vs {
			binary.Write(&out, binary.BigEndian, v)
		}
	}
	put(uint32(0xCAFEBABE), uint16(0), uint16(52), w.count)
	out.Write(w.pool.Bytes())
	put(uint16(classfile.AccPublic|classfile.AccSuper), this, super, uint16(0))
	put(uint16(0)) // fields
	put(uint16(1), uint16(classfile.AccPublic|classfile.AccStatic), mainName, mainDesc, uint16(1))
	put(codeName, uint32(12+len(code)), maxStack, maxLocals, uint32(len(code)))
	out.Write(code)
	put(uint16(0), uint16(0)) // exception table, code attributes
	put(uint16(0))            // class attributes
	return out.Bytes()
}

// writeHello writes Hello.class, which prints "hi" through System.out.
func writeHello(t *testing.T, dir string) string {
	t.Helper()
	w := newClassWriter()
	out := w.ref(classfile.TagFieldref, "java/lang/System", "out", "Ljava/io/PrintStream;")
	printStr := w.ref(classfile.TagMethodref, "java/io/PrintStream", "println", "(Ljava/lang/String;)V")
	hi := w.str("hi")
	code := []byte{
		byte(vm.OpGetstatic), byte(out >> 8), byte(out),
		byte(vm.OpLdc), byte(hi),
		byte(vm.OpInvokevirtual), byte(printStr >> 8), byte(printStr),
		byte(vm.OpReturn),
	}
	path := filepath.Join(dir, "Hello.class")
	require.NoError(t, os.WriteFile(path, w.build("Hello", 2, 1, code), 0o644))
	return path
}

// writeBoom writes Boom.class, whose main divides by zero.
func writeBoom(t *testing.T, dir string) string {
	t.Helper()
	code := []byte{byte(vm.OpIconst1), byte(vm.OpIconst0), byte(vm.OpIdiv), byte(vm.OpPop), byte(vm.OpReturn)}
	path := filepath.Join(dir, "Boom.class")
	require.NoError(t, os.WriteFile(path, newClassWriter().build("Boom", 2, 1, code), 0o644))
	return path
}

func decodeTrace(t *testing.T, data string) *trace.Document {
	t.Helper()
	doc, err := trace.Decode(bytes.NewReader([]byte(data)), trace.FormatJSON)
	require.NoError(t, err)
	return doc
}

func events(doc *trace.Document) []string {
	var names []string
	for _, e := range doc.Trace {
		names = append(names, e.Event)
	}
	return names
}

func TestRunWritesTrace(t *testing.T) {
	dir := t.TempDir()
	writeHello(t, dir)

	stdout, stderr, err := executeAll(t, "--classpath", dir, "--format", "json", "--no-color", "Hello")
	require.NoError(t, err)
	assert.Contains(t, stderr, "hi\n")

	doc := decodeTrace(t, stdout)
	assert.NotEmpty(t, doc.RunID)
	require.Len(t, doc.Classes, 1)
	assert.Equal(t, "Hello", doc.Classes[0].Name)
	assert.Equal(t, []string{trace.EventCall, trace.EventReturn}, events(doc))
}

func TestRunWritesTraceOnFault(t *testing.T) {
	path := writeBoom(t, t.TempDir())

	stdout, err := execute(t, "--format", "json", path)
	require.ErrorIs(t, err, vm.ErrArithmetic)

	doc := decodeTrace(t, stdout)
	assert.Equal(t, []string{trace.EventCall}, events(doc))
}

func TestRunOutputFile(t *testing.T) {
	dir := t.TempDir()
	path := writeHello(t, dir)
	file := filepath.Join(dir, "trace.json")

	stdout, err := execute(t, "--output", file, "--no-color", path)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", stdout)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	doc := decodeTrace(t, string(data))
	assert.Equal(t, []string{trace.EventCall, trace.EventReturn}, events(doc))
}

func TestMissingClass(t *testing.T) {
	_, err := execute(t, "--classpath", t.TempDir(), "NoSuchClass")
	assert.ErrorIs(t, err, vm.ErrLoad)
}

func TestRequiresTarget(t *testing.T) {
	_, err := execute(t)
	assert.Error(t, err)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "Main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "Main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestOutputFormat(t *testing.T) {
	f, err := outputFormat("cbor", "")
	require.NoError(t, err)
	assert.Equal(t, trace.FormatCBOR, f)

	f, err = outputFormat("", "trace.json")
	require.NoError(t, err)
	assert.Equal(t, trace.FormatJSON, f)
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "info")
	require.NoError(t, err)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)
}
