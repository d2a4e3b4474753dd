package vm

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/daimatz/jvmtrace/pkg/classfile"
	"github.com/daimatz/jvmtrace/pkg/descriptor"
)

// LoadClass builds the runtime class from a parsed class file. Every
// problem found is reported together, wrapped in ErrLoad.
func LoadClass(cf *classfile.ClassFile) (*Class, error) {
	pool, err := ResolvePool(cf.RawPool())
	if err != nil {
		return nil, err
	}
	this, err := pool.Class(cf.ThisClass)
	if err != nil {
		return nil, fmt.Errorf("%w: this_class: %w", ErrLoad, err)
	}
	class := newClass(this.Name, cf.SuperClassName(), pool)

	var errs *multierror.Error
	for _, fi := range cf.Fields {
		typ, err := descriptor.ParseField(fi.Descriptor)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("field %s: %w", fi.Name, err))
			continue
		}
		class.addField(&Field{Name: fi.Name, Type: typ, Static: fi.AccessFlags&classfile.AccStatic != 0})
	}
	for i := range cf.Methods {
		m, err := loadMethod(class.Name, &cf.Methods[i])
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("method %s%s: %w", cf.Methods[i].Name, cf.Methods[i].Descriptor, err))
			continue
		}
		class.addMethod(m)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: class %s: %w", ErrLoad, class.Name, err)
	}
	return class, nil
}

func loadMethod(className string, mi *classfile.MethodInfo) (*Method, error) {
	sig, err := descriptor.ParseMethod(mi.Descriptor)
	if err != nil {
		return nil, err
	}
	m := &Method{
		Name:       mi.Name,
		Class:      className,
		Descriptor: mi.Descriptor,
		Signature:  sig,
		Static:     mi.IsStatic(),
		locals:     make(map[localKey]*LocalVar),
	}
	if code := mi.Code; code != nil {
		m.MaxStack = int(code.MaxStack)
		m.MaxLocals = int(code.MaxLocals)
		m.Code = code.Code
		m.Lines = expandLines(code.LineNumbers, len(code.Code))
		for _, v := range code.LocalVariables {
			lv := &LocalVar{
				Name:       v.Name,
				Descriptor: v.Descriptor,
				StartPC:    int(v.StartPC),
				Length:     int(v.Length),
				Slot:       int(v.Index),
			}
			for pc := lv.StartPC; pc < lv.StartPC+lv.Length; pc++ {
				m.locals[localKey{pc, lv.Slot}] = lv
			}
		}
	}
	m.ParamNames = m.paramNames()
	return m, nil
}

// expandLines turns (startPc, line) pairs into one entry per pc. Each line
// holds until the next entry's start or the end of code; pcs before the
// first entry get -1.
func expandLines(table []classfile.LineNumber, codeLen int) []int {
	lines := make([]int, codeLen)
	for i := range lines {
		lines[i] = -1
	}
	for i, ln := range table {
		end := codeLen
		if i+1 < len(table) {
			end = int(table[i+1].StartPC)
		}
		for pc := int(ln.StartPC); pc < end && pc < codeLen; pc++ {
			lines[pc] = int(ln.Line)
		}
	}
	return lines
}

// LoadFile parses and loads a .class file.
func LoadFile(path string) (*Class, error) {
	cf, err := classfile.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}
	return LoadClass(cf)
}

// ClassPath finds user classes by binary name under a directory, e.g.
// "pkg/Main" at <Dir>/pkg/Main.class.
type ClassPath struct {
	Dir   string
	cache map[string]*Class
}

// NewClassPath creates a ClassPath rooted at dir.
func NewClassPath(dir string) *ClassPath {
	return &ClassPath{Dir: dir, cache: make(map[string]*Class)}
}

// Load returns the class called name, loading it on first use. Dotted
// names are accepted.
func (cp *ClassPath) Load(name string) (*Class, error) {
	name = strings.ReplaceAll(strings.TrimSuffix(name, ".class"), ".", "/")
	if c, ok := cp.cache[name]; ok {
		return c, nil
	}
	c, err := LoadFile(filepath.Join(cp.Dir, filepath.FromSlash(name)+".class"))
	if err != nil {
		return nil, err
	}
	if c.Name != name {
		return nil, fmt.Errorf("%w: %s.class declares class %s", ErrLoad, name, c.Name)
	}
	cp.cache[name] = c
	return c, nil
}
