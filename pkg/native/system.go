package native

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// PrintStream is the host side of java.io.PrintStream (System.out and
// System.err). When Color is set, output is written through it.
type PrintStream struct {
	Writer io.Writer
	Color  *color.Color
}

// NewPrintStream returns a PrintStream writing to w in c, or uncolored if c
// is nil.
func NewPrintStream(w io.Writer, c *color.Color) *PrintStream {
	return &PrintStream{Writer: w, Color: c}
}

func (ps *PrintStream) ClassName() string { return "java/io/PrintStream" }

// Print writes s with no trailing newline.
func (ps *PrintStream) Print(s string) error {
	var err error
	if ps.Color != nil {
		_, err = ps.Color.Fprint(ps.Writer, s)
	} else {
		_, err = io.WriteString(ps.Writer, s)
	}
	return err
}

// Println writes s followed by a newline.
func (ps *PrintStream) Println(s string) error {
	if err := ps.Print(s); err != nil {
		return err
	}
	_, err := fmt.Fprintln(ps.Writer)
	return err
}
