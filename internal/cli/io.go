package cli

import (
	"fmt"
	"io"
)

// IO is a command's view of stdout and stderr. It collects warnings, which
// are printed to stderr before the first stdout line and again at the end,
// so they survive piping through head or tail.
type IO struct {
	out      io.Writer
	errOut   io.Writer
	warnings []string
	flushed  bool
}

// NewIO creates a new IO instance.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

// Warn records a warning made of what went wrong and what the user should
// do about it. Any warning turns the exit code into 1 without suppressing
// normal output.
func (o *IO) Warn(issue string, action string) {
	o.warnings = append(o.warnings, issue+": "+action)
}

// Println writes to stdout.
func (o *IO) Println(a ...any) {
	o.flushEarly()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout.
func (o *IO) Printf(format string, a ...any) {
	o.flushEarly()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// ErrPrintln writes to stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Finish prints the warnings a last time and returns the exit code.
func (o *IO) Finish() int {
	o.flushEarly()
	o.printWarnings()

	if len(o.warnings) > 0 {
		return 1
	}

	return 0
}

func (o *IO) flushEarly() {
	if o.flushed || len(o.warnings) == 0 {
		return
	}

	o.printWarnings()
	o.flushed = true
}

func (o *IO) printWarnings() {
	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}
}
