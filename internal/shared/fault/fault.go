package fault

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// Kind categorizes a boot error
type Kind string

const (
	KindRuntimeLoad Kind = "runtime_load" // embedded runtime failed to initialize
	KindInstall     Kind = "install"      // a single dependency failed, recoverable
	KindExecution   Kind = "execution"    // application payload failed
)

// Fatal reports whether errors of this kind abort the boot sequence.
func (k Kind) Fatal() bool {
	return k == KindRuntimeLoad || k == KindExecution
}

// Error is a boot error with a one-line summary for the control side
type Error struct {
	Kind    Kind
	Subject string
	Summary string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Kind))
	b.WriteByte(']')

	if e.Subject != "" {
		b.WriteByte(' ')
		b.WriteString(e.Subject)
	}

	if e.Summary != "" {
		b.WriteString(": ")
		b.WriteString(e.Summary)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind so callers can test errors.Is(err, &fault.Error{Kind: ...})
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(kind Kind) *Builder {
	return &Builder{err: Error{Kind: kind}}
}

// Subject names what failed (a dependency, a payload)
func (b *Builder) Subject(s string) *Builder {
	b.err.Subject = s
	return b
}

// Summary sets the human-readable summary
func (b *Builder) Summary(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Summary = fmt.Sprintf(msg, args...)
	} else {
		b.err.Summary = msg
	}
	return b
}

// Cause sets the underlying error. The summary defaults to Summarize(err).
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	if b.err.Summary == "" {
		b.err.Summary = Summarize(err)
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// KindOf returns the Kind of err, or "" when err is not a fault.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// SummaryOf returns the summary carried by err, falling back to Summarize.
func SummaryOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Summary != "" {
		return fe.Summary
	}
	return Summarize(err)
}

// Summarize extracts the most informative single line from a runtime error.
// A thrown script value is rendered as the script would print it
// ("TypeError: x is not a function"); anything else yields its last
// non-blank line.
func Summarize(err error) string {
	if err == nil {
		return ""
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		if v := exc.Value(); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			if s := strings.TrimSpace(v.String()); s != "" {
				return firstLine(s)
			}
		}
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return "execution interrupted: " + fmt.Sprint(interrupted.Value())
	}

	lines := strings.Split(err.Error(), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return err.Error()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
