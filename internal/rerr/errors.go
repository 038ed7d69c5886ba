// Package rerr defines Rela's typed error kinds (§7) and the
// explicit-result-carrying escape the Design Notes call for in place of
// the original C implementation's setjmp/longjmp: every RelaError
// propagates as a normal Go error up through parse/compile/Run, with no
// panic crossing a public API boundary.
package rerr

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

type Kind string

const (
	OutOfMemory  Kind = "OutOfMemory"
	ParseError   Kind = "ParseError"
	CompileError Kind = "CompileError"
	TypeError    Kind = "TypeError"
	NameError    Kind = "NameError"
	RuntimeError Kind = "RuntimeError"
	HostError    Kind = "HostError"
)

// RelaError is the single error type every Rela API surfaces. Message
// formatting follows §7: runtime errors append " (ip <n>)"; parse/compile
// errors append a short source snippet.
type RelaError struct {
	Kind    Kind
	Message string
	IP      int    // valid for RuntimeError
	File    string
	Line    int
	Col     int
	Snippet string // short trailing source context for parse/compile errors
	cause   error
}

func (e *RelaError) Error() string {
	switch e.Kind {
	case RuntimeError:
		return fmt.Sprintf("%s (ip %d)", e.Message, e.IP)
	case ParseError, CompileError:
		if e.Snippet != "" {
			return fmt.Sprintf("%s: %s at %s:%d:%d\n  %s", e.Kind, e.Message, e.File, e.Line, e.Col, e.Snippet)
		}
		return fmt.Sprintf("%s: %s at %s:%d:%d", e.Kind, e.Message, e.File, e.Line, e.Col)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RelaError) Unwrap() error { return e.cause }

func New(kind Kind, format string, args ...any) *RelaError {
	return &RelaError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NewRuntime(ip int, format string, args ...any) *RelaError {
	return &RelaError{Kind: RuntimeError, Message: fmt.Sprintf(format, args...), IP: ip}
}

func NewParse(file string, line, col int, snippet, format string, args ...any) *RelaError {
	return &RelaError{Kind: ParseError, Message: fmt.Sprintf(format, args...), File: file, Line: line, Col: col, Snippet: snippet}
}

func NewCompile(file string, line, col int, snippet, format string, args ...any) *RelaError {
	return &RelaError{Kind: CompileError, Message: fmt.Sprintf(format, args...), File: file, Line: line, Col: col, Snippet: snippet}
}

// WrapHost wraps a native callback's returned error as a HostError,
// keeping its stack trace via github.com/pkg/errors for -d style
// diagnostics, per SPEC_FULL.md's DOMAIN STACK table.
func WrapHost(cause error, format string, args ...any) *RelaError {
	wrapped := pkgerrors.Wrap(cause, fmt.Sprintf(format, args...))
	return &RelaError{Kind: HostError, Message: wrapped.Error(), cause: cause}
}
