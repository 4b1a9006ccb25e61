package repovul

import (
	"errors"
	"strings"
)

// Error is the repovul error domain type.
//
// Errors coming from repovul components should be able to be inspected as
// ([errors.As]) an *Error at some point in the error chain.
//
// Create an Error at the system boundary (running git, running linguist,
// touching the database) and have intermediate layers wrap with [fmt.Errorf]
// and a "%w" verb instead of nesting Errors.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Message string
	Op      string
}

var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is].
//
// It compares the error kind. Callers should compare against a declared
// [ErrorKind] over a specific error.
func (e *Error) Is(tgt error) bool {
	return errors.Is(e.Kind, tgt)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind represents the classes of failure the conversion pipeline
// distinguishes.
type ErrorKind string

// Defined error kinds.
var (
	ErrRepoNotFound = ErrorKind("repo-not-found") // remote reports the repository gone
	ErrGit          = ErrorKind("git")            // unexpected git failure
	ErrLinguist     = ErrorKind("linguist")       // language classifier failure
	ErrSolver       = ErrorKind("solver")         // hitting-set solve not proven optimal
	ErrValidation   = ErrorKind("validation")     // malformed input data
)

// Error implements error.
func (e ErrorKind) Error() string {
	return string(e)
}
