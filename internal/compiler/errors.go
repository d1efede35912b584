package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Reason classifies a compilation failure.
type Reason string

const (
	ReasonSyntax     Reason = "syntax"
	ReasonUnresolved Reason = "unresolved"
	ReasonParameter  Reason = "parameter"
	ReasonType       Reason = "type"
	ReasonEvaluation Reason = "evaluation"
	ReasonDuplicate  Reason = "duplicate"
	ReasonCycle      Reason = "cycle"
)

// CompileError is the single error kind a compile produces. Resource, when
// set, is the offending declaration as Type[title].
type CompileError struct {
	Class    string `json:"class"`
	Reason   Reason `json:"reason"`
	Resource string `json:"resource,omitempty"`
	Message  string `json:"message"`
	Err      error  `json:"-"`
}

func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compile %s: %s error", e.Class, e.Reason)
	if e.Resource != "" {
		fmt.Fprintf(&b, " on %s", e.Resource)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

// AsCompileError unwraps err to a *CompileError.
func AsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsReason reports whether err is a compile failure with the given reason.
func IsReason(err error, reason Reason) bool {
	ce, ok := AsCompileError(err)
	return ok && ce.Reason == reason
}
