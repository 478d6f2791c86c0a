package compiler

import (
	"fmt"

	"github.com/ahills/sibilant/internal/datum"
)

// SyntaxError reports a malformed special form, an undeclared global
// in a define, an unresolved name during lowering, or an unknown
// pseudo-op.
type SyntaxError struct {
	Message  string
	Position *datum.Position
}

func (e *SyntaxError) Error() string {
	if e.Position != nil {
		return fmt.Sprintf("%d:%d: %s", e.Position.Line, e.Position.Col, e.Message)
	}
	return e.Message
}

func syntaxErrorf(format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Message: fmt.Sprintf(format, args...)}
}

// UnsupportedVersionError reports that no assembler dialect exists for
// the requested target VM version.
type UnsupportedVersionError struct {
	Version Version
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("no assembler for target version %s", e.Version)
}
