package reader

import (
	"fmt"

	"github.com/ahills/sibilant/internal/datum"
)

// SyntaxError reports malformed input at read time: bad lexemes,
// mismatched parens, misused dots, unterminated strings, or EOF inside
// a form. It always carries the filename and position.
type SyntaxError struct {
	Message  string
	Filename string
	Position datum.Position
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s",
		e.Filename, e.Position.Line, e.Position.Col, e.Message)
}
