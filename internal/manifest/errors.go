package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedAutomaton is wrapped by every ParseError.
var ErrMalformedAutomaton = errors.New("malformed automaton block")

// ParseError reports an automaton block that is missing required fields.
// Line is the 1-based line number of the block's !AUTOMATON marker.
type ParseError struct {
	Line    int
	Missing []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("automaton block at line %d: missing required field(s): %s",
		e.Line, strings.Join(e.Missing, ", "))
}

func (e *ParseError) Unwrap() error {
	return ErrMalformedAutomaton
}
