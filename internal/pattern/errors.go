package pattern

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSyntax = errors.New("invalid syntax")
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrBudgetExceeded is returned when an evaluation takes more
	// backtracking steps than its limit allows.
	ErrBudgetExceeded = errors.New("step budget exceeded")
)

// SyntaxError reports a malformed byte sequence. Pos is the byte offset
// in Expr where parsing failed.
type SyntaxError struct {
	Expr   string
	Pos    int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid syntax at position %d in %q: %s", e.Pos, e.Expr, e.Reason)
}

func (e *SyntaxError) Unwrap() error {
	return ErrInvalidSyntax
}
