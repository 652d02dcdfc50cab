package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for dupmatch operations.
var (
	// ErrSyntax classifies malformed condition text. Wrapped by SyntaxError.
	ErrSyntax = errors.New("syntax error")

	// ErrEvaluation classifies malformed and/or sequencing found while
	// evaluating a condition tree. Wrapped by EvaluationError.
	ErrEvaluation = errors.New("evaluation error")

	// ErrNoFields indicates a group with no selected fields.
	ErrNoFields = errors.New("one or more groups have no fields set")

	// ErrEmptyGroup indicates a group with no candidate records.
	ErrEmptyGroup = errors.New("some groups do not contain any records")

	// ErrTooFewGroups indicates a run with fewer than two groups.
	ErrTooFewGroups = errors.New("at least two groups are required")

	// ErrTooManyGroups indicates a run exceeding MaxGroups.
	ErrTooManyGroups = errors.New("too many groups")

	// ErrTooManyFields indicates a group exceeding MaxFieldsPerGroup.
	ErrTooManyFields = errors.New("too many fields in group")

	// ErrInvalidCapture indicates a capture pattern that does not compile.
	ErrInvalidCapture = errors.New("invalid capture pattern")

	// ErrInvalidAction indicates an unknown duplicate action.
	ErrInvalidAction = errors.New("invalid duplicate action")

	// ErrUnknownSource indicates a group source that cannot be resolved.
	ErrUnknownSource = errors.New("unknown group source")

	// ErrUnknownField indicates a selector naming a field its category lacks.
	ErrUnknownField = errors.New("unknown field")

	// ErrRecordNotFound indicates a record id unknown to the store.
	ErrRecordNotFound = errors.New("record not found")

	// ErrExpressionTooLong indicates a condition exceeding MaxExpressionLength.
	ErrExpressionTooLong = errors.New("condition text too long")
)

// SyntaxError reports malformed condition text: unbalanced parentheses,
// unrecognized operands, incompatible operator/operand types or wrong leaf
// arity. Raised at parse time, never mid-scan.
type SyntaxError struct {
	Text   string // offending fragment
	Reason string
}

func (e *SyntaxError) Error() string {
	if e.Text == "" {
		return e.Reason
	}
	return fmt.Sprintf("%q: %s", e.Text, e.Reason)
}

// Unwrap lets errors.Is(err, ErrSyntax) match.
func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

// ConfigError reports a run precondition failure detected before any
// projection work. Err is one of the precondition sentinels above.
type ConfigError struct {
	Group int // 1-based group number, 0 when not group specific
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Group > 0 {
		return fmt.Sprintf("group %d: %v", e.Group, e.Err)
	}
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// EvaluationError reports malformed and/or sequencing in a condition tree.
// Unreachable for trees built by the parser; surfaced rather than swallowed.
type EvaluationError struct {
	Node   string // source text of the offending interior node
	Reason string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s in %q", e.Reason, e.Node)
}

func (e *EvaluationError) Unwrap() error {
	return ErrEvaluation
}
