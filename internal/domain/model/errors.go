package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds. Callers match them with errors.Is.
var (
	ErrValidation               = errors.New("validation error")
	ErrInvalidStateTransition   = errors.New("invalid state transition")
	ErrIncompleteRequiredMarks  = errors.New("incomplete required marks")
	ErrScoreCardLocked          = errors.New("scorecard locked")
	ErrMissingReason            = errors.New("missing disqualification reason")
	ErrNoEligibleScoreCards     = errors.New("no eligible scorecards")
	ErrNotFound                 = errors.New("not found")
	ErrAlreadyPublishedNoChange = errors.New("ranking already published with no change")
	ErrTemplateImmutable        = errors.New("template is system-owned")
	ErrTemplateInUse            = errors.New("template is used by editable scorecards")
	ErrVersionConflict          = errors.New("version conflict")
)

// Error carries enough structured detail for a caller to explain which
// precondition failed.
type Error struct {
	// Op is the operation that failed, e.g. "scorecard.record_mark".
	Op string
	// Kind is one of the sentinel kinds above.
	Kind error
	// Field names the offending input, e.g. "E3" or "reason".
	Field string
	// Rule names the violated rule, e.g. "range" or "min_length".
	Rule string
	// Expected and Actual describe the constraint and the offending value.
	Expected string
	Actual   string
	// Missing lists required fields that were absent.
	Missing []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Field != "" {
		fmt.Fprintf(&b, " (field=%s", e.Field)
		if e.Rule != "" {
			fmt.Fprintf(&b, " rule=%s", e.Rule)
		}
		if e.Expected != "" {
			fmt.Fprintf(&b, " expected=%s", e.Expected)
		}
		if e.Actual != "" {
			fmt.Fprintf(&b, " actual=%s", e.Actual)
		}
		b.WriteString(")")
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " missing=[%s]", strings.Join(e.Missing, ","))
	}
	return b.String()
}

// Unwrap exposes the kind so errors.Is works against the sentinels.
func (e *Error) Unwrap() error { return e.Kind }

// NewError builds an Error of the given kind.
func NewError(op string, kind error) *Error {
	return &Error{Op: op, Kind: kind}
}

// WithField sets the field/rule/expected/actual detail and returns e.
func (e *Error) WithField(field, rule, expected, actual string) *Error {
	e.Field = field
	e.Rule = rule
	e.Expected = expected
	e.Actual = actual
	return e
}

// Invalid is shorthand for a validation error on one field.
func Invalid(op, field, rule, expected, actual string) *Error {
	return NewError(op, ErrValidation).WithField(field, rule, expected, actual)
}

// Transition reports an illegal status change.
func Transition(op string, from, to Status) *Error {
	return NewError(op, ErrInvalidStateTransition).WithField("status", "transition", string(to), string(from))
}

// NotFound reports a missing entity.
func NotFound(op, entity, id string) *Error {
	return NewError(op, ErrNotFound).WithField(entity, "exists", "", id)
}

// AsError extracts the structured detail from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
