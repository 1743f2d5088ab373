package recipe

import "fmt"

// ErrorKind is the closed taxonomy of parse/template failures from spec.md §7.
type ErrorKind string

const (
	KindExpectedMapping  ErrorKind = "ExpectedMapping"
	KindExpectedSequence ErrorKind = "ExpectedSequence"
	KindExpectedScalar   ErrorKind = "ExpectedScalar"
	KindMissingField     ErrorKind = "MissingField"
	KindInvalidField     ErrorKind = "InvalidField"
	KindInvalidValue     ErrorKind = "InvalidValue"
	KindDuplicateField   ErrorKind = "DuplicateField"
	KindIO               ErrorKind = "Io"
	KindTemplateError    ErrorKind = "TemplateError"
)

// ParseError is a structured error carrying a span, a one-line summary and,
// where applicable, a suggestion. It is the common shape every Parser and
// Evaluator failure is surfaced as, following Azure-dalec's pattern of
// attaching a source location to every user-visible failure
// (sourcemap.go, load.go).
type ParseError struct {
	Kind       ErrorKind
	Span       *Span
	Field      string
	Suggestion []string
	Inner      error
	msg        string
}

func (e *ParseError) Error() string {
	loc := e.Span.String()
	if e.msg != "" {
		return fmt.Sprintf("%s: %s", loc, e.msg)
	}
	switch e.Kind {
	case KindMissingField:
		return fmt.Sprintf("%s: missing required field %q", loc, e.Field)
	case KindInvalidField:
		if len(e.Suggestion) > 0 {
			return fmt.Sprintf("%s: invalid field %q, expected one of %v", loc, e.Field, e.Suggestion)
		}
		return fmt.Sprintf("%s: invalid field %q", loc, e.Field)
	case KindInvalidValue:
		return fmt.Sprintf("%s: invalid value for field %q: %v", loc, e.Field, e.Inner)
	case KindDuplicateField:
		return fmt.Sprintf("%s: duplicate field %q", loc, e.Field)
	default:
		if e.Inner != nil {
			return fmt.Sprintf("%s: %s: %v", loc, e.Kind, e.Inner)
		}
		return fmt.Sprintf("%s: %s", loc, e.Kind)
	}
}

func (e *ParseError) Unwrap() error { return e.Inner }

func newParseError(kind ErrorKind, span *Span, msg string) *ParseError {
	return &ParseError{Kind: kind, Span: span, msg: msg}
}

func missingField(span *Span, field string) *ParseError {
	return &ParseError{Kind: KindMissingField, Span: span, Field: field}
}

func invalidField(span *Span, field string, suggestion []string) *ParseError {
	return &ParseError{Kind: KindInvalidField, Span: span, Field: field, Suggestion: suggestion}
}

func invalidValue(span *Span, field string, inner error) *ParseError {
	return &ParseError{Kind: KindInvalidValue, Span: span, Field: field, Inner: inner}
}

// TemplateError wraps a rendering failure from the eval package with the
// span of the enclosing template, surfaced through the same ParseError shape
// per spec.md §4.2 ("surfaced as a parse-error kind so callers handle both
// uniformly").
func TemplateError(span *Span, inner error) *ParseError {
	return &ParseError{Kind: KindTemplateError, Span: span, Inner: inner}
}
