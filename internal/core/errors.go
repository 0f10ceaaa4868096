package core

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies pipeline errors and rejections.
type Kind int

const (
	KindNone Kind = iota
	KindMalformedInput
	KindIntegrityViolation
	KindStorageUnavailable
	KindSchemaMismatch
)

func (k Kind) String() string {
	switch k {
	case KindMalformedInput:
		return "malformed_input"
	case KindIntegrityViolation:
		return "integrity_violation"
	case KindStorageUnavailable:
		return "storage_unavailable"
	case KindSchemaMismatch:
		return "schema_mismatch"
	default:
		return "none"
	}
}

// Error is a classified pipeline error. Source, Line, Key and Field are set
// when the error concerns a specific record or field.
type Error struct {
	Kind   Kind
	Source string
	Line   int
	Key    string
	Field  string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Source != "" {
		fmt.Fprintf(&b, " [%s", e.Source)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
		b.WriteString("]")
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key=%s", e.Key)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field=%s", e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, or KindNone.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

// newError builds an *Error with a formatted cause.
func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Reason is the code attached to a rejected record.
type Reason string

const (
	ReasonMalformedRow        Reason = "malformed_row"
	ReasonDuplicate           Reason = "duplicate"
	ReasonMissingRequired     Reason = "missing_required"
	ReasonUnresolvedReference Reason = "unresolved_reference"
	ReasonDuplicateKey        Reason = "duplicate_key"
	ReasonBatchFailed         Reason = "batch_failed"
)

// Kind maps a reason to the error class it is reported under.
func (r Reason) Kind() Kind {
	switch r {
	case ReasonMalformedRow:
		return KindMalformedInput
	case ReasonUnresolvedReference, ReasonDuplicateKey:
		return KindIntegrityViolation
	case ReasonBatchFailed:
		return KindStorageUnavailable
	default:
		return KindNone
	}
}

// Rejection records one input record excluded from the output, with the
// original raw values kept for auditing.
type Rejection struct {
	Source string
	Line   int
	Key    string
	Reason Reason
	Kind   Kind
	Detail string
	Raw    map[string]string
}

// reject builds a Rejection for an entity.
func reject(e Entity, reason Reason, detail string) Rejection {
	b := e.Meta()
	return Rejection{
		Source: b.Source,
		Line:   b.Line,
		Key:    e.NaturalKey(),
		Reason: reason,
		Kind:   reason.Kind(),
		Detail: detail,
		Raw:    b.RawValues(),
	}
}
