/*
errors.go - Error taxonomy for production tracking

PURPOSE:
  Every failure that crosses a package boundary is an *Error carrying a
  machine-readable Kind and a human-readable Detail. The HTTP layer maps
  Kind to a status code; the CLI prints Detail.

KINDS:
  validation    malformed or missing input (bad count, unknown part)
  shift_window  report arrived between shifts
  referential   quality data for a shift with no production record
  computation   OEE guard tripped (zero output, non-positive runtime, NaN)
  not_found     lookup returned nothing
  conflict      concurrent update lost after bounded retries

USAGE:
  if production.KindOf(err) == production.KindShiftWindow { ... }
  if errors.Is(err, production.ErrNoProduction) { ... }

SEE ALSO:
  - api/respond.go: Kind to HTTP status
  - shift.ErrNoActiveShift: wrapped by KindShiftWindow errors
*/
package production

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoProduction is the zero-output OEE guard.
	ErrNoProduction = errors.New("no production recorded for this shift/date")

	// ErrNonPositiveRunTime means stoppages consumed the whole planned time.
	ErrNonPositiveRunTime = errors.New("non-positive runtime")

	// ErrInvalidOEE means a factor came out NaN or infinite.
	ErrInvalidOEE = errors.New("invalid OEE computation")

	// ErrNoProductionRecord is returned by quality submission when the
	// shift/date has no ProductionTotal rows.
	ErrNoProductionRecord = errors.New("no production record for shift/date")

	// ErrUnknownPart is returned for part numbers outside the catalog.
	ErrUnknownPart = errors.New("unknown part number")

	// ErrNotFound is the generic missing-row error from stores.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification is returned by stores when a versioned
	// update loses a race. Callers may retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERROR
// =============================================================================

type Kind string

const (
	KindValidation  Kind = "validation"
	KindShiftWindow Kind = "shift_window"
	KindReferential Kind = "referential"
	KindComputation Kind = "computation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindInternal    Kind = "internal"
)

// Error is the structured error returned by services in this package.
type Error struct {
	Kind   Kind
	Op     string // e.g. "reconciler.Record"
	Field  string // offending input field, if any
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Detail
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error. Detail defaults to the wrapped error's text.
func E(kind Kind, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Err: err}
	if err != nil {
		e.Detail = err.Error()
	}
	return e
}

// Validationf builds a validation error for one input field.
func Validationf(op, field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Detail: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConcurrentModification):
		return KindConflict
	}
	return KindInternal
}

// DetailOf returns the human-readable part of err.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Detail != "" {
		return e.Detail
	}
	return err.Error()
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to the caller's input.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindShiftWindow, KindReferential, KindComputation, KindNotFound:
		return true
	}
	return false
}
