// Package apperr defines the failure taxonomy shared by the connectors and
// the workflow: configuration problems, location-service misses, upstream API
// failures, enrichment failures, and LLM schema violations.
package apperr

import (
	"errors"
	"fmt"
)

// Kind names a failure class. Kinds double as Temporal application-error
// types so the workflow's retry policy can distinguish them.
type Kind string

const (
	KindConfiguration      Kind = "ConfigurationError"
	KindGeocoding          Kind = "GeocodingError"
	KindAddressSearch      Kind = "AddressSearchError"
	KindExternalAPI        Kind = "ExternalAPIError"
	KindPropertyEnrichment Kind = "PropertyEnrichmentError"
	KindSchema             Kind = "SchemaError"
)

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a classification to an underlying error.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the classification of err, or "" when unclassified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Is supports errors.Is matching on the Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NonRetryable reports whether the error class should never be retried.
// Missing credentials won't fix themselves, and a geocoder miss or a
// malformed LLM payload is deterministic for a given input.
func NonRetryable(err error) bool {
	switch KindOf(err) {
	case KindConfiguration, KindGeocoding, KindAddressSearch:
		return true
	default:
		return false
	}
}
