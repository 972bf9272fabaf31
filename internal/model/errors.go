package model

import (
	"errors"
	"fmt"
)

// Error kinds. Adapters and the fetch layer wrap their failures with one of
// these so callers can branch with errors.Is.
var (
	ErrTransientNetwork    = errors.New("transient network error")
	ErrPermanentSource     = errors.New("permanent source error")
	ErrDataIntegrity       = errors.New("data integrity error")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrAllSourcesExhausted = errors.New("all sources exhausted")
)

// SourceError tags a failure with the source that produced it and its kind.
type SourceError struct {
	Source string
	Kind   error
	Err    error
}

func NewSourceError(source string, kind, err error) *SourceError {
	return &SourceError{Source: source, Kind: kind, Err: err}
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindOf returns the error kind carried by err, or nil.
func KindOf(err error) error {
	for _, k := range []error{ErrDataIntegrity, ErrPermanentSource, ErrTransientNetwork, ErrAllSourcesExhausted, ErrInsufficientHistory} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
