package reference

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientFetch marks recoverable fetch failures. The previous snapshot
	// stays in place and the user may retry.
	ErrTransientFetch = errors.New("reference: fetch failed")
	// ErrStaleResponse marks a response superseded by a newer request.
	ErrStaleResponse = errors.New("reference: stale response")
	ErrUnscopedQuery = errors.New("reference: query lacks scope fields")
	ErrNotLoaded     = errors.New("reference: cache not loaded")
	ErrDuplicateID   = errors.New("reference: duplicate id")
	ErrOutsideScope  = errors.New("reference: document outside query scope")
)

// FetchError wraps a failure to load reference data.
type FetchError struct {
	Collection Collection
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("reference: load %s: %v", e.Collection, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrTransientFetch }

// Message is the text shown next to the retry control.
func (e *FetchError) Message() string {
	return fmt.Sprintf("Could not load %s. Try again.", e.Collection)
}
