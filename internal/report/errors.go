package report

import "errors"

var (
	ErrTransientFetch = errors.New("aggregation fetch failed")
	ErrReportNotFound = errors.New("report not found")
	ErrInvalidRange   = errors.New("invalid date range")
	ErrInvalidMetric  = errors.New("invalid metric")
)

// FetchError carries a backend failure. It matches ErrTransientFetch and
// unwraps to the cause.
type FetchError struct {
	Method string
	Err    error
}

func (e *FetchError) Error() string {
	return ErrTransientFetch.Error() + ": " + e.Method + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrTransientFetch }

// Message is the text shown next to the retry action.
func (e *FetchError) Message() string {
	return "Could not load " + e.Method + ": " + e.Err.Error()
}
