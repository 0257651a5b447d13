package access

import "errors"

var (
	// ErrIncompleteIdentity means no scope can be built for the identity. Callers
	// must show no data rather than fall back to a wider scope.
	ErrIncompleteIdentity = errors.New("access: incomplete identity")
	ErrUnauthenticated    = errors.New("access: unauthenticated")
	ErrForbidden          = errors.New("access: forbidden")
	ErrInvalidToken       = errors.New("access: invalid token")
)
