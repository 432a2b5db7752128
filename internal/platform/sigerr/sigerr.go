package sigerr

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrLocked means another worker holds the task lock.
	ErrLocked = errors.New("task lock held")
	// ErrNoProxy means the proxy pool has no working proxies left.
	ErrNoProxy = errors.New("no working proxy available")
)
