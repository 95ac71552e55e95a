package rate

import "errors"

var (
	// ErrInvalidLimit is returned when limit or window is not positive.
	ErrInvalidLimit = errors.New("invalid rate limit")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
