package rate

import "errors"

// ErrRedisUnavailable wraps Redis failures. Allow swallows it and fails open.
var ErrRedisUnavailable = errors.New("redis unavailable")
