package snapcache

import "errors"

// ErrInvalidDays is returned for a non-positive trend window.
var ErrInvalidDays = errors.New("trend window must be positive")
