package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrUnsupportedDriver = errors.New("unsupported store driver")
	ErrInvalidBenchmark  = errors.New("invalid benchmark record")
)
