package comparative

import "errors"

var (
	// ErrInvalidLimit is returned for a non-positive top-performer limit.
	ErrInvalidLimit = errors.New("invalid limit")
	// ErrUnknownMetric is returned by Distribution for an unknown metric.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrEmptyKey is returned when a journal id or expertise area is empty.
	ErrEmptyKey = errors.New("empty benchmark key")
)
