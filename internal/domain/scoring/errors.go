package scoring

import "errors"

// ErrUnknownCategory is returned for an unrecognised scoring dimension.
var ErrUnknownCategory = errors.New("unknown category")
