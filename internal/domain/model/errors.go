package model

import "errors"

// Sentinel errors shared across layers.
var (
	ErrRefereeNotFound = errors.New("referee not found")
	ErrInvalidEvent    = errors.New("invalid review event")
)
