package repository

import "errors"

// Sentinel errors for store lookups.
var (
	ErrNotFound = errors.New("player not found")
	ErrNoID     = errors.New("player id is empty")
)
