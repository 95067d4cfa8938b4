package service

import "errors"

var (
	// ErrUpdateInProgress is returned when the same player, or the same
	// requester, already has an update running.
	ErrUpdateInProgress = errors.New("an update is already in progress")
	// ErrNotStarted is returned when the service is used before Start or after Stop.
	ErrNotStarted = errors.New("service not started")
	// ErrEmptyID is returned for an update without a player name or id.
	ErrEmptyID = errors.New("player name or id is empty")
)
