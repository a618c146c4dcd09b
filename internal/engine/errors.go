package engine

import "errors"

// Sentinel errors for the caller-mistake half of the error taxonomy. These
// never create audit rows; denials (geofence, identity) are expected outcomes
// and travel as structured results instead.
var (
	// ErrValidation marks missing or malformed required input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a referenced project, labourer or attempt that does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateCheckIn marks a second check-in for a labourer who already
	// holds a granted check-in for the day.
	ErrDuplicateCheckIn = errors.New("already checked in today")

	// ErrDuplicateCheckOut marks a check-out request when one already exists
	// for the day's check-in.
	ErrDuplicateCheckOut = errors.New("check-out already exists")

	// ErrDenialLocked marks an attempt blocked by an unresolved denial lock;
	// a supervisor must resolve the earlier denial first.
	ErrDenialLocked = errors.New("previous denial awaiting supervisor resolution")
)
