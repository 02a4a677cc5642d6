package eep

import "errors"

// Domain-specific errors for profile operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMalformedDictionary is returned when the EEP dictionary fails to
	// parse or a profile fails structural validation. Fatal at startup.
	ErrMalformedDictionary = errors.New("eep: malformed dictionary")

	// ErrDuplicateProfile is returned when two profiles share a
	// RORG-FUNC-TYPE triple. Fatal at startup, user error via Define.
	ErrDuplicateProfile = errors.New("eep: duplicate profile id")

	// ErrUnknownProfile is returned when a lookup names a triple the
	// store has never seen.
	ErrUnknownProfile = errors.New("eep: unknown profile")

	// ErrUnknownBaseProfile is returned when an override proposal names a
	// base profile that does not exist. No override record is created.
	ErrUnknownBaseProfile = errors.New("eep: unknown base profile")

	// ErrUnknownVersion is returned when a revert names a version that is
	// not among the retained override generations.
	ErrUnknownVersion = errors.New("eep: unknown override version")

	// ErrInvalidProfileID is returned when a profile id string cannot be
	// parsed as RR-FF-TT hex.
	ErrInvalidProfileID = errors.New("eep: invalid profile id")
)
