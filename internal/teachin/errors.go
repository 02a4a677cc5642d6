package teachin

import "errors"

var (
	// ErrSessionActive is returned when activating while a session is
	// already listening or awaiting confirmation.
	ErrSessionActive = errors.New("teachin: session already active")

	// ErrNoActiveSession is returned when cancelling without a session
	// in progress.
	ErrNoActiveSession = errors.New("teachin: no active session")

	// ErrNoCandidate is returned when confirming without a candidate
	// awaiting confirmation.
	ErrNoCandidate = errors.New("teachin: no candidate awaiting confirmation")

	// ErrInvalidWindow is returned when activating with a non-positive
	// listening window.
	ErrInvalidWindow = errors.New("teachin: invalid listening window")
)
