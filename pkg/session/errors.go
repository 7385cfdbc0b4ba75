package session

import "errors"

// Session errors.
var (
	// ErrNotConfigured is returned when session persistence is used but
	// no store was configured on the app.
	ErrNotConfigured = errors.New("session: not configured")

	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session: not found")

	// ErrExpired is returned when a session has expired.
	ErrExpired = errors.New("session: expired")

	// ErrInvalidToken is returned when a session token is invalid.
	ErrInvalidToken = errors.New("session: invalid token")

	// ErrNullSession is returned when a write is attempted on a null
	// session, one that exists only because no secret key is set.
	ErrNullSession = errors.New("session: writes unavailable without a secret key")
)
