package attendance

import "errors"

var (
	// ErrNotFound: the course, session or student does not exist
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized: the lecturer does not own the course
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformedToken: the scanned payload cannot be verified or parsed
	ErrMalformedToken = errors.New("malformed token")
	// ErrSessionExpired: the scan happened at or after the session's expiry
	ErrSessionExpired = errors.New("session expired")
	// ErrDuplicateScan: the student already scanned this session
	ErrDuplicateScan = errors.New("duplicate scan")
)
