package repo

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a referenced row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicateScan is returned when the student already has a scan in the session
	ErrDuplicateScan = errors.New("duplicate scan")
	// ErrSessionClosed is returned when a scan falls outside the session window
	ErrSessionClosed = errors.New("session closed")
)

const pqForeignKeyViolation = "23503"

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
