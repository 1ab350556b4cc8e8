package model

import (
	"time"

	"github.com/google/uuid"
)

// Role values stored in users.role
const (
	RoleAdmin    = "admin"
	RoleLecturer = "lecturer"
	RoleStudent  = "student"
)

// User represents an admin, lecturer or student account
type User struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	IDNumber  string
	Email     string
	Role      string
	CreatedAt time.Time
}

// Course is a teaching unit owned by at most one lecturer
type Course struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Description string
	LecturerID  uuid.UUID
	StudentIDs  []uuid.UUID
	CreatedAt   time.Time
}

// Scan is one student's attendance mark within a session
type Scan struct {
	StudentID uuid.UUID
	ScannedAt time.Time
}

// AttendanceSession is a time-bounded window during which scans for a course are accepted.
// Token is the signed payload distributed to students as a QR code.
type AttendanceSession struct {
	ID          uuid.UUID
	CourseID    uuid.UUID
	LecturerID  uuid.UUID
	Token       string
	GeneratedAt time.Time
	ExpiresAt   time.Time
	Scans       []Scan
}

// Student holds the display fields shown next to a scan
type Student struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	IDNumber  string
}

// ScanDetail is a scan joined with the scanning student's display fields
type ScanDetail struct {
	Student   Student
	ScannedAt time.Time
}

// SessionDetail is the lecturer read model of a session
type SessionDetail struct {
	ID          uuid.UUID
	CourseID    uuid.UUID
	LecturerID  uuid.UUID
	Token       string
	GeneratedAt time.Time
	ExpiresAt   time.Time
	Scans       []ScanDetail
}
