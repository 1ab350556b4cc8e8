// Package attendance implements the QR attendance session protocol: issuing
// time-bounded session tokens and recording each student's scan at most once.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/presqr/server/internal/clock"
	"github.com/presqr/server/internal/model"
	"github.com/presqr/server/internal/repo"
)

// SessionTTL is how long a generated session accepts scans
const SessionTTL = 60 * time.Minute

// CourseStore reads courses
type CourseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Course, error)
}

// UserStore reads users
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
}

// SessionStore persists sessions and scans. See repo.SessionRepo.
type SessionStore interface {
	CreateOrReuseActive(ctx context.Context, candidate model.AttendanceSession) (model.AttendanceSession, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.AttendanceSession, error)
	AppendScan(ctx context.Context, sessionID, studentID uuid.UUID, at time.Time) (model.Scan, error)
	ListByCourse(ctx context.Context, courseID uuid.UUID) ([]model.SessionDetail, error)
}

// Notifier is told about every recorded scan
type Notifier interface {
	Notify(courseID string)
}

// Recorder counts protocol outcomes
type Recorder interface {
	SessionGenerated(reused bool)
	ScanAttempted(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) SessionGenerated(bool) {}
func (noopRecorder) ScanAttempted(string) {}

// Service orchestrates session generation and scan recording
type Service struct {
	courses  CourseStore
	users    UserStore
	sessions SessionStore
	codec    *TokenCodec
	clock    clock.Clock
	notifier Notifier
	metrics  Recorder
}

// NewService creates a new attendance service. metrics may be nil.
func NewService(
	courses CourseStore,
	users UserStore,
	sessions SessionStore,
	codec *TokenCodec,
	clk clock.Clock,
	notifier Notifier,
	metrics Recorder,
) *Service {
	if metrics == nil {
		metrics = noopRecorder{}
	}
	return &Service{
		courses:  courses,
		users:    users,
		sessions: sessions,
		codec:    codec,
		clock:    clk,
		notifier: notifier,
		metrics:  metrics,
	}
}

// GenerateOrReuseSession returns the course's open session if there is one, otherwise a
// new session valid for SessionTTL from now. Only the course's lecturer may call it.
func (s *Service) GenerateOrReuseSession(ctx context.Context, courseID, lecturerID uuid.UUID) (model.AttendanceSession, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return model.AttendanceSession{}, mapStoreError("course", err)
	}
	// A course without an owner accepts no lecturer
	if course.LecturerID == uuid.Nil || course.LecturerID != lecturerID {
		return model.AttendanceSession{}, ErrUnauthorized
	}

	// Millisecond precision so the token and the stored row agree
	now := s.clock.Now().Truncate(time.Millisecond)
	candidate := model.AttendanceSession{
		ID:          uuid.New(),
		CourseID:    course.ID,
		LecturerID:  lecturerID,
		GeneratedAt: now,
		ExpiresAt:   now.Add(SessionTTL),
	}
	candidate.Token, err = s.codec.Encode(TokenPayload{
		SessionID:   candidate.ID,
		CourseID:    course.ID,
		CourseCode:  course.Code,
		CourseName:  course.Name,
		GeneratedAt: candidate.GeneratedAt,
		ExpiresAt:   candidate.ExpiresAt,
	})
	if err != nil {
		return model.AttendanceSession{}, err
	}

	session, reused, err := s.sessions.CreateOrReuseActive(ctx, candidate)
	if err != nil {
		return model.AttendanceSession{}, mapStoreError("session", err)
	}
	s.metrics.SessionGenerated(reused)

	loc := now.Location()
	session.GeneratedAt = session.GeneratedAt.In(loc)
	session.ExpiresAt = session.ExpiresAt.In(loc)
	return session, nil
}

// RecordScan validates rawToken and appends the student's scan to its session.
// On success the course's live listeners are notified.
func (s *Service) RecordScan(ctx context.Context, rawToken string, studentID uuid.UUID) (model.Scan, error) {
	scan, courseID, err := s.recordScan(ctx, rawToken, studentID)
	s.metrics.ScanAttempted(ScanOutcome(err))
	if err != nil {
		return model.Scan{}, err
	}
	s.notifier.Notify(courseID.String())
	return scan, nil
}

func (s *Service) recordScan(ctx context.Context, rawToken string, studentID uuid.UUID) (model.Scan, uuid.UUID, error) {
	payload, err := s.codec.Decode(rawToken)
	if err != nil {
		return model.Scan{}, uuid.Nil, err
	}

	now := s.clock.Now()
	if !now.Before(payload.ExpiresAt) {
		return model.Scan{}, uuid.Nil, ErrSessionExpired
	}

	session, err := s.sessions.GetByID(ctx, payload.SessionID)
	if err != nil {
		return model.Scan{}, uuid.Nil, mapStoreError("session", err)
	}
	if session.CourseID != payload.CourseID {
		return model.Scan{}, uuid.Nil, fmt.Errorf("session %s for course %s: %w", payload.SessionID, payload.CourseID, ErrNotFound)
	}
	if !now.Before(session.ExpiresAt) {
		return model.Scan{}, uuid.Nil, ErrSessionExpired
	}

	student, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		return model.Scan{}, uuid.Nil, mapStoreError("student", err)
	}
	if student.Role != model.RoleStudent {
		return model.Scan{}, uuid.Nil, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}

	scan, err := s.sessions.AppendScan(ctx, session.ID, studentID, now)
	if err != nil {
		return model.Scan{}, uuid.Nil, mapStoreError("scan", err)
	}
	scan.ScannedAt = scan.ScannedAt.In(now.Location())
	return scan, session.CourseID, nil
}

// CourseSessions lists every session of the course, most recent first.
// An unknown course has no sessions.
func (s *Service) CourseSessions(ctx context.Context, courseID uuid.UUID) ([]model.SessionDetail, error) {
	sessions, err := s.sessions.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, mapStoreError("sessions", err)
	}
	loc := s.clock.Now().Location()
	for i := range sessions {
		sessions[i].GeneratedAt = sessions[i].GeneratedAt.In(loc)
		sessions[i].ExpiresAt = sessions[i].ExpiresAt.In(loc)
		for j := range sessions[i].Scans {
			sessions[i].Scans[j].ScannedAt = sessions[i].Scans[j].ScannedAt.In(loc)
		}
	}
	return sessions, nil
}

// Session returns a single session by ID
func (s *Service) Session(ctx context.Context, id uuid.UUID) (model.AttendanceSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return model.AttendanceSession{}, mapStoreError("session", err)
	}
	return session, nil
}

// ScanOutcome is the metrics label for a RecordScan result
func ScanOutcome(err error) string {
	switch {
	case err == nil:
		return "recorded"
	case errors.Is(err, ErrDuplicateScan):
		return "duplicate"
	case errors.Is(err, ErrSessionExpired):
		return "expired"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func mapStoreError(what string, err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, repo.ErrDuplicateScan):
		return ErrDuplicateScan
	case errors.Is(err, repo.ErrSessionClosed):
		return ErrSessionExpired
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
