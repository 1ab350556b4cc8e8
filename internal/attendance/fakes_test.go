package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/presqr/server/internal/model"
	"github.com/presqr/server/internal/repo"
)

// memStore mirrors the PostgreSQL repos closely enough for service tests
type memStore struct {
	mu       sync.Mutex
	courses  map[uuid.UUID]model.Course
	users    map[uuid.UUID]model.User
	sessions map[uuid.UUID]*model.AttendanceSession
}

func newMemStore() *memStore {
	return &memStore{
		courses:  map[uuid.UUID]model.Course{},
		users:    map[uuid.UUID]model.User{},
		sessions: map[uuid.UUID]*model.AttendanceSession{},
	}
}

func (m *memStore) addUser(role string) model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := model.User{ID: uuid.New(), FirstName: "First", LastName: role, IDNumber: "ID-" + role, Role: role}
	m.users[u.ID] = u
	return u
}

func (m *memStore) addCourse(lecturerID uuid.UUID) model.Course {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := model.Course{ID: uuid.New(), Code: "CS101", Name: "Intro", LecturerID: lecturerID}
	m.courses[c.ID] = c
	return c
}

type courseStore struct{ *memStore }

func (s courseStore) GetByID(_ context.Context, id uuid.UUID) (model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return model.Course{}, repo.ErrNotFound
	}
	return c, nil
}

type userStore struct{ *memStore }

func (s userStore) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return u, nil
}

type sessionStore struct{ *memStore }

func (s sessionStore) CreateOrReuseActive(_ context.Context, c model.AttendanceSession) (model.AttendanceSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[c.CourseID]; !ok {
		return model.AttendanceSession{}, false, repo.ErrNotFound
	}
	var latest *model.AttendanceSession
	for _, existing := range s.sessions {
		if existing.CourseID != c.CourseID || !existing.ExpiresAt.After(c.GeneratedAt) {
			continue
		}
		if latest == nil || existing.GeneratedAt.After(latest.GeneratedAt) {
			latest = existing
		}
	}
	if latest != nil {
		return copySession(latest), true, nil
	}
	stored := c
	stored.Scans = []model.Scan{}
	s.sessions[c.ID] = &stored
	return copySession(&stored), false, nil
}

func (s sessionStore) GetByID(_ context.Context, id uuid.UUID) (model.AttendanceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return model.AttendanceSession{}, repo.ErrNotFound
	}
	return copySession(session), nil
}

func (s sessionStore) AppendScan(_ context.Context, sessionID, studentID uuid.UUID, at time.Time) (model.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return model.Scan{}, repo.ErrNotFound
	}
	if _, ok := s.users[studentID]; !ok {
		return model.Scan{}, repo.ErrNotFound
	}
	for _, sc := range session.Scans {
		if sc.StudentID == studentID {
			return model.Scan{}, repo.ErrDuplicateScan
		}
	}
	if at.Before(session.GeneratedAt) || !at.Before(session.ExpiresAt) {
		return model.Scan{}, repo.ErrSessionClosed
	}
	scan := model.Scan{StudentID: studentID, ScannedAt: at}
	session.Scans = append(session.Scans, scan)
	return scan, nil
}

func (s sessionStore) ListByCourse(_ context.Context, courseID uuid.UUID) ([]model.SessionDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.SessionDetail{}
	for _, session := range s.sessions {
		if session.CourseID != courseID {
			continue
		}
		d := model.SessionDetail{
			ID:          session.ID,
			CourseID:    session.CourseID,
			LecturerID:  session.LecturerID,
			Token:       session.Token,
			GeneratedAt: session.GeneratedAt.UTC(),
			ExpiresAt:   session.ExpiresAt.UTC(),
			Scans:       []model.ScanDetail{},
		}
		for _, sc := range session.Scans {
			u := s.users[sc.StudentID]
			d.Scans = append(d.Scans, model.ScanDetail{
				Student:   model.Student{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, IDNumber: u.IDNumber},
				ScannedAt: sc.ScannedAt.UTC(),
			})
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	return out, nil
}

func copySession(s *model.AttendanceSession) model.AttendanceSession {
	c := *s
	c.Scans = append([]model.Scan{}, s.Scans...)
	return c
}

type countingNotifier struct {
	mu    sync.Mutex
	calls map[string]int
}

func (n *countingNotifier) Notify(courseID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = map[string]int{}
	}
	n.calls[courseID]++
}

func (n *countingNotifier) count(courseID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[courseID]
}

type countingRecorder struct {
	mu       sync.Mutex
	reused   int
	created  int
	outcomes map[string]int
}

func (r *countingRecorder) SessionGenerated(reused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reused {
		r.reused++
	} else {
		r.created++
	}
}

func (r *countingRecorder) ScanAttempted(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[outcome]++
}
