package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/presqr/server/internal/model"
)

// SessionRepo is the durable store of attendance sessions and their scans
type SessionRepo interface {
	CreateOrReuseActive(ctx context.Context, candidate model.AttendanceSession) (session model.AttendanceSession, reused bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (model.AttendanceSession, error)
	AppendScan(ctx context.Context, sessionID, studentID uuid.UUID, at time.Time) (model.Scan, error)
	ListByCourse(ctx context.Context, courseID uuid.UUID) ([]model.SessionDetail, error)
}

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

// CreateOrReuseActive returns the course's session that is still open at candidate.GeneratedAt,
// or persists candidate if there is none. Callers for the same course are serialised by an
// advisory lock so at most one open session exists per course.
func (r *sessionRepo) CreateOrReuseActive(ctx context.Context, candidate model.AttendanceSession) (model.AttendanceSession, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.AttendanceSession{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Released on COMMIT/ROLLBACK
	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(2, hashtext($1))`, candidate.CourseID.String())
	if err != nil {
		return model.AttendanceSession{}, false, fmt.Errorf("advisory lock: %w", err)
	}

	existing, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT id, course_id, lecturer_id, qr_data, generated_at, expires_at
		FROM attendance_sessions
		WHERE course_id = $1 AND expires_at > $2
		ORDER BY generated_at DESC
		LIMIT 1
	`, candidate.CourseID, candidate.GeneratedAt))
	switch {
	case err == nil:
		existing.Scans, err = listScans(ctx, tx, existing.ID)
		if err != nil {
			return model.AttendanceSession{}, false, err
		}
		if err := tx.Commit(); err != nil {
			return model.AttendanceSession{}, false, fmt.Errorf("commit: %w", err)
		}
		return existing, true, nil
	case !errors.Is(err, ErrNotFound):
		return model.AttendanceSession{}, false, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_sessions (id, course_id, lecturer_id, qr_data, generated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, candidate.ID, candidate.CourseID, candidate.LecturerID, candidate.Token, candidate.GeneratedAt, candidate.ExpiresAt)
	if err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			return model.AttendanceSession{}, false, fmt.Errorf("course or lecturer: %w", ErrNotFound)
		}
		return model.AttendanceSession{}, false, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.AttendanceSession{}, false, fmt.Errorf("commit: %w", err)
	}

	candidate.Scans = []model.Scan{}
	return candidate, false, nil
}

// GetByID returns a session with its scans in append order
func (r *sessionRepo) GetByID(ctx context.Context, id uuid.UUID) (model.AttendanceSession, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx, `
		SELECT id, course_id, lecturer_id, qr_data, generated_at, expires_at
		FROM attendance_sessions
		WHERE id = $1
	`, id))
	if err != nil {
		return model.AttendanceSession{}, err
	}
	session.Scans, err = listScans(ctx, r.db, id)
	if err != nil {
		return model.AttendanceSession{}, err
	}
	return session, nil
}

// AppendScan records the student's scan if the session is open at `at` and the student has
// not scanned it yet. The check and the insert are a single statement; the unique
// (session_id, student_id) constraint decides concurrent duplicates.
func (r *sessionRepo) AppendScan(ctx context.Context, sessionID, studentID uuid.UUID, at time.Time) (model.Scan, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_scans (session_id, student_id, scanned_at)
		SELECT s.id, $2, $3
		FROM attendance_sessions s
		WHERE s.id = $1 AND s.generated_at <= $3 AND s.expires_at > $3
		ON CONFLICT (session_id, student_id) DO NOTHING
		RETURNING seq
	`, sessionID, studentID, at).Scan(&seq)
	if err == nil {
		return model.Scan{StudentID: studentID, ScannedAt: at}, nil
	}
	if pqCode(err) == pqForeignKeyViolation {
		return model.Scan{}, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Scan{}, fmt.Errorf("insert scan: %w", err)
	}

	// Nothing inserted: tell duplicate, closed window and missing session apart
	var scanned, sessionExists bool
	err = r.db.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM attendance_scans WHERE session_id = $1 AND student_id = $2),
			EXISTS (SELECT 1 FROM attendance_sessions WHERE id = $1)
	`, sessionID, studentID).Scan(&scanned, &sessionExists)
	if err != nil {
		return model.Scan{}, fmt.Errorf("classify rejected scan: %w", err)
	}
	switch {
	case scanned:
		return model.Scan{}, ErrDuplicateScan
	case !sessionExists:
		return model.Scan{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	default:
		return model.Scan{}, ErrSessionClosed
	}
}

// ListByCourse returns every session of the course, most recent first, with scans joined to
// the scanning students' display fields
func (r *sessionRepo) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]model.SessionDetail, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, course_id, lecturer_id, qr_data, generated_at, expires_at
		FROM attendance_sessions
		WHERE course_id = $1
		ORDER BY generated_at DESC
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.SessionDetail{}
	index := map[uuid.UUID]int{}
	ids := []string{}
	for rows.Next() {
		var s model.SessionDetail
		if err := rows.Scan(&s.ID, &s.CourseID, &s.LecturerID, &s.Token, &s.GeneratedAt, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		s.Scans = []model.ScanDetail{}
		index[s.ID] = len(sessions)
		sessions = append(sessions, s)
		ids = append(ids, s.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	if len(sessions) == 0 {
		return sessions, nil
	}

	scanRows, err := r.db.QueryContext(ctx, `
		SELECT sc.session_id, u.id, u.first_name, u.last_name, COALESCE(u.id_number, ''), sc.scanned_at
		FROM attendance_scans sc
		JOIN users u ON u.id = sc.student_id
		WHERE sc.session_id = ANY($1::uuid[])
		ORDER BY sc.seq
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer scanRows.Close()

	for scanRows.Next() {
		var (
			sessionID uuid.UUID
			d         model.ScanDetail
		)
		if err := scanRows.Scan(&sessionID, &d.Student.ID, &d.Student.FirstName, &d.Student.LastName, &d.Student.IDNumber, &d.ScannedAt); err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		i := index[sessionID]
		sessions[i].Scans = append(sessions[i].Scans, d)
	}
	if err := scanRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return sessions, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listScans(ctx context.Context, q queryer, sessionID uuid.UUID) ([]model.Scan, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT student_id, scanned_at
		FROM attendance_scans
		WHERE session_id = $1
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	scans := []model.Scan{}
	for rows.Next() {
		var s model.Scan
		if err := rows.Scan(&s.StudentID, &s.ScannedAt); err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		scans = append(scans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return scans, nil
}

func scanSession(row *sql.Row) (model.AttendanceSession, error) {
	var s model.AttendanceSession
	err := row.Scan(&s.ID, &s.CourseID, &s.LecturerID, &s.Token, &s.GeneratedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AttendanceSession{}, fmt.Errorf("session: %w", ErrNotFound)
		}
		return model.AttendanceSession{}, fmt.Errorf("query session: %w", err)
	}
	return s, nil
}
