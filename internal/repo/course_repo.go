package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/presqr/server/internal/model"
)

// CourseRepo defines the interface for course repository operations
type CourseRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Course, error)
	GetOrCreateByCode(ctx context.Context, c model.Course) (model.Course, error)
	AddStudent(ctx context.Context, courseID, studentID uuid.UUID) error
}

type courseRepo struct {
	db *sql.DB
}

// NewCourseRepo creates a new CourseRepo instance
func NewCourseRepo(db *sql.DB) CourseRepo {
	return &courseRepo{db: db}
}

const selectCourse = `
	SELECT c.id, c.course_code, c.course_name, c.description,
	       COALESCE(c.lecturer_id::text, ''), c.created_at,
	       COALESCE(array_agg(cs.student_id::text) FILTER (WHERE cs.student_id IS NOT NULL), '{}')
	FROM courses c
	LEFT JOIN course_students cs ON cs.course_id = c.id
`

// GetByID retrieves a course together with its roster
func (r *courseRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Course, error) {
	return r.getOne(ctx, selectCourse+` WHERE c.id = $1 GROUP BY c.id`, id)
}

// GetOrCreateByCode inserts the course unless its code exists, then returns the stored row
func (r *courseRepo) GetOrCreateByCode(ctx context.Context, c model.Course) (model.Course, error) {
	var lecturerID *uuid.UUID
	if c.LecturerID != uuid.Nil {
		lecturerID = &c.LecturerID
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO courses (course_code, course_name, description, lecturer_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (course_code) DO NOTHING
	`, c.Code, c.Name, c.Description, lecturerID)
	if err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			return model.Course{}, fmt.Errorf("lecturer %s: %w", c.LecturerID, ErrNotFound)
		}
		return model.Course{}, fmt.Errorf("failed to insert course: %w", err)
	}

	return r.getOne(ctx, selectCourse+` WHERE c.course_code = $1 GROUP BY c.id`, c.Code)
}

// AddStudent enrolls a student in the course roster; enrolling twice is a no-op
func (r *courseRepo) AddStudent(ctx context.Context, courseID, studentID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO course_students (course_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, courseID, studentID)
	if err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			return fmt.Errorf("course or student: %w", ErrNotFound)
		}
		return fmt.Errorf("failed to enroll student: %w", err)
	}
	return nil
}

func (r *courseRepo) getOne(ctx context.Context, query string, arg any) (model.Course, error) {
	var (
		course     model.Course
		lecturerID string
		studentIDs []string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&course.ID,
		&course.Code,
		&course.Name,
		&course.Description,
		&lecturerID,
		&course.CreatedAt,
		pq.Array(&studentIDs),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Course{}, fmt.Errorf("course: %w", ErrNotFound)
		}
		return model.Course{}, fmt.Errorf("failed to query course: %w", err)
	}

	if lecturerID != "" {
		course.LecturerID, err = uuid.Parse(lecturerID)
		if err != nil {
			return model.Course{}, fmt.Errorf("failed to parse lecturer ID: %w", err)
		}
	}
	course.StudentIDs = make([]uuid.UUID, 0, len(studentIDs))
	for _, s := range studentIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return model.Course{}, fmt.Errorf("failed to parse student ID: %w", err)
		}
		course.StudentIDs = append(course.StudentIDs, id)
	}
	return course, nil
}
