package tests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/presqr/server/internal/db"
	"github.com/presqr/server/internal/model"
	"github.com/presqr/server/internal/repo"
)

// RunMigrations applies the embedded goose migrations.
func RunMigrations(database *sql.DB) error {
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// TruncateAttendanceTables truncates every table for a clean test state.
func TruncateAttendanceTables(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, "TRUNCATE TABLE attendance_scans, attendance_sessions, course_students, courses, users RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate attendance tables: %w", err)
	}
	return nil
}

// Fixture is a lecturer owning one course, plus enrolled students.
type Fixture struct {
	Lecturer model.User
	Course   model.Course
	Students []model.User
}

// SeedFixture creates a lecturer, a course they own and n enrolled students.
func SeedFixture(ctx context.Context, database *sql.DB, n int) (Fixture, error) {
	users := repo.NewUserRepo(database)
	courses := repo.NewCourseRepo(database)
	suffix := uuid.NewString()[:8]

	var f Fixture
	var err error
	f.Lecturer, err = users.GetOrCreateByEmail(ctx, model.User{
		FirstName: "Lec",
		LastName:  suffix,
		Email:     "lecturer-" + suffix + "@test.local",
		Role:      model.RoleLecturer,
	})
	if err != nil {
		return Fixture{}, fmt.Errorf("seed lecturer: %w", err)
	}

	f.Course, err = courses.GetOrCreateByCode(ctx, model.Course{
		Code:       "T-" + suffix,
		Name:       "Test course " + suffix,
		LecturerID: f.Lecturer.ID,
	})
	if err != nil {
		return Fixture{}, fmt.Errorf("seed course: %w", err)
	}

	for i := 0; i < n; i++ {
		s, err := users.GetOrCreateByEmail(ctx, model.User{
			FirstName: "Student",
			LastName:  fmt.Sprintf("%d", i),
			IDNumber:  fmt.Sprintf("%s-%03d", suffix, i),
			Email:     fmt.Sprintf("student-%s-%d@test.local", suffix, i),
			Role:      model.RoleStudent,
		})
		if err != nil {
			return Fixture{}, fmt.Errorf("seed student %d: %w", i, err)
		}
		if err := courses.AddStudent(ctx, f.Course.ID, s.ID); err != nil {
			return Fixture{}, fmt.Errorf("enroll student %d: %w", i, err)
		}
		f.Students = append(f.Students, s)
	}
	return f, nil
}
