// Command seed creates a demo lecturer, student and course for local development.
// Running it twice is harmless.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/presqr/server/internal/db"
	"github.com/presqr/server/internal/model"
	"github.com/presqr/server/internal/repo"
)

func main() {
	_ = godotenv.Load(".env")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Open(ctx, databaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	users := repo.NewUserRepo(database)
	courses := repo.NewCourseRepo(database)

	lecturer, err := users.GetOrCreateByEmail(ctx, model.User{
		FirstName: "Maria",
		LastName:  "Santos",
		Email:     "lecturer@presqr.local",
		Role:      model.RoleLecturer,
	})
	if err != nil {
		log.Fatalf("Failed to seed lecturer: %v", err)
	}

	student, err := users.GetOrCreateByEmail(ctx, model.User{
		FirstName: "Juan",
		LastName:  "Dela Cruz",
		IDNumber:  "2024-00001",
		Email:     "student@presqr.local",
		Role:      model.RoleStudent,
	})
	if err != nil {
		log.Fatalf("Failed to seed student: %v", err)
	}

	course, err := courses.GetOrCreateByCode(ctx, model.Course{
		Code:        "CS101",
		Name:        "Introduction to Computing",
		Description: "Demo course",
		LecturerID:  lecturer.ID,
	})
	if err != nil {
		log.Fatalf("Failed to seed course: %v", err)
	}

	if err := courses.AddStudent(ctx, course.ID, student.ID); err != nil {
		log.Fatalf("Failed to enroll student: %v", err)
	}

	log.Printf("lecturer %s (%s)", lecturer.ID, lecturer.Email)
	log.Printf("student  %s (%s)", student.ID, student.IDNumber)
	log.Printf("course   %s (%s)", course.ID, course.Code)
}
