package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/presqr/server/internal/model"
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetOrCreateByEmail(ctx context.Context, u model.User) (model.User, error)
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return r.getOne(ctx, `
		SELECT id, first_name, last_name, COALESCE(id_number, ''), email, role, created_at
		FROM users
		WHERE id = $1
	`, id)
}

// GetOrCreateByEmail inserts the user unless the email is taken, then returns the stored row
func (r *userRepo) GetOrCreateByEmail(ctx context.Context, u model.User) (model.User, error) {
	var idNumber *string
	if u.IDNumber != "" {
		idNumber = &u.IDNumber
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (first_name, last_name, id_number, email, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
	`, u.FirstName, u.LastName, idNumber, u.Email, u.Role)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to insert user: %w", err)
	}

	return r.getOne(ctx, `
		SELECT id, first_name, last_name, COALESCE(id_number, ''), email, role, created_at
		FROM users
		WHERE email = $1
	`, u.Email)
}

func (r *userRepo) getOne(ctx context.Context, query string, arg any) (model.User, error) {
	var user model.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.IDNumber,
		&user.Email,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, fmt.Errorf("user: %w", ErrNotFound)
		}
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}
