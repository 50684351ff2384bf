package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ganaxdar/autorifa/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminRepository handles persistence for back-office users.
type AdminRepository struct {
	db *pgxpool.Pool
}

// NewAdminRepository constructs an AdminRepository.
func NewAdminRepository(db *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{db: db}
}

// GetByEmail returns the admin user with the given email or ErrNotFound.
func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*model.AdminUser, error) {
	var u model.AdminUser
	err := r.db.QueryRow(ctx,
		`SELECT id, email, password_hash, role, created_at
		 FROM admin_users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin user: %w", err)
	}
	return &u, nil
}

// Create inserts a new admin user. The email is unique; racing creates
// resolve through the constraint.
func (r *AdminRepository) Create(ctx context.Context, email, passwordHash, role string) (*model.AdminUser, error) {
	u := &model.AdminUser{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO admin_users (id, email, password_hash, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		u.ID, u.Email, u.PasswordHash, u.Role,
	).Scan(&u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert admin user: %w", err)
	}
	return u, nil
}
