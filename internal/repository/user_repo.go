package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skumar2006/kalshiparlay/internal/domain"
)

// UserRepository handles all database operations for Users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert inserts a user record, or refreshes the email if the id already
// exists.  Identity-provider webhooks may be delivered more than once, so this
// must be idempotent.
func (r *UserRepository) Upsert(ctx context.Context, tx *sqlx.Tx, u *domain.User) error {
	query := `
		INSERT INTO users (id, email, created_at)
		VALUES (:id, :email, :created_at)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email`
	if _, err := tx.NamedExecContext(ctx, query, u); err != nil {
		return fmt.Errorf("user_repo.Upsert: %w", err)
	}
	return nil
}

// GetByID fetches a user by their identity-provider subject id.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByID: %w", err)
	}
	return &u, nil
}
