package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/splitbook/splitbook/internal/ledger"
	"github.com/splitbook/splitbook/internal/models"
)

// CreateUser persists a new user to the database.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt == 0 {
		user.CreatedAt = s.now()
	}

	_, err := s.pool.Exec(ctx,
		"INSERT INTO users (id, display_name, email, photo_url, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		user.ID, user.DisplayName, user.Email, user.PhotoURL, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email = $1", email)
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "id = $1", id)
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx,
		"SELECT id, display_name, email, photo_url, password_hash, created_at FROM users WHERE "+where,
		arg,
	).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PhotoURL, &user.PasswordHash, &user.CreatedAt)
	if isNoRows(err) {
		return nil, ledger.NotFoundf("user %v", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
