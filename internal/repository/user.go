package repository

import (
	"context"

	"rental/internal/domain"
)

// UserRepository defines the read operations for users.
type UserRepository interface {
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)
}
