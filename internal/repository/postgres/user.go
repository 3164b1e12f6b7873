package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"rental/internal/domain"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	q Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{q: db}
}

// NewUserRepositoryWithTx creates a user repository using a transaction.
func NewUserRepositoryWithTx(tx *sqlx.Tx) *UserRepository {
	return &UserRepository{q: tx}
}

type userRow struct {
	ID        string         `db:"id"`
	FirstName string         `db:"first_name"`
	LastName  string         `db:"last_name"`
	Email     string         `db:"email"`
	Phone     sql.NullString `db:"phone"`
	City      sql.NullString `db:"city"`
	Tier      sql.NullString `db:"tier"`
	CreatedAt time.Time      `db:"created_at"`
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, first_name, last_name, email, phone, city, tier, created_at FROM users WHERE id = $1`

	var row userRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, id); err != nil {
		return nil, mapError(err)
	}

	return &domain.User{
		ID:        row.ID,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Email:     row.Email,
		Phone:     row.Phone.String,
		City:      row.City.String,
		Tier:      row.Tier.String,
		CreatedAt: row.CreatedAt,
	}, nil
}
