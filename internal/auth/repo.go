package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mpk-pharma/kanha/internal/platform/db"
	"github.com/mpk-pharma/kanha/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, shopName, email, passwordHash string) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

const userColumns = `id, shop_name, email, password_hash, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.ShopName, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, db.Classify(err)
	}
	return &u, nil
}

// FindByEmail fetches a user by email, ignoring case.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// Create inserts a user, or refreshes the shop name and hash of an existing
// email. Seeding relies on this being repeatable.
func (r *PGRepository) Create(ctx context.Context, shopName, email, passwordHash string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `INSERT INTO users (shop_name, email, password_hash) VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE SET shop_name = EXCLUDED.shop_name, password_hash = EXCLUDED.password_hash
RETURNING `+userColumns, shopName, strings.ToLower(strings.TrimSpace(email)), passwordHash))
}

var _ Repository = (*PGRepository)(nil)
