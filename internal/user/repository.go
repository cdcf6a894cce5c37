package user

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/pkondratev/chatwave/internal/db"
	"github.com/pkondratev/chatwave/internal/errs"
)

// Repository is the PostgreSQL-backed account store.
type Repository struct {
	db *db.Database
}

func NewRepository(database *db.Database) *Repository {
	return &Repository{db: database}
}

// CreateUser inserts a new account and fills in the generated id.
func (r *Repository) CreateUser(ctx context.Context, u *User) (*User, error) {
	const q = `INSERT INTO users (username, password) VALUES ($1, $2) RETURNING id`
	if err := r.db.Pool.QueryRow(ctx, q, u.Username, u.Password).Scan(&u.ID); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, errs.ErrAlreadyExists
		}
		return nil, err
	}
	return u, nil
}

// GetUserByUsername looks up an account, including the password hash.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	const q = `SELECT id, username, password FROM users WHERE username = $1`
	u := &User{}
	if err := r.db.Pool.QueryRow(ctx, q, username).Scan(&u.ID, &u.Username, &u.Password); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// SearchUsers matches usernames case-insensitively, capped at 10 rows.
func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	const q = `SELECT id, username, is_online, last_seen FROM users WHERE username ILIKE $1 LIMIT 10`
	rows, err := r.db.Pool.Query(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.IsOnline, &u.LastSeen); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
