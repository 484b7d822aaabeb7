// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup and user directory queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE Postgres reports for a UNIQUE constraint failure.
const uniqueViolation = "23505"

// userColumns is the column list every user query selects, in scanUser order.
const userColumns = "id, username, email, first_name, last_name, password_hash, created_at, updated_at"

// The store used by program to connect with Postgres db
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates and returns a verified connection pool
// to PostgreSQL wrapped in a store.
// Call once at startup from main.go...the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	// Ping db to make sure connection works
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool and releases all resources.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CheckHealth pings Postgres.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// scanUser reads one users row in userColumns order.
func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// translateWriteErr maps unique violations to ErrUsernameTaken; other errors pass through.
func translateWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrUsernameTaken
	}
	return err
}

// CreateUser inserts a new user and returns the generated id.
// The caller has to produce the password hash BEFORE calling this.
// Returns ErrUsernameTaken when username or email already exists.
func (s *PostgresStore) CreateUser(ctx context.Context, u *User) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, first_name, last_name, password_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating user: %w", translateWriteErr(err))
	}
	return id, nil
}

// GetUserByID fetches a user by primary key. Returns ErrUserNotFound if absent.
func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

// GetUserByUsername fetches a user by exact username. Returns ErrUserNotFound if absent.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username))
}

// GetUserByEmail fetches a user by email, case-insensitively. Returns ErrUserNotFound if absent.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE lower(email) = lower($1)", email))
}

// ListUsers returns every user ordered by id.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// UpdateUser applies the non-nil fields of upd to user id and bumps updated_at.
// Returns ErrUserNotFound if no such user, ErrUsernameTaken on a unique violation.
func (s *PostgresStore) UpdateUser(ctx context.Context, id int64, upd UserUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET
			username      = COALESCE($2, username),
			email         = COALESCE($3, email),
			first_name    = COALESCE($4, first_name),
			last_name     = COALESCE($5, last_name),
			password_hash = COALESCE($6, password_hash),
			updated_at    = now()
		 WHERE id = $1`,
		id, upd.Username, upd.Email, upd.FirstName, upd.LastName, upd.PasswordHash)
	if err != nil {
		return fmt.Errorf("updating user: %w", translateWriteErr(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes user id. Returns ErrUserNotFound if no such user.
func (s *PostgresStore) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
