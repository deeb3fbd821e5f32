package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

var (
	// ErrUserNotFound indicates no user matched the lookup value.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists indicates a create collided with the unique email
	// constraint.
	ErrUserExists = errors.New("user already exists")
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subject TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	is_admin BOOLEAN NOT NULL DEFAULT false,
	is_active BOOLEAN NOT NULL DEFAULT true,
	issuer TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	last_login_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);

CREATE TABLE IF NOT EXISTS user_groups (
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	group_name TEXT NOT NULL,
	joined_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, group_name)
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	subject TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	is_admin BOOLEAN NOT NULL DEFAULT false,
	is_active BOOLEAN NOT NULL DEFAULT true,
	issuer TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	last_login_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);

CREATE TABLE IF NOT EXISTS user_groups (
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	group_name TEXT NOT NULL,
	joined_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, group_name)
);
`

// SQLStore implements UserStore over database/sql. Both the sqlite3 and
// postgres drivers are supported; placeholders use the $N form, which both
// accept.
type SQLStore struct {
	db           *sql.DB
	defaultGroup string
	now          func() time.Time
}

// NewSQLStore wraps an open database handle. defaultGroup is the group name
// new users are assigned to.
func NewSQLStore(db *sql.DB, defaultGroup string) *SQLStore {
	return &SQLStore{
		db:           db,
		defaultGroup: defaultGroup,
		now:          time.Now,
	}
}

// Open opens a database by driver name ("sqlite3" or "postgres"), applies
// the schema, and returns a ready store.
func Open(driver, dsn, defaultGroup string) (*SQLStore, error) {
	if driver == "sqlite" {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema := sqliteSchema
	if driver == "postgres" {
		schema = postgresSchema
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return NewSQLStore(db, defaultGroup), nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, subject, email, username, first_name, last_name, is_admin, is_active, issuer, created_at, updated_at, last_login_at`

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(&user.ID, &user.Subject, &user.Email, &user.Username,
		&user.FirstName, &user.LastName, &user.IsAdmin, &user.IsActive,
		&user.Issuer, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}

// FindByEmailOrUsername returns the user matching the value on either
// column, email taking precedence.
func (s *SQLStore) FindByEmailOrUsername(ctx context.Context, value string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1 OR username = $1
		ORDER BY email = $1 DESC
		LIMIT 1
	`, value)
	return scanUser(row)
}

// Create inserts the user. A unique-constraint violation on email maps to
// ErrUserExists so callers can re-fetch the winning row.
func (s *SQLStore) Create(ctx context.Context, user *User) (*User, error) {
	now := s.now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (subject, email, username, first_name, last_name, is_admin, is_active, issuer, created_at, updated_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7, $8, $8, $8)
		RETURNING id
	`, user.Subject, user.Email, user.Username, user.FirstName, user.LastName,
		user.IsAdmin, user.Issuer, now).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user.IsActive = true
	user.CreatedAt = now
	user.UpdatedAt = now
	user.LastLoginAt = now
	return user, nil
}

// Update overwrites the mutable profile fields.
func (s *SQLStore) Update(ctx context.Context, user *User) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username = $1, first_name = $2, last_name = $3, is_admin = $4, updated_at = $5
		WHERE id = $6
	`, user.Username, user.FirstName, user.LastName, user.IsAdmin, s.now().UTC(), user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRow(result)
}

// TouchLogin records a successful authentication.
func (s *SQLStore) TouchLogin(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_login_at = $1 WHERE id = $2
	`, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return requireRow(result)
}

// Delete removes the user row.
func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireRow(result)
}

// Disable marks the user inactive.
func (s *SQLStore) Disable(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_active = false, updated_at = $1 WHERE id = $2
	`, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to disable user: %w", err)
	}
	return requireRow(result)
}

// AssignToDefaultGroup adds the user to the configured default group.
// Assigning twice is a no-op.
func (s *SQLStore) AssignToDefaultGroup(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_groups (user_id, group_name, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, group_name) DO NOTHING
	`, id, s.defaultGroup, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to assign default group: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
