// Package auth verifies login credentials against a SQL user table and
// resolves each user's role.
package auth

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/prasetya/wisma/pkg/tools"
)

// ErrInvalidCredentials reports an unknown username or a wrong password.
// Deliberately a single error: callers cannot distinguish the two cases.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Config configures the credential store.
type Config struct {
	Driver string // "postgres" or "sqlite3"
	DSN    string
}

// Store checks credentials against the users table.
type Store struct {
	db     *sql.DB
	driver string
	logger zerolog.Logger
}

// Open connects to the credential database.
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	switch cfg.Driver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported auth driver: %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("auth dsn is required")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open auth database: %w", err)
	}
	return New(db, cfg.Driver, logger), nil
}

// New wraps an existing connection. Tests inject mock connections here.
func New(db *sql.DB, driver string, logger zerolog.Logger) *Store {
	return &Store{db: db, driver: driver, logger: logger}
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Verify checks a username/password pair and returns the user's role. The
// password comparison is constant-time; unknown-user and wrong-password both
// come back as ErrInvalidCredentials.
func (s *Store) Verify(ctx context.Context, username, password string) (tools.Role, error) {
	query := "SELECT password, role FROM users WHERE username = $1"
	if s.driver == "sqlite3" {
		query = "SELECT password, role FROM users WHERE username = ?"
	}

	var storedPassword, roleName string
	err := s.db.QueryRowContext(ctx, query, username).Scan(&storedPassword, &roleName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", ErrInvalidCredentials
	case err != nil:
		return "", fmt.Errorf("query credentials: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(storedPassword), []byte(password)) != 1 {
		return "", ErrInvalidCredentials
	}

	role := tools.RoleStandard
	if roleName == string(tools.RoleAdmin) {
		role = tools.RoleAdmin
	}

	s.logger.Debug().
		Str("username", username).
		Str("role", string(role)).
		Msg("Credentials verified")
	return role, nil
}
