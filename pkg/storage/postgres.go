package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/sso"
)

// PostgresStore persists users and providers in PostgreSQL. It is the
// backend for any deployment where more than one instance shares state.
type PostgresStore struct {
	db *sql.DB
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id                   TEXT PRIMARY KEY,
	username             TEXT NOT NULL,
	email                TEXT NOT NULL DEFAULT '',
	role                 TEXT NOT NULL DEFAULT 'user',
	has_local_credential BOOLEAN NOT NULL DEFAULT FALSE,
	password_hash        TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users (username);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (email) WHERE email <> '';

CREATE TABLE IF NOT EXISTS providers (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	logo        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	enabled     BOOLEAN NOT NULL DEFAULT TRUE,
	config      JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL
);
`

// OpenPostgres connects to url, configures the pool and applies the
// schema.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing connection pool without touching the
// schema. Used by tests that drive the store over a mock connection.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply postgres schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// DB exposes the underlying pool for components that share it, such as
// health checks and audit persistence.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// unique_violation per the PostgreSQL error code table.
const pqUniqueViolation = "23505"

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// GetUserByUsername returns the user with the given username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, role, has_local_credential, password_hash, created_at
		 FROM users WHERE username = $1`, username))
}

// GetUserByID returns the user with the given ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, role, has_local_credential, password_hash, created_at
		 FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &role, &u.HasLocalCredential, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	u.Role = auth.Role(role)
	return &u, nil
}

// CreateUser inserts a user. Unique index violations on username or email
// come back as auth.ErrUserExists; the identity resolver relies on this
// to stay idempotent under concurrent first logins.
func (s *PostgresStore) CreateUser(ctx context.Context, user *auth.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, role, has_local_credential, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Username, user.Email, string(user.Role),
		user.HasLocalCredential, user.PasswordHash, user.CreatedAt)
	if isPostgresUniqueViolation(err) {
		return auth.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateUser replaces a user record, keyed by ID.
func (s *PostgresStore) UpdateUser(ctx context.Context, user *auth.User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = $1, email = $2, role = $3, has_local_credential = $4, password_hash = $5
		 WHERE id = $6`,
		user.Username, user.Email, string(user.Role),
		user.HasLocalCredential, user.PasswordHash, user.ID)
	if isPostgresUniqueViolation(err) {
		return auth.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// ListProviders returns all providers ordered by creation time.
func (s *PostgresStore) ListProviders(ctx context.Context) ([]*sso.ProviderConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, logo, description, enabled, config, created_at
		 FROM providers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []*sso.ProviderConfig
	for rows.Next() {
		p, err := scanProviderRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// GetProvider returns the provider with the given ID.
func (s *PostgresStore) GetProvider(ctx context.Context, id string) (*sso.ProviderConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, logo, description, enabled, config, created_at
		 FROM providers WHERE id = $1`, id)
	p, err := scanProviderRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sso.ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read provider: %w", err)
	}
	return p, nil
}

// CreateProvider inserts a provider registration.
func (s *PostgresStore) CreateProvider(ctx context.Context, provider *sso.ProviderConfig) error {
	config, err := encodeProviderConfig(provider.Config)
	if err != nil {
		return err
	}
	if provider.CreatedAt.IsZero() {
		provider.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO providers (id, name, type, logo, description, enabled, config, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		provider.ID, provider.Name, string(provider.Type), provider.Logo,
		provider.Description, provider.Enabled, config, provider.CreatedAt)
	if isPostgresUniqueViolation(err) {
		return sso.ErrProviderExists
	}
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	return nil
}

// UpdateProvider replaces a provider registration.
func (s *PostgresStore) UpdateProvider(ctx context.Context, provider *sso.ProviderConfig) error {
	config, err := encodeProviderConfig(provider.Config)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE providers SET name = $1, type = $2, logo = $3, description = $4, enabled = $5, config = $6
		 WHERE id = $7`,
		provider.Name, string(provider.Type), provider.Logo,
		provider.Description, provider.Enabled, config, provider.ID)
	if err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sso.ErrProviderNotFound
	}
	return nil
}

// DeleteProvider removes a provider registration.
func (s *PostgresStore) DeleteProvider(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM providers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sso.ErrProviderNotFound
	}
	return nil
}
