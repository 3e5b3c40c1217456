package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/sso"
)

// SQLiteStore persists users and providers in a local SQLite database.
// Suitable for single-node deployments; use PostgresStore when more than
// one instance shares the data.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id                   TEXT PRIMARY KEY,
	username             TEXT NOT NULL,
	email                TEXT NOT NULL DEFAULT '',
	role                 TEXT NOT NULL DEFAULT 'user',
	has_local_credential INTEGER NOT NULL DEFAULT 0,
	password_hash        TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users (username);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (email) WHERE email <> '';

CREATE TABLE IF NOT EXISTS providers (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	logo        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	enabled     INTEGER NOT NULL DEFAULT 1,
	config      TEXT NOT NULL DEFAULT '{}',
	created_at  TIMESTAMP NOT NULL
);
`

// NewSQLiteStore opens (creating if needed) the database at path and
// applies the schema. Pass ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under concurrent logins.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// GetUserByUsername returns the user with the given username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, role, has_local_credential, password_hash, created_at
		 FROM users WHERE username = ?`, username))
}

// GetUserByID returns the user with the given ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, role, has_local_credential, password_hash, created_at
		 FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*auth.User, error) {
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
// come back as auth.ErrUserExists.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *auth.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, role, has_local_credential, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, string(user.Role),
		user.HasLocalCredential, user.PasswordHash, user.CreatedAt)
	if isSQLiteUniqueViolation(err) {
		return auth.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateUser replaces a user record, keyed by ID.
func (s *SQLiteStore) UpdateUser(ctx context.Context, user *auth.User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, role = ?, has_local_credential = ?, password_hash = ?
		 WHERE id = ?`,
		user.Username, user.Email, string(user.Role),
		user.HasLocalCredential, user.PasswordHash, user.ID)
	if isSQLiteUniqueViolation(err) {
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
func (s *SQLiteStore) ListProviders(ctx context.Context) ([]*sso.ProviderConfig, error) {
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
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// GetProvider returns the provider with the given ID.
func (s *SQLiteStore) GetProvider(ctx context.Context, id string) (*sso.ProviderConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, logo, description, enabled, config, created_at
		 FROM providers WHERE id = ?`, id)
	p, err := scanProviderRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sso.ErrProviderNotFound
	}
	return p, err
}

// CreateProvider inserts a provider registration.
func (s *SQLiteStore) CreateProvider(ctx context.Context, provider *sso.ProviderConfig) error {
	config, err := encodeProviderConfig(provider.Config)
	if err != nil {
		return err
	}
	if provider.CreatedAt.IsZero() {
		provider.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO providers (id, name, type, logo, description, enabled, config, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		provider.ID, provider.Name, string(provider.Type), provider.Logo,
		provider.Description, provider.Enabled, config, provider.CreatedAt)
	if isSQLiteUniqueViolation(err) {
		return sso.ErrProviderExists
	}
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	return nil
}

// UpdateProvider replaces a provider registration.
func (s *SQLiteStore) UpdateProvider(ctx context.Context, provider *sso.ProviderConfig) error {
	config, err := encodeProviderConfig(provider.Config)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE providers SET name = ?, type = ?, logo = ?, description = ?, enabled = ?, config = ?
		 WHERE id = ?`,
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
func (s *SQLiteStore) DeleteProvider(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sso.ErrProviderNotFound
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProviderRow(row rowScanner) (*sso.ProviderConfig, error) {
	var p sso.ProviderConfig
	var protocolType, rawConfig string
	err := row.Scan(&p.ID, &p.Name, &protocolType, &p.Logo, &p.Description,
		&p.Enabled, &rawConfig, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Type = sso.ProtocolType(protocolType)
	config, err := decodeProviderConfig(rawConfig)
	if err != nil {
		return nil, err
	}
	p.Config = config
	return &p, nil
}
