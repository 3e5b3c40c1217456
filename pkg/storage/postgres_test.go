package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/sso"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresCreateUserUniqueViolation(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "idx_users_username"})

	err := store.CreateUser(context.Background(), testUser("alice"))
	assert.ErrorIs(t, err, auth.ErrUserExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateUser(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	user := testUser("alice")

	mock.ExpectExec("INSERT INTO users").
		WithArgs(user.ID, "alice", "alice@example.com", "user", false, "", user.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.CreateUser(context.Background(), user))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetUserByUsername(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	created := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "username", "email", "role", "has_local_credential", "password_hash", "created_at"}).
			AddRow("u-1", "alice", "alice@example.com", "admin", true, "hash", created))

	user, err := store.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, auth.RoleAdmin, user.Role)
	assert.True(t, user.HasLocalCredential)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetUserNotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "username", "email", "role", "has_local_credential", "password_hash", "created_at"}))

	_, err := store.GetUserByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestPostgresGetProviderDecodesConfig(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	created := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM providers WHERE id").
		WithArgs("github").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "name", "type", "logo", "description", "enabled", "config", "created_at"}).
			AddRow("github", "GitHub", "OAUTH2", "", "", true,
				`{"clientId":"c1","tokenUrl":"https://github.com/login/oauth/access_token"}`, created))

	provider, err := store.GetProvider(context.Background(), "github")
	require.NoError(t, err)
	assert.Equal(t, sso.ProtocolOAuth2, provider.Type)
	assert.Equal(t, "c1", provider.Config["clientId"])
}

func TestPostgresGetProviderNotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT (.+) FROM providers WHERE id").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "name", "type", "logo", "description", "enabled", "config", "created_at"}))

	_, err := store.GetProvider(context.Background(), "nope")
	assert.ErrorIs(t, err, sso.ErrProviderNotFound)
}

func TestPostgresCreateProviderConflict(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO providers").
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "providers_pkey"})

	err := store.CreateProvider(context.Background(), testProvider("github"))
	assert.ErrorIs(t, err, sso.ErrProviderExists)
}

func TestPostgresDeleteProviderNotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("DELETE FROM providers").
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteProvider(context.Background(), "nope")
	assert.ErrorIs(t, err, sso.ErrProviderNotFound)
}

func TestPostgresUpdateUserNotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	user := testUser("ghost")

	mock.ExpectExec("UPDATE users").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateUser(context.Background(), user)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestPostgresListProviders(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	created := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM providers ORDER BY").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "name", "type", "logo", "description", "enabled", "config", "created_at"}).
			AddRow("github", "GitHub", "OAUTH2", "", "", true, `{}`, created).
			AddRow("okta", "Okta", "SAML2", "", "", false, `{"issuer":"https://idp"}`, created))

	providers, err := store.ListProviders(context.Background())
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "github", providers[0].ID)
	assert.False(t, providers[1].Enabled)
	assert.Equal(t, "https://idp", providers[1].Config["issuer"])
}
