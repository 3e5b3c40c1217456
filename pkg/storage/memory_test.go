package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/sso"
)

func testUser(username string) *auth.User {
	return &auth.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     username + "@example.com",
		Role:      auth.RoleUser,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func testProvider(id string) *sso.ProviderConfig {
	return &sso.ProviderConfig{
		ID:      id,
		Name:    "Provider " + id,
		Type:    sso.ProtocolCAS,
		Enabled: true,
		Config:  map[string]string{"serverUrl": "https://cas.example.edu"},
	}
}

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("user lifecycle", func(t *testing.T) {
		user := testUser("alice")
		require.NoError(t, store.CreateUser(ctx, user))

		got, err := store.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, user.Email, got.Email)

		byID, err := store.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", byID.Username)

		got.Role = auth.RoleAdmin
		require.NoError(t, store.UpdateUser(ctx, got))
		updated, err := store.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, updated.Role)
	})

	t.Run("duplicate username", func(t *testing.T) {
		require.NoError(t, store.CreateUser(ctx, testUser("bob")))

		dup := testUser("bob")
		dup.Email = "different@example.com"
		assert.ErrorIs(t, store.CreateUser(ctx, dup), auth.ErrUserExists)
	})

	t.Run("duplicate email", func(t *testing.T) {
		require.NoError(t, store.CreateUser(ctx, testUser("carol")))

		dup := testUser("carol2")
		dup.Email = "carol@example.com"
		assert.ErrorIs(t, store.CreateUser(ctx, dup), auth.ErrUserExists)
	})

	t.Run("empty emails do not collide", func(t *testing.T) {
		first := testUser("no-mail-1")
		first.Email = ""
		second := testUser("no-mail-2")
		second.Email = ""
		require.NoError(t, store.CreateUser(ctx, first))
		assert.NoError(t, store.CreateUser(ctx, second))
	})

	t.Run("user not found", func(t *testing.T) {
		_, err := store.GetUserByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
		_, err = store.GetUserByID(ctx, "no-such-id")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})

	t.Run("provider lifecycle", func(t *testing.T) {
		provider := testProvider("campus-cas")
		require.NoError(t, store.CreateProvider(ctx, provider))

		assert.ErrorIs(t, store.CreateProvider(ctx, testProvider("campus-cas")), sso.ErrProviderExists)

		got, err := store.GetProvider(ctx, "campus-cas")
		require.NoError(t, err)
		assert.Equal(t, provider.Name, got.Name)
		assert.Equal(t, provider.Config, got.Config)
		assert.True(t, got.Enabled)

		got.Enabled = false
		got.Config["serverUrl"] = "https://cas2.example.edu"
		require.NoError(t, store.UpdateProvider(ctx, got))
		updated, err := store.GetProvider(ctx, "campus-cas")
		require.NoError(t, err)
		assert.False(t, updated.Enabled)
		assert.Equal(t, "https://cas2.example.edu", updated.Config["serverUrl"])

		list, err := store.ListProviders(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)

		require.NoError(t, store.DeleteProvider(ctx, "campus-cas"))
		_, err = store.GetProvider(ctx, "campus-cas")
		assert.ErrorIs(t, err, sso.ErrProviderNotFound)
		assert.ErrorIs(t, store.DeleteProvider(ctx, "campus-cas"), sso.ErrProviderNotFound)
		assert.ErrorIs(t, store.UpdateProvider(ctx, testProvider("campus-cas")), sso.ErrProviderNotFound)
	})

	t.Run("concurrent create is first writer wins", func(t *testing.T) {
		const parallel = 8
		var created, conflicted int
		var mu sync.Mutex
		var wg sync.WaitGroup
		for i := 0; i < parallel; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.CreateUser(ctx, testUser("race-user"))
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					created++
				} else if assert.ErrorIs(t, err, auth.ErrUserExists) {
					conflicted++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)
		assert.Equal(t, parallel-1, conflicted)
	})
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	provider := testProvider("p1")
	require.NoError(t, store.CreateProvider(ctx, provider))

	got, err := store.GetProvider(ctx, "p1")
	require.NoError(t, err)
	got.Config["serverUrl"] = "mutated"

	fresh, err := store.GetProvider(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "https://cas.example.edu", fresh.Config["serverUrl"],
		"mutating a returned config must not leak into the store")
}
