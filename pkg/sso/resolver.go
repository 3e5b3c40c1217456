package sso

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jience/AwesomeSSOManager/pkg/auth"
)

// Resolver maps a federated identity to a local account, provisioning one
// just in time when none exists.
type Resolver struct {
	users auth.UserStore
	now   func() time.Time
}

// NewResolver creates an identity resolver over the given user store.
func NewResolver(users auth.UserStore) *Resolver {
	return &Resolver{users: users, now: time.Now}
}

// resolveAttempts bounds the lookup/create race loop. Two concurrent first
// logins settle in one retry; more attempts than that means the store is
// reporting conflicts it cannot explain.
const resolveAttempts = 3

// ResolveOrCreate returns the local account for a federated identity,
// creating it when absent. Concurrent first logins for the same identity
// are resolved by the store's username uniqueness guarantee: the losing
// writer re-reads the winner's row, so every caller gets the same account.
func (r *Resolver) ResolveOrCreate(ctx context.Context, identity *SSOUser) (*auth.User, error) {
	if identity.Username == "" {
		return nil, NewAuthenticationError("identity has no usable username")
	}

	var lastErr error
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		user, err := r.users.GetUserByUsername(ctx, identity.Username)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, auth.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to look up user %q: %w", identity.Username, err)
		}

		user = &auth.User{
			ID:                 uuid.NewString(),
			Username:           identity.Username,
			Email:              identity.Email,
			Role:               auth.RoleUser,
			HasLocalCredential: false,
			CreatedAt:          r.now().UTC(),
		}
		err = r.users.CreateUser(ctx, user)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, auth.ErrUserExists) {
			return nil, fmt.Errorf("failed to provision user %q: %w", identity.Username, err)
		}
		// Lost the race; loop back and read the winner's row.
		lastErr = err
	}
	return nil, fmt.Errorf("failed to provision user %q after %d attempts: %w",
		identity.Username, resolveAttempts, lastErr)
}
