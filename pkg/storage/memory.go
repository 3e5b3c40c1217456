package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/sso"
)

// MemoryStore is an in-memory implementation of the user and provider
// stores. Everything is lost on restart; it exists for tests and demos.
type MemoryStore struct {
	mu            sync.RWMutex
	usersByName   map[string]*auth.User
	providersByID map[string]*sso.ProviderConfig
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usersByName:   make(map[string]*auth.User),
		providersByID: make(map[string]*sso.ProviderConfig),
	}
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	return &c
}

func copyProvider(p *sso.ProviderConfig) *sso.ProviderConfig {
	c := *p
	c.Config = make(map[string]string, len(p.Config))
	for k, v := range p.Config {
		c.Config[k] = v
	}
	return &c
}

// GetUserByUsername returns the user with the given username.
func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.usersByName[username]; ok {
		return copyUser(u), nil
	}
	return nil, auth.ErrUserNotFound
}

// GetUserByID returns the user with the given ID.
func (s *MemoryStore) GetUserByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.usersByName {
		if u.ID == id {
			return copyUser(u), nil
		}
	}
	return nil, auth.ErrUserNotFound
}

// CreateUser inserts a user. The check and insert happen under one lock,
// which is this backend's uniqueness guarantee.
func (s *MemoryStore) CreateUser(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByName[user.Username]; ok {
		return auth.ErrUserExists
	}
	if user.Email != "" {
		for _, existing := range s.usersByName {
			if existing.Email == user.Email {
				return auth.ErrUserExists
			}
		}
	}
	s.usersByName[user.Username] = copyUser(user)
	return nil
}

// UpdateUser replaces a user record, keyed by ID.
func (s *MemoryStore) UpdateUser(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, existing := range s.usersByName {
		if existing.ID == user.ID {
			if name != user.Username {
				if _, taken := s.usersByName[user.Username]; taken {
					return auth.ErrUserExists
				}
				delete(s.usersByName, name)
			}
			s.usersByName[user.Username] = copyUser(user)
			return nil
		}
	}
	return auth.ErrUserNotFound
}

// ListProviders returns all providers ordered by ID.
func (s *MemoryStore) ListProviders(_ context.Context) ([]*sso.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*sso.ProviderConfig, 0, len(s.providersByID))
	for _, p := range s.providersByID {
		out = append(out, copyProvider(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetProvider returns the provider with the given ID.
func (s *MemoryStore) GetProvider(_ context.Context, id string) (*sso.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.providersByID[id]; ok {
		return copyProvider(p), nil
	}
	return nil, sso.ErrProviderNotFound
}

// CreateProvider inserts a provider registration.
func (s *MemoryStore) CreateProvider(_ context.Context, provider *sso.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providersByID[provider.ID]; ok {
		return sso.ErrProviderExists
	}
	s.providersByID[provider.ID] = copyProvider(provider)
	return nil
}

// UpdateProvider replaces a provider registration.
func (s *MemoryStore) UpdateProvider(_ context.Context, provider *sso.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providersByID[provider.ID]; !ok {
		return sso.ErrProviderNotFound
	}
	s.providersByID[provider.ID] = copyProvider(provider)
	return nil
}

// DeleteProvider removes a provider registration.
func (s *MemoryStore) DeleteProvider(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providersByID[id]; !ok {
		return sso.ErrProviderNotFound
	}
	delete(s.providersByID, id)
	return nil
}

// Close is a no-op; it exists so all backends share a shutdown path.
func (s *MemoryStore) Close() error { return nil }
