package storage

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jience/AwesomeSSOManager/pkg/sso"
)

// CachedProviderStore is a read-through LRU layer over a provider store.
// Provider configs are read on every login leg but change rarely, so a
// small cache keeps the hot path off the database. Writes go straight
// through and invalidate the affected entry.
type CachedProviderStore struct {
	inner sso.ProviderStore
	cache *lru.Cache[string, *sso.ProviderConfig]
}

// NewCachedProviderStore wraps inner with a cache of the given size.
func NewCachedProviderStore(inner sso.ProviderStore, size int) (*CachedProviderStore, error) {
	cache, err := lru.New[string, *sso.ProviderConfig](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider cache: %w", err)
	}
	return &CachedProviderStore{inner: inner, cache: cache}, nil
}

// GetProvider serves from cache when possible. Callers always get their
// own copy: a mutation on a returned config (an update handler editing
// fields before validation, say) must never reach the cached struct or
// race a concurrent login reading it.
func (s *CachedProviderStore) GetProvider(ctx context.Context, id string) (*sso.ProviderConfig, error) {
	if p, ok := s.cache.Get(id); ok {
		return copyProvider(p), nil
	}
	p, err := s.inner.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, copyProvider(p))
	return p, nil
}

// ListProviders always hits the backing store; listings are admin-surface
// traffic and must not serve stale membership.
func (s *CachedProviderStore) ListProviders(ctx context.Context) ([]*sso.ProviderConfig, error) {
	return s.inner.ListProviders(ctx)
}

// CreateProvider writes through.
func (s *CachedProviderStore) CreateProvider(ctx context.Context, provider *sso.ProviderConfig) error {
	if err := s.inner.CreateProvider(ctx, provider); err != nil {
		return err
	}
	s.cache.Remove(provider.ID)
	return nil
}

// UpdateProvider writes through and invalidates.
func (s *CachedProviderStore) UpdateProvider(ctx context.Context, provider *sso.ProviderConfig) error {
	if err := s.inner.UpdateProvider(ctx, provider); err != nil {
		return err
	}
	s.cache.Remove(provider.ID)
	return nil
}

// DeleteProvider writes through and invalidates.
func (s *CachedProviderStore) DeleteProvider(ctx context.Context, id string) error {
	if err := s.inner.DeleteProvider(ctx, id); err != nil {
		return err
	}
	s.cache.Remove(id)
	return nil
}
