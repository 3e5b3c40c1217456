package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/jience/AwesomeSSOManager/pkg/observability"
	"github.com/jience/AwesomeSSOManager/pkg/sso"
)

// seedFile is the on-disk shape of a provider seed.
type seedFile struct {
	Providers []seedProvider `yaml:"providers"`
}

type seedProvider struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type"`
	Logo        string            `yaml:"logo"`
	Description string            `yaml:"description"`
	Enabled     bool              `yaml:"enabled"`
	Config      map[string]string `yaml:"config"`
}

// LoadSeed reads a YAML provider seed file and upserts every entry into
// the store. Existing providers with the same ID are overwritten, which
// makes the seed file authoritative for the providers it names.
func LoadSeed(ctx context.Context, path string, store sso.ProviderStore, logger *observability.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	for _, entry := range seed.Providers {
		if entry.ID == "" {
			return fmt.Errorf("seed file %s contains a provider without an id", path)
		}
		provider := &sso.ProviderConfig{
			ID:          entry.ID,
			Name:        entry.Name,
			Type:        sso.ProtocolType(entry.Type),
			Logo:        entry.Logo,
			Description: entry.Description,
			Enabled:     entry.Enabled,
			Config:      entry.Config,
			CreatedAt:   time.Now().UTC(),
		}

		existing, err := store.GetProvider(ctx, entry.ID)
		switch {
		case err == nil:
			provider.CreatedAt = existing.CreatedAt
			if err := store.UpdateProvider(ctx, provider); err != nil {
				return fmt.Errorf("failed to update seeded provider %q: %w", entry.ID, err)
			}
		case errors.Is(err, sso.ErrProviderNotFound):
			if err := store.CreateProvider(ctx, provider); err != nil {
				return fmt.Errorf("failed to create seeded provider %q: %w", entry.ID, err)
			}
		default:
			return fmt.Errorf("failed to look up seeded provider %q: %w", entry.ID, err)
		}
	}

	logger.WithField("count", len(seed.Providers)).Infof("loaded provider seed from %s", path)
	return nil
}

// WatchSeed reloads the seed file whenever it changes, until ctx is done.
// The watch is on the parent directory because most editors and config
// management tools replace the file rather than writing it in place.
func WatchSeed(ctx context.Context, path string, store sso.ProviderStore, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create seed watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch seed directory: %w", err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := LoadSeed(ctx, path, store, logger); err != nil {
				// Keep watching; a half-written file will fire again.
				logger.WithError(err).Warn("seed reload failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("seed watcher error")
		}
	}
}
