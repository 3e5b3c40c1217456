// Package storage provides the persistence backends for user accounts and
// SSO provider registrations.
//
// Three implementations cover the deployment spectrum: MemoryStore for
// tests and throwaway setups, SQLiteStore for single-node installs, and
// PostgresStore for anything shared. All three satisfy auth.UserStore and
// sso.ProviderStore and honor the same contract: uniqueness is enforced
// by the store itself (unique indexes on the SQL backends, a lock on the
// in-memory one) and violations surface as auth.ErrUserExists or
// sso.ErrProviderExists so the identity resolver can retry its read.
//
// CachedProviderStore adds an LRU read-through layer over any provider
// store; SeedProviders loads a YAML provider file and can keep watching
// it for edits.
package storage
