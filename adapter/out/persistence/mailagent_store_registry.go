package persistence

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"mailagent_server/core/port/out"
	"mailagent_server/pkg/apperr"

	"github.com/rs/zerolog"
)

// =============================================================================
// Store Registry
// =============================================================================

// StoreRegistry lazily opens one Store per user under basePath. A store is
// opened at most once and never handed to a different user. There is no
// cross-user fallback: a missing database is created for its own user.
type StoreRegistry struct {
	basePath string
	log      zerolog.Logger

	mu     sync.RWMutex
	stores map[string]*Store // keyed by user_id, "" = legacy shared
}

// NewStoreRegistry ensures basePath exists and returns an empty registry.
func NewStoreRegistry(basePath string, log zerolog.Logger) (*StoreRegistry, error) {
	if basePath == "" {
		return nil, apperr.ConfigError("storage path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, apperr.StoreError("mkdir", err)
	}
	return &StoreRegistry{
		basePath: basePath,
		log:      log.With().Str("component", "store_registry").Logger(),
		stores:   make(map[string]*Store),
	}, nil
}

func (r *StoreRegistry) storePath(userID string) string {
	return filepath.Join(r.basePath, StoreFileName(userID))
}

// Get returns the user's store, opening and migrating it on first use.
func (r *StoreRegistry) Get(ctx context.Context, userID string) (out.EmailStore, error) {
	if userID == "" {
		return nil, apperr.UserIDMissing()
	}
	return r.open(userID)
}

// Shared returns the legacy single-user store.
func (r *StoreRegistry) Shared(ctx context.Context) (out.EmailStore, error) {
	return r.open("")
}

func (r *StoreRegistry) open(userID string) (*Store, error) {
	r.mu.RLock()
	store, ok := r.stores[userID]
	r.mu.RUnlock()
	if ok {
		return store, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok := r.stores[userID]; ok {
		return store, nil
	}

	store, err := NewStore(r.storePath(userID), userID, r.log)
	if err != nil {
		return nil, err
	}
	r.stores[userID] = store
	r.log.Debug().Str("user_id", userID).Str("path", store.Path()).Msg("store opened")
	return store, nil
}

// Exists reports whether the user's database file is on disk.
func (r *StoreRegistry) Exists(userID string) bool {
	if userID == "" {
		return false
	}
	_, err := os.Stat(r.storePath(userID))
	return err == nil
}

// Create opens the user's store, creating the file when missing.
func (r *StoreRegistry) Create(ctx context.Context, userID string) (out.EmailStore, error) {
	return r.Get(ctx, userID)
}

// Delete closes the user's store and removes the database file plus its WAL
// sidecars.
func (r *StoreRegistry) Delete(userID string) error {
	if userID == "" {
		return apperr.UserIDMissing()
	}

	r.mu.Lock()
	store, ok := r.stores[userID]
	delete(r.stores, userID)
	r.mu.Unlock()

	if ok {
		if err := store.Close(); err != nil {
			r.log.Warn().Err(err).Str("user_id", userID).Msg("close before delete failed")
		}
	}

	path := r.storePath(userID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperr.StoreError("delete", err)
	}
	for _, sidecar := range []string{path + "-wal", path + "-shm"} {
		os.Remove(sidecar)
	}
	return nil
}

// List scans the base path for per-user database files and returns their
// user ids sorted.
func (r *StoreRegistry) List() ([]string, error) {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, apperr.StoreError("list", err)
	}

	var users []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, UserStorePrefix) || !strings.HasSuffix(name, ".db") {
			continue
		}
		userID := strings.TrimSuffix(strings.TrimPrefix(name, UserStorePrefix), ".db")
		if userID != "" {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users, nil
}

// Cleanup closes every open store. The registry stays usable; stores reopen
// lazily.
func (r *StoreRegistry) Cleanup() error {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*Store)
	r.mu.Unlock()

	var firstErr error
	for userID, store := range stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.log.Debug().Str("user_id", userID).Msg("store closed")
	}
	return firstErr
}
