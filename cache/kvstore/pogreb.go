package kvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/akrylysov/pogreb"

	"github.com/substrate-debug-kit/offline-election/log"
	"github.com/substrate-debug-kit/offline-election/metrics"
)

// DefaultOpenTimeout bounds how long OpenKVStore waits for pogreb before
// continuing without the cache.
const DefaultOpenTimeout = 30 * time.Second

var errNotReady = errors.New("kvstore: store is still opening")

type pogrebKVStore struct {
	name    string
	path    string
	logger  *log.Logger
	metrics *metrics.StorageMetrics

	// Set once the background open succeeds.
	db atomic.Pointer[pogreb.DB]
}

var (
	_ KVStore      = (*pogrebKVStore)(nil)
	_ instrumented = (*pogrebKVStore)(nil)
)

func (s *pogrebKVStore) cacheName() string                     { return s.name }
func (s *pogrebKVStore) cacheMetrics() *metrics.StorageMetrics { return s.metrics }
func (s *pogrebKVStore) cacheLogger() *log.Logger              { return s.logger }

// Has reports false while the store is still opening, so reads become misses.
func (s *pogrebKVStore) Has(key []byte) (bool, error) {
	db := s.db.Load()
	if db == nil {
		return false, nil
	}
	return db.Has(key)
}

func (s *pogrebKVStore) Get(key []byte) ([]byte, error) {
	db := s.db.Load()
	if db == nil {
		return nil, errNotReady
	}
	return db.Get(key)
}

// Put drops writes while the store is still opening.
func (s *pogrebKVStore) Put(key []byte, value []byte) error {
	db := s.db.Load()
	if db == nil {
		s.logger.Debug("dropping write to a store that is still opening", "key", CacheKey(key).Pretty())
		return nil
	}
	return db.Put(key, value)
}

// Close syncs and closes the database. A store that never finished opening
// is left alone; pogreb restarts its recovery on the next open.
func (s *pogrebKVStore) Close() error {
	db := s.db.Swap(nil)
	if db == nil {
		s.logger.Warn("closing a store that never finished opening", "path", s.path)
		return nil
	}
	if err := db.Sync(); err != nil {
		s.logger.Warn("sync before close failed", "path", s.path, "err", err)
	}
	return db.Close()
}

// pruneIndexBackups keeps pogreb's crash recovery from piling up index
// backups. After an unclean shutdown pogreb leaves a "lock" file and renames
// its index files to *.bac on the next open; repeated crashes grow
// .bac.bac.bac names until the filesystem refuses them. Stale index files are
// moved to a sibling backup directory (only if none exists yet) and doubly
// backed up files are removed.
func (s *pogrebKVStore) pruneIndexBackups() {
	backupDir := s.path + ".backup"
	if _, err := os.Stat(filepath.Join(s.path, "lock")); err == nil {
		if _, err := os.Stat(backupDir); err != nil {
			s.logger.Info("unclean shutdown detected, backing up indexes", "path", s.path, "backup", backupDir)
			if err := s.moveIndexes(backupDir); err != nil {
				s.logger.Warn("backing up indexes failed", "err", err)
			}
		}
	}
	stale, _ := filepath.Glob(filepath.Join(s.path, "*.bac.bac"))
	for _, f := range stale {
		if err := os.Remove(f); err != nil {
			s.logger.Warn("removing stale index backup failed", "file", f, "err", err)
		}
	}
}

// moveIndexes moves everything but the data segments and the lock file.
func (s *pogrebKVStore) moveIndexes(dst string) error {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o700); err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == "lock" || strings.HasSuffix(name, ".psg") {
			continue
		}
		if err := os.Rename(filepath.Join(s.path, name), filepath.Join(dst, name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *pogrebKVStore) open() error {
	s.pruneIndexBackups()
	start := time.Now()
	db, err := pogreb.Open(s.path, &pogreb.Options{BackgroundSyncInterval: -1})
	if err != nil {
		s.logger.Error("opening pogreb store failed", "path", s.path, "err", err)
		return err
	}
	s.db.Store(db)
	s.logger.Since("snapshot cache open", start, "path", s.path, "entries", db.Count())
	return nil
}

// OpenKVStore opens (or creates) a pogreb-backed store at path, labelled
// name in metrics. metrics may be nil.
//
// After a crash pogreb rebuilds its index on open, which can take a long
// time for a large cache. If opening takes longer than DefaultOpenTimeout or
// ctx ends first, the store is returned unopened: reads miss and writes are
// dropped until the background open completes.
func OpenKVStore(ctx context.Context, logger *log.Logger, name string, path string, metrics *metrics.StorageMetrics) (KVStore, error) {
	return openKVStore(ctx, logger, name, path, metrics, DefaultOpenTimeout)
}

func openKVStore(ctx context.Context, logger *log.Logger, name string, path string, m *metrics.StorageMetrics, timeout time.Duration) (KVStore, error) {
	store := &pogrebKVStore{name: name, path: path, logger: logger, metrics: m}

	done := make(chan error, 1)
	go func() { done <- store.open() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-timer.C:
		logger.Warn("snapshot cache still opening, continuing without it", "path", path, "waited", timeout)
	case <-ctx.Done():
		logger.Warn("snapshot cache open interrupted, continuing without it", "path", path)
	}
	return store, nil
}
