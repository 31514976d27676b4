package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const snapshotCacheVersion = "1.0"

// SnapshotCache keeps the last successful session list on disk so a later
// run can show stale data while the gateway is down.
type SnapshotCache struct {
	cacheDir string
}

// SnapshotMetadata describes where and when a cached snapshot came from
type SnapshotMetadata struct {
	GatewayURL   string    `yaml:"gateway_url"`
	FetchedAt    time.Time `yaml:"fetched_at"`
	CacheVersion string    `yaml:"cache_version"`
	UpdatedAt    time.Time `yaml:"updated_at"`
}

// SessionSnapshot is the YAML document written to the cache
type SessionSnapshot struct {
	Sessions []Session       `yaml:"sessions"`
	Metadata SnapshotMetadata `yaml:"metadata"`
}

// NewSnapshotCache creates a cache rooted at cacheDir
func NewSnapshotCache(cacheDir string) *SnapshotCache {
	return &SnapshotCache{
		cacheDir: cacheDir,
	}
}

// EnsureCacheDir ensures the cache directory exists
func (sc *SnapshotCache) EnsureCacheDir() error {
	return os.MkdirAll(sc.cacheDir, 0755)
}

// GetCacheDir returns the cache directory path
func (sc *SnapshotCache) GetCacheDir() string {
	return sc.cacheDir
}

// GetSnapshotPath returns the path to the snapshot YAML file
func (sc *SnapshotCache) GetSnapshotPath() string {
	return filepath.Join(sc.cacheDir, "sessions.yaml")
}

// Save writes sessions as the snapshot for gatewayURL, replacing any
// previous one.
func (sc *SnapshotCache) Save(gatewayURL string, sessions []Session, fetchedAt time.Time) error {
	if err := sc.EnsureCacheDir(); err != nil {
		return err
	}

	snapshot := SessionSnapshot{
		Sessions: sessions,
		Metadata: SnapshotMetadata{
			GatewayURL:   gatewayURL,
			FetchedAt:    fetchedAt,
			CacheVersion: snapshotCacheVersion,
			UpdatedAt:    time.Now(),
		},
	}
	if snapshot.Sessions == nil {
		snapshot.Sessions = []Session{}
	}

	data, err := yaml.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// replace atomically
	tmp, err := os.CreateTemp(sc.cacheDir, "sessions-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), sc.GetSnapshotPath())
}

// Load reads the cached snapshot
func (sc *SnapshotCache) Load() (*SessionSnapshot, error) {
	data, err := os.ReadFile(sc.GetSnapshotPath())
	if err != nil {
		return nil, err
	}

	var snapshot SessionSnapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// LoadFor returns the snapshot only if it was taken from gatewayURL by a
// compatible version. ok is false when there is nothing usable.
func (sc *SnapshotCache) LoadFor(gatewayURL string) (*SessionSnapshot, bool) {
	snapshot, err := sc.Load()
	if err != nil {
		if !os.IsNotExist(err) {
			LogDebug("ignoring unreadable snapshot cache: %v", err)
		}
		return nil, false
	}
	if snapshot.Metadata.CacheVersion != snapshotCacheVersion {
		LogDebug("snapshot cache version %q is stale", snapshot.Metadata.CacheVersion)
		return nil, false
	}
	if snapshot.Metadata.GatewayURL != gatewayURL {
		return nil, false
	}
	return snapshot, true
}

// Seed primes store with the cached snapshot for gatewayURL. It reports
// whether anything was loaded.
func (sc *SnapshotCache) Seed(store *SessionStore, gatewayURL string) bool {
	snapshot, ok := sc.LoadFor(gatewayURL)
	if !ok {
		return false
	}
	store.Seed(snapshot.Sessions, snapshot.Metadata.FetchedAt)
	LogDebug("seeded %d session(s) from cache taken %s", len(snapshot.Sessions), snapshot.Metadata.FetchedAt.Format(time.RFC3339))
	return true
}

// ClearCache removes the cached snapshot
func (sc *SnapshotCache) ClearCache() error {
	if err := os.Remove(sc.GetSnapshotPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
