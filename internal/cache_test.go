package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iksnae/claw-dash/testutil"
)

func TestNewSnapshotCache(t *testing.T) {
	cacheDir := testutil.CreateTempDir(t)
	sc := NewSnapshotCache(cacheDir)
	if sc.GetCacheDir() != cacheDir {
		t.Errorf("GetCacheDir() = %q, want %q", sc.GetCacheDir(), cacheDir)
	}
	if sc.GetSnapshotPath() != filepath.Join(cacheDir, "sessions.yaml") {
		t.Errorf("GetSnapshotPath() = %q", sc.GetSnapshotPath())
	}
}

func TestSnapshotCache_SaveLoad(t *testing.T) {
	sc := NewSnapshotCache(filepath.Join(testutil.CreateTempDir(t), "nested"))
	fetched := time.UnixMilli(1_700_000_000_000).UTC()
	sessions := []Session{
		{Key: "agent:elon:main", UpdatedAt: 100, DisplayName: "Strategy", InputTokens: 5, OutputTokens: 7},
		{Key: "agent:atlas:x"},
	}

	if err := sc.Save("ws://gw", sessions, fetched); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	snapshot, err := sc.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(snapshot.Sessions) != 2 || snapshot.Sessions[0] != sessions[0] || snapshot.Sessions[1] != sessions[1] {
		t.Errorf("Load() sessions = %+v", snapshot.Sessions)
	}
	if !snapshot.Metadata.FetchedAt.Equal(fetched) {
		t.Errorf("FetchedAt = %v, want %v", snapshot.Metadata.FetchedAt, fetched)
	}
	if snapshot.Metadata.CacheVersion != snapshotCacheVersion {
		t.Errorf("CacheVersion = %q", snapshot.Metadata.CacheVersion)
	}

	entries, _ := os.ReadDir(sc.GetCacheDir())
	if len(entries) != 1 {
		t.Errorf("cache dir holds %d files, want only sessions.yaml", len(entries))
	}
}

func TestSnapshotCache_LoadFor(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, sc *SnapshotCache)
		wantOK bool
	}{
		{
			name:   "no cache",
			setup:  func(t *testing.T, sc *SnapshotCache) {},
			wantOK: false,
		},
		{
			name: "same gateway",
			setup: func(t *testing.T, sc *SnapshotCache) {
				_ = sc.Save("ws://gw", []Session{{Key: "agent:main:main"}}, time.Now())
			},
			wantOK: true,
		},
		{
			name: "other gateway",
			setup: func(t *testing.T, sc *SnapshotCache) {
				_ = sc.Save("ws://elsewhere", nil, time.Now())
			},
			wantOK: false,
		},
		{
			name: "old version",
			setup: func(t *testing.T, sc *SnapshotCache) {
				_ = sc.EnsureCacheDir()
				_ = os.WriteFile(sc.GetSnapshotPath(), []byte("sessions: []\nmetadata:\n  gateway_url: ws://gw\n  cache_version: \"0.1\"\n"), 0644)
			},
			wantOK: false,
		},
		{
			name: "corrupt",
			setup: func(t *testing.T, sc *SnapshotCache) {
				_ = sc.EnsureCacheDir()
				_ = os.WriteFile(sc.GetSnapshotPath(), []byte(":\n\t- not yaml"), 0644)
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := NewSnapshotCache(testutil.CreateTempDir(t))
			tt.setup(t, sc)
			if _, ok := sc.LoadFor("ws://gw"); ok != tt.wantOK {
				t.Errorf("LoadFor() ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func TestSnapshotCache_Seed(t *testing.T) {
	sc := NewSnapshotCache(testutil.CreateTempDir(t))
	_ = sc.Save("ws://gw", []Session{{Key: "agent:nova:main", UpdatedAt: 42}}, time.UnixMilli(1000))

	store := NewSessionStore(nil)
	if !sc.Seed(store, "ws://gw") {
		t.Fatal("Seed() = false")
	}
	if snap := store.Snapshot(); len(snap) != 1 || snap[0].Key != "agent:nova:main" {
		t.Errorf("Snapshot() = %+v", snap)
	}
	if !store.FetchedAt().Equal(time.UnixMilli(1000)) {
		t.Errorf("FetchedAt() = %v", store.FetchedAt())
	}
}

func TestSnapshotCache_ClearCache(t *testing.T) {
	sc := NewSnapshotCache(testutil.CreateTempDir(t))
	if err := sc.ClearCache(); err != nil {
		t.Errorf("ClearCache() on empty cache error = %v", err)
	}
	_ = sc.Save("ws://gw", nil, time.Now())
	if err := sc.ClearCache(); err != nil {
		t.Fatalf("ClearCache() error = %v", err)
	}
	if _, err := os.Stat(sc.GetSnapshotPath()); !os.IsNotExist(err) {
		t.Error("snapshot still present after ClearCache()")
	}
}
