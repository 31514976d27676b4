package testutil

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

// CreateKVFixture creates a SQLite file at dbPath with a kv table holding pairs
func CreateKVFixture(t *testing.T, dbPath string, pairs map[string]string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		t.Fatalf("Failed to create fixture directory: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := db.Exec(createTableSQL); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	for k, v := range pairs {
		if _, err := db.Exec("INSERT INTO kv (key, value) VALUES (?, ?)", k, v); err != nil {
			t.Fatalf("Failed to insert %s: %v", k, err)
		}
	}
}

// ChatPost is one body received on POST /api/chat
type ChatPost struct {
	SessionKey string            `json:"sessionKey"`
	Messages   []json.RawMessage `json:"messages"`
}

// StateServer fakes the dashboard's GET /api/state and POST /api/chat
type StateServer struct {
	*httptest.Server

	mu     sync.Mutex
	state  string
	status int
	posts  []ChatPost
	gets   int
}

// NewStateServer starts a server whose /api/state returns state
func NewStateServer(t *testing.T, state string) *StateServer {
	t.Helper()
	s := &StateServer{state: state, status: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.gets++
		status, body := s.status, s.state
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var post ChatPost
		if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.posts = append(s.posts, post)
		status := s.status
		s.mu.Unlock()
		w.WriteHeader(status)
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// SetStatus changes the HTTP status every endpoint answers with
func (s *StateServer) SetStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
}

// Posts returns every chat body received so far
func (s *StateServer) Posts() []ChatPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatPost, len(s.posts))
	copy(out, s.posts)
	return out
}

// StateGets counts GET /api/state requests
func (s *StateServer) StateGets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}
