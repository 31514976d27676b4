package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const (
	// PersistLimit is how many messages a persisted history keeps
	PersistLimit = 200
	// DefaultSyncDelay is the quiet window before a remote write goes out
	DefaultSyncDelay = 2 * time.Second
	// DefaultSessionKey is used when no session is active
	DefaultSessionKey = "agent:main:main"

	chatKeyPrefix = "chat-"
	legacyChatKey = "chat-history"
)

// ValidateSessionKey rejects the one session key whose history key is the
// legacy global key.
func ValidateSessionKey(sessionKey string) error {
	if chatKeyPrefix+sessionKey == legacyChatKey {
		return fmt.Errorf("%w: %q", ErrReservedSessionKey, sessionKey)
	}
	return nil
}

// PersistenceBridge keeps chat history in local storage and mirrors it to a
// remote store. Local writes are synchronous and authoritative; remote
// writes are debounced per session and fire-and-forget. No method returns a
// storage or sync failure: history is a best-effort cache whose source of
// truth is the gateway.
type PersistenceBridge struct {
	local          KVStore
	remote         RemoteChatStore
	store          *SessionStore
	defaultSession string
	syncDelay      time.Duration
	syncTimeout    time.Duration

	mu      sync.Mutex
	pending map[string]*Debouncer

	ctx    context.Context
	cancel context.CancelFunc
}

// BridgeOption configures a PersistenceBridge
type BridgeOption func(*PersistenceBridge)

// WithSyncDelay overrides the debounce window for remote writes
func WithSyncDelay(d time.Duration) BridgeOption {
	return func(b *PersistenceBridge) {
		if d > 0 {
			b.syncDelay = d
		}
	}
}

// WithDefaultSession sets the key used when callers pass an empty session
func WithDefaultSession(key string) BridgeOption {
	return func(b *PersistenceBridge) {
		if key != "" {
			b.defaultSession = key
		}
	}
}

// WithSyncTimeout bounds each remote write
func WithSyncTimeout(d time.Duration) BridgeOption {
	return func(b *PersistenceBridge) {
		if d > 0 {
			b.syncTimeout = d
		}
	}
}

// NewPersistenceBridge wires local storage, an optional remote store and an
// optional SessionStore whose message cache is kept in step.
func NewPersistenceBridge(local KVStore, remote RemoteChatStore, store *SessionStore, opts ...BridgeOption) *PersistenceBridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &PersistenceBridge{
		local:          local,
		remote:         remote,
		store:          store,
		defaultSession: DefaultSessionKey,
		syncDelay:      DefaultSyncDelay,
		syncTimeout:    DefaultRequestTimeout,
		pending:        make(map[string]*Debouncer),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SessionKey applies the default-session fallback
func (b *PersistenceBridge) SessionKey(sessionKey string) string {
	if sessionKey == "" {
		return b.defaultSession
	}
	return sessionKey
}

// StorageKey is the local key holding sessionKey's history
func (b *PersistenceBridge) StorageKey(sessionKey string) string {
	return chatKeyPrefix + b.SessionKey(sessionKey)
}

// Load returns sessionKey's history from local storage, then the legacy
// global key (migrating it forward), then the remote state. Nothing found
// is an empty history, not an error.
func (b *PersistenceBridge) Load(ctx context.Context, sessionKey string) []Message {
	sessionKey = b.SessionKey(sessionKey)
	if err := ValidateSessionKey(sessionKey); err != nil {
		LogWarn("not loading chat history: %v", err)
		return []Message{}
	}
	key := b.StorageKey(sessionKey)

	if msgs, ok := b.readLocal(key); ok {
		b.cache(sessionKey, msgs)
		return msgs
	}

	if msgs, ok := b.readLocal(legacyChatKey); ok {
		LogInfo("migrating legacy chat history to %s", key)
		if b.writeLocal(key, msgs) {
			if err := b.local.Remove(legacyChatKey); err != nil {
				LogDebug("failed to remove legacy chat key: %v", err)
			}
		}
		b.cache(sessionKey, msgs)
		return msgs
	}

	if b.remote != nil {
		msgs, ok, err := b.remote.FetchMessages(ctx, sessionKey)
		if err != nil {
			LogDebug("remote chat fetch for %s failed: %v", sessionKey, err)
		} else if ok {
			msgs = tail(msgs, PersistLimit)
			b.writeLocal(key, msgs)
			b.cache(sessionKey, msgs)
			return msgs
		}
	}

	return []Message{}
}

// Persist stores the newest PersistLimit messages locally, refreshes the
// in-memory cache and schedules a debounced remote write. Calls for the same
// session inside the window collapse into one write of the latest history.
func (b *PersistenceBridge) Persist(sessionKey string, msgs []Message) {
	sessionKey = b.SessionKey(sessionKey)
	if err := ValidateSessionKey(sessionKey); err != nil {
		LogWarn("not persisting chat history: %v", err)
		return
	}
	snapshot := tail(msgs, PersistLimit)

	b.writeLocal(b.StorageKey(sessionKey), snapshot)
	b.cache(sessionKey, snapshot)

	if b.remote == nil {
		return
	}
	b.debouncer(sessionKey).Trigger(func() {
		b.push(sessionKey, snapshot)
	})
}

// Flush sends every pending remote write immediately
func (b *PersistenceBridge) Flush() {
	b.mu.Lock()
	debouncers := make([]*Debouncer, 0, len(b.pending))
	for _, d := range b.pending {
		debouncers = append(debouncers, d)
	}
	b.mu.Unlock()

	for _, d := range debouncers {
		d.Flush()
	}
}

// Close drops pending remote writes and aborts any in flight
func (b *PersistenceBridge) Close() {
	b.mu.Lock()
	for _, d := range b.pending {
		d.Cancel()
	}
	b.mu.Unlock()
	b.cancel()
}

func (b *PersistenceBridge) debouncer(sessionKey string) *Debouncer {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.pending[sessionKey]
	if !ok {
		d = NewDebouncer(b.syncDelay)
		b.pending[sessionKey] = d
	}
	return d
}

func (b *PersistenceBridge) push(sessionKey string, msgs []Message) {
	ctx, cancel := context.WithTimeout(b.ctx, b.syncTimeout)
	defer cancel()
	if err := b.remote.PushMessages(ctx, sessionKey, msgs); err != nil {
		LogDebug("remote chat sync for %s failed: %v", sessionKey, err)
		return
	}
	LogDebug("synced %d message(s) for %s", len(msgs), sessionKey)
}

func (b *PersistenceBridge) cache(sessionKey string, msgs []Message) {
	if b.store != nil {
		b.store.CacheMessages(sessionKey, msgs)
	}
}

func (b *PersistenceBridge) readLocal(key string) ([]Message, bool) {
	if b.local == nil {
		return nil, false
	}
	raw, ok, err := b.local.Get(key)
	if err != nil {
		LogDebug("local read of %s failed: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		LogDebug("ignoring corrupt chat history under %s: %v", key, err)
		return nil, false
	}
	return msgs, true
}

func (b *PersistenceBridge) writeLocal(key string, msgs []Message) bool {
	if b.local == nil {
		return false
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		LogDebug("failed to encode chat history for %s: %v", key, err)
		return false
	}
	if err := b.local.Set(key, string(data)); err != nil {
		LogDebug("local write of %s failed: %v", key, err)
		return false
	}
	return true
}
