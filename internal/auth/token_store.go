package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/logging"
)

const (
	// tokenBytes is the entropy of a raw access token (256 bits).
	tokenBytes = 32

	// persistTimeout bounds a single asynchronous persistence call.
	persistTimeout = 5 * time.Second

	// defaultQueueSize is the persistence queue bound when none is configured.
	defaultQueueSize = 256
)

// session is one live entry in the in-memory token cache.
type session struct {
	username  string
	expiresAt time.Time
	keys      SessionKeys
}

// StoreOptions configures a TokenStore.
type StoreOptions struct {
	// Validity is the sliding expiry window applied at issue and on every
	// successful verification.
	Validity time.Duration

	// QueueSize bounds the asynchronous persistence work queue. When the
	// queue is full a write is dropped and logged; the in-memory state
	// stays authoritative.
	QueueSize int
}

// TokenStore owns the in-memory access-token cache and its asynchronous
// reconciliation with the persistent repository.
//
// The cache is the single authoritative structure consulted during request
// handling; the repository is a durable backing written by a worker
// goroutine that drains a bounded queue. Persistence failures are logged
// and swallowed - they degrade durability, never correctness of the
// current request.
//
// All methods are safe for concurrent use.
type TokenStore struct {
	repo     TokenRepository
	logger   *logging.Logger
	validity time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	persist chan func(context.Context) error
	drained chan struct{}

	// now is a clock hook for tests.
	now func() time.Time
}

// NewTokenStore creates a token store and starts its persistence worker.
// Call Close to flush pending writes on shutdown.
func NewTokenStore(repo TokenRepository, logger *logging.Logger, opts StoreOptions) *TokenStore {
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	s := &TokenStore{
		repo:     repo,
		logger:   logger,
		validity: opts.Validity,
		sessions: make(map[string]*session),
		persist:  make(chan func(context.Context) error, queueSize),
		drained:  make(chan struct{}),
		now:      time.Now,
	}

	go s.persistWorker()

	return s
}

// persistWorker drains the persistence queue until Close.
func (s *TokenStore) persistWorker() {
	defer close(s.drained)

	for op := range s.persist {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := op(ctx); err != nil {
			s.logger.Error("token persistence write failed", "error", err)
		}
		cancel()
	}
}

// enqueue schedules a persistence operation without blocking the caller.
// A full queue drops the write; the loss is durability only.
// Callers must hold s.mu, which serialises enqueue against Close.
func (s *TokenStore) enqueue(op func(context.Context) error) {
	if s.closed {
		return
	}
	select {
	case s.persist <- op:
	default:
		s.logger.Warn("token persistence queue full, dropping write")
	}
}

// LoadFromStore populates the cache from the persistent repository.
// Executed once at startup; a failure degrades to an empty cache
// (forcing re-authentication) rather than preventing startup.
func (s *TokenStore) LoadFromStore(ctx context.Context) {
	stored, err := s.repo.SelectAll(ctx)
	if err != nil {
		s.logger.Error("could not load access tokens, starting with empty session cache", "error", err)
		return
	}

	now := s.now()
	loaded := 0

	s.mu.Lock()
	for _, t := range stored {
		if !t.ExpiresAt.After(now) {
			token := t.Token
			s.enqueue(func(ctx context.Context) error { return s.repo.Delete(ctx, token) })
			continue
		}
		s.sessions[t.Token] = &session{
			username:  t.Username,
			expiresAt: t.ExpiresAt,
		}
		loaded++
	}
	s.mu.Unlock()

	s.logger.Info("access tokens loaded from store", "count", loaded)
}

// Issue registers a new session for the given identity and returns its
// token. The cache write is applied immediately; the durable insert is
// queued and never awaited.
func (s *TokenStore) Issue(username string, keys SessionKeys) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generating access token: %w", err)
	}

	expiresAt := s.now().Add(s.validity)

	s.mu.Lock()
	s.sessions[token] = &session{
		username:  username,
		expiresAt: expiresAt,
		keys:      keys,
	}
	s.enqueue(func(ctx context.Context) error {
		return s.repo.Insert(ctx, token, username, expiresAt)
	})
	s.mu.Unlock()

	return token, nil
}

// Verify resolves a token to its identity. A hit slides the expiry
// forward by the validity window (the update is queued asynchronously);
// an expired entry is evicted, its durable copy queued for deletion, and
// the lookup reported as a miss. The persistent store is never consulted
// on this path.
func (s *TokenStore) Verify(token string) (string, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok {
		return "", false
	}

	if !e.expiresAt.After(now) {
		delete(s.sessions, token)
		s.enqueue(func(ctx context.Context) error { return s.repo.Delete(ctx, token) })
		return "", false
	}

	// Concurrent verifies race to extend; the expiry must never move
	// backwards.
	if newExpiry := now.Add(s.validity); newExpiry.After(e.expiresAt) {
		e.expiresAt = newExpiry
		s.enqueue(func(ctx context.Context) error {
			return s.repo.UpdateExpiry(ctx, token, newExpiry)
		})
	}

	return e.username, true
}

// Keys returns the session encryption material bound to a valid token.
// The lookup does not slide the expiry.
func (s *TokenStore) Keys(token string) (SessionKeys, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok || !e.expiresAt.After(s.now()) {
		return SessionKeys{}, false
	}
	return e.keys, true
}

// ExpiresAt reports the current expiry of a live token. The lookup does
// not slide the expiry.
func (s *TokenStore) ExpiresAt(token string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok || !e.expiresAt.After(s.now()) {
		return time.Time{}, false
	}
	return e.expiresAt, true
}

// Revoke evicts a token and queues deletion of its durable copy.
// Returns false if the token was not present.
func (s *TokenStore) Revoke(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[token]; !ok {
		return false
	}
	delete(s.sessions, token)
	s.enqueue(func(ctx context.Context) error { return s.repo.Delete(ctx, token) })
	return true
}

// Count returns the number of live sessions.
func (s *TokenStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops accepting persistence writes and waits for the queue to
// drain, so the durable store is as current as possible at shutdown.
func (s *TokenStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.drained
		return
	}
	s.closed = true
	close(s.persist)
	s.mu.Unlock()

	<-s.drained
}

// generateToken produces an unguessable opaque token (hex, 256 bits).
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
