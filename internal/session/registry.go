// Package session implements the process-wide session registry: an
// in-memory cache over the active_sessions table plus the runtime
// binding of session tokens to live sockets.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lehau007/NetworkProgramming/internal/persist"
	"go.uber.org/zap"
)

// TokenLength is the size of a session token in hex characters.
const TokenLength = 32

// ErrDuplicateSession is returned when a token is already bound to a
// different live socket. The existing binding is never disturbed.
var ErrDuplicateSession = errors.New("session: token already bound to another socket")

// Store is the persistent side of the registry, implemented by
// persist.SessionRepo. The database is authoritative; the cache only
// accelerates lookups.
type Store interface {
	Create(ctx context.Context, token string, userID int64, ip string) error
	Verify(ctx context.Context, token string) (bool, error)
	Touch(ctx context.Context, token string) error
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID int64) error
	Cleanup(ctx context.Context, timeout time.Duration) (int, error)
	Info(ctx context.Context, token string) (*persist.SessionRow, error)
}

// Socket is the transport handle a session can be bound to. Pointer
// implementations keep map keys comparable.
type Socket interface {
	SendText(payload []byte) error
	Close() error
}

// Entry is one cached session.
type Entry struct {
	Token         string
	UserID        int64
	Username      string
	Socket        Socket // nil until bound
	LoginTime     time.Time
	LastActivity  time.Time
	IP            string
	Authenticated bool
}

// Registry owns all session cache entries and socket bindings. One
// mutex guards the three maps; database I/O happens outside it.
type Registry struct {
	mu       sync.Mutex
	byToken  map[string]*Entry
	bySocket map[Socket]string
	byUser   map[int64]string

	store   Store
	timeout time.Duration
	log     *zap.Logger
}

func NewRegistry(store Store, timeout time.Duration, log *zap.Logger) *Registry {
	return &Registry{
		byToken:  make(map[string]*Entry),
		bySocket: make(map[Socket]string),
		byUser:   make(map[int64]string),
		store:    store,
		timeout:  timeout,
		log:      log,
	}
}

// newToken returns a cryptographically random 32-hex-char token.
func newToken() (string, error) {
	var buf [TokenLength / 2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// Create logs the user in: a fresh token is written through to the
// store (superseding any prior row for the user), any stale cache entry
// is evicted, and the new entry is installed bound to sock.
func (r *Registry) Create(ctx context.Context, userID int64, username, ip string, sock Socket) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	if err := r.store.Create(ctx, token, userID, ip); err != nil {
		return "", err
	}

	now := time.Now()
	r.mu.Lock()
	r.evictUserLocked(userID)
	entry := &Entry{
		Token:         token,
		UserID:        userID,
		Username:      username,
		Socket:        sock,
		LoginTime:     now,
		LastActivity:  now,
		IP:            ip,
		Authenticated: true,
	}
	r.byToken[token] = entry
	r.byUser[userID] = token
	if sock != nil {
		r.bySocket[sock] = token
	}
	r.mu.Unlock()

	r.log.Info("session created", zap.Int64("user_id", userID), zap.String("ip", ip))
	return token, nil
}

// evictUserLocked removes the user's previous cache entry, including
// its socket binding. Caller holds the mutex.
func (r *Registry) evictUserLocked(userID int64) {
	old, ok := r.byUser[userID]
	if !ok {
		return
	}
	if entry := r.byToken[old]; entry != nil && entry.Socket != nil {
		delete(r.bySocket, entry.Socket)
	}
	delete(r.byToken, old)
	delete(r.byUser, userID)
}

// Verify checks the token. The store answer is authoritative: a miss
// invalidates any stale cache entry; a hit lazy-loads the entry,
// refreshes its cached activity, and touches the store best-effort.
func (r *Registry) Verify(ctx context.Context, token string) bool {
	ok, err := r.store.Verify(ctx, token)
	if err != nil || !ok {
		r.mu.Lock()
		if entry, cached := r.byToken[token]; cached {
			if entry.Socket != nil {
				delete(r.bySocket, entry.Socket)
			}
			delete(r.byUser, entry.UserID)
			delete(r.byToken, token)
		}
		r.mu.Unlock()
		return false
	}

	r.mu.Lock()
	entry, cached := r.byToken[token]
	if cached {
		entry.LastActivity = time.Now()
	}
	r.mu.Unlock()

	if !cached {
		r.loadToCache(ctx, token)
	}
	if err := r.store.Touch(ctx, token); err != nil {
		r.log.Warn("touch session", zap.Error(err))
	}
	return true
}

// loadToCache pulls a verified session row into the cache. The username
// stays empty and the socket nil until bind time.
func (r *Registry) loadToCache(ctx context.Context, token string) {
	row, err := r.store.Info(ctx, token)
	if err != nil || row == nil {
		return
	}
	r.mu.Lock()
	if _, exists := r.byToken[token]; !exists {
		r.byToken[token] = &Entry{
			Token:         token,
			UserID:        row.UserID,
			LoginTime:     row.LoginTime,
			LastActivity:  time.Now(),
			IP:            row.IP,
			Authenticated: true,
		}
		r.byUser[row.UserID] = token
	}
	r.mu.Unlock()
}

// VerifyBySocket resolves the socket's token and verifies it.
func (r *Registry) VerifyBySocket(ctx context.Context, sock Socket) bool {
	r.mu.Lock()
	token, ok := r.bySocket[sock]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.Verify(ctx, token)
}

// Bind associates the token with a live socket. CAS semantics: a token
// already bound to a different socket is rejected and the existing
// binding stays intact.
func (r *Registry) Bind(token string, sock Socket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byToken[token]
	if !ok {
		return fmt.Errorf("session: bind of unknown token")
	}
	if entry.Socket != nil && entry.Socket != sock {
		return ErrDuplicateSession
	}
	entry.Socket = sock
	r.bySocket[sock] = token
	return nil
}

// Unbind removes the socket's reverse mapping only.
func (r *Registry) Unbind(sock Socket) {
	r.mu.Lock()
	delete(r.bySocket, sock)
	r.mu.Unlock()
}

// SetUsername fills in the username on a lazily loaded entry.
func (r *Registry) SetUsername(token, username string) {
	r.mu.Lock()
	if entry, ok := r.byToken[token]; ok {
		entry.Username = username
	}
	r.mu.Unlock()
}

// Touch refreshes the cached and stored last-activity time. Idempotent.
func (r *Registry) Touch(ctx context.Context, token string) {
	r.mu.Lock()
	if entry, ok := r.byToken[token]; ok {
		entry.LastActivity = time.Now()
	}
	r.mu.Unlock()
	if err := r.store.Touch(ctx, token); err != nil {
		r.log.Warn("touch session", zap.Error(err))
	}
}

// TouchBySocket touches the session bound to sock, if any.
func (r *Registry) TouchBySocket(ctx context.Context, sock Socket) {
	r.mu.Lock()
	token, ok := r.bySocket[sock]
	r.mu.Unlock()
	if ok {
		r.Touch(ctx, token)
	}
}

// RemoveInCache drops the token from all three maps.
func (r *Registry) RemoveInCache(token string) {
	r.mu.Lock()
	if entry, ok := r.byToken[token]; ok {
		if entry.Socket != nil {
			delete(r.bySocket, entry.Socket)
		}
		delete(r.byUser, entry.UserID)
		delete(r.byToken, token)
	}
	r.mu.Unlock()
}

// RemoveInDatabase deletes the session row.
func (r *Registry) RemoveInDatabase(ctx context.Context, token string) {
	if err := r.store.Delete(ctx, token); err != nil {
		r.log.Warn("delete session", zap.Error(err))
	}
}

// Remove composes the cache and database removals (logout path).
func (r *Registry) Remove(ctx context.Context, token string) {
	r.RemoveInCache(token)
	r.RemoveInDatabase(ctx, token)
}

// RemoveBySocket removes the session bound to sock from cache and
// database.
func (r *Registry) RemoveBySocket(ctx context.Context, sock Socket) {
	r.mu.Lock()
	token, ok := r.bySocket[sock]
	r.mu.Unlock()
	if ok {
		r.Remove(ctx, token)
	}
}

// RemoveByUser removes the user's session from cache and database.
func (r *Registry) RemoveByUser(ctx context.Context, userID int64) {
	r.mu.Lock()
	token, ok := r.byUser[userID]
	r.mu.Unlock()
	if ok {
		r.Remove(ctx, token)
		return
	}
	if err := r.store.DeleteByUser(ctx, userID); err != nil {
		r.log.Warn("delete session by user", zap.Error(err))
	}
}

// Lookup returns a copy of the cached entry for the token.
func (r *Registry) Lookup(token string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byToken[token]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// LookupBySocket returns a copy of the entry bound to sock.
func (r *Registry) LookupBySocket(sock Socket) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.bySocket[sock]
	if !ok {
		return Entry{}, false
	}
	entry, ok := r.byToken[token]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// SocketByUser resolves the live socket a user's session is bound to.
// This is the broadcast seam: user id in, transport handle out.
func (r *Registry) SocketByUser(userID int64) (Socket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	entry, ok := r.byToken[token]
	if !ok || entry.Socket == nil {
		return nil, false
	}
	return entry.Socket, true
}

// IsUserConnected reports whether the user has a cached session.
func (r *Registry) IsUserConnected(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byUser[userID]
	return ok
}

// CachedCount returns the number of cached sessions.
func (r *Registry) CachedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}

// Sweep deletes idle rows from the store. When anything was deleted all
// three caches are cleared: coarse invalidation is cheaper than per-row
// sync and the caches rebuild on the next verify.
func (r *Registry) Sweep(ctx context.Context) int {
	n, err := r.store.Cleanup(ctx, r.timeout)
	if err != nil {
		r.log.Error("session sweep", zap.Error(err))
		return 0
	}
	if n > 0 {
		r.mu.Lock()
		r.byToken = make(map[string]*Entry)
		r.bySocket = make(map[Socket]string)
		r.byUser = make(map[int64]string)
		r.mu.Unlock()
		r.log.Info("expired sessions swept", zap.Int("count", n))
	}
	return n
}

// RunSweeper is the dedicated cleanup worker: sweep every interval
// until the context is cancelled.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
