package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker records revoked session token ids until the token would have
// expired anyway. RevokeUser ends every session of a staff member issued up
// to at; the cutoff is kept for ttl, the longest a session can live.
type Revoker interface {
	Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	RevokeUser(ctx context.Context, userID string, at time.Time, ttl time.Duration) error
	UserRevokedAt(ctx context.Context, userID string) (time.Time, error)
}

// RevokedByCutoff reports whether a token issued at issuedAt falls under a
// per-user cutoff. Token times have second precision, so a token issued in
// the same second as the cutoff counts as revoked.
func RevokedByCutoff(issuedAt, cutoff time.Time) bool {
	if cutoff.IsZero() {
		return false
	}
	return !issuedAt.After(cutoff.Truncate(time.Second))
}

// userCutoff is a per-user revocation point.
type userCutoff struct {
	At        time.Time
	ExpiresAt time.Time
}

// revocationEntry stores metadata about a revoked token.
type revocationEntry struct {
	ExpiresAt time.Time
	UserID    string
}

// TokenRevocationStore manages revoked tokens in memory. It is the
// fallback when no Redis URL is configured and does not survive restarts.
type TokenRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]revocationEntry // JTI -> entry
	users   map[string]userCutoff
	now     func() time.Time
	done    chan struct{}
}

// NewTokenRevocationStore creates a new store and starts a background
// goroutine that cleans up expired entries every 5 minutes.
func NewTokenRevocationStore() *TokenRevocationStore {
	s := &TokenRevocationStore{
		entries: make(map[string]revocationEntry),
		users:   make(map[string]userCutoff),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *TokenRevocationStore) Revoke(_ context.Context, jti, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[jti] = revocationEntry{ExpiresAt: expiresAt, UserID: userID}
	return nil
}

func (s *TokenRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[jti]
	return ok, nil
}

func (s *TokenRevocationStore) RevokeUser(_ context.Context, userID string, at time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[userID] = userCutoff{At: at, ExpiresAt: at.Add(ttl)}
	return nil
}

func (s *TokenRevocationStore) UserRevokedAt(_ context.Context, userID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.users[userID].At, nil
}

// Count returns the number of currently revoked tokens.
func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Close stops the background cleanup goroutine. It is safe to call
// multiple times.
func (s *TokenRevocationStore) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *TokenRevocationStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup drops entries whose tokens are past their natural expiry.
func (s *TokenRevocationStore) cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			delete(s.entries, jti)
		}
	}
	for id, cut := range s.users {
		if now.After(cut.ExpiresAt) {
			delete(s.users, id)
		}
	}
}

// RedisRevoker keeps revocations in Redis with a TTL matching the token's
// remaining lifetime, so every server instance sees them.
type RedisRevoker struct {
	client     *redis.Client
	prefix     string
	userPrefix string
	now        func() time.Time
}

func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{
		client:     client,
		prefix:     "clinicdesk:revoked:",
		userPrefix: "clinicdesk:revoked-user:",
		now:        time.Now,
	}
}

func (r *RedisRevoker) Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.prefix+jti, userID, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

func (r *RedisRevoker) RevokeUser(ctx context.Context, userID string, at time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	val := strconv.FormatInt(at.UnixNano(), 10)
	if err := r.client.Set(ctx, r.userPrefix+userID, val, ttl).Err(); err != nil {
		return fmt.Errorf("revoke sessions of %s: %w", userID, err)
	}
	return nil
}

func (r *RedisRevoker) UserRevokedAt(ctx context.Context, userID string) (time.Time, error) {
	n, err := r.client.Get(ctx, r.userPrefix+userID).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("check session cutoff: %w", err)
	}
	return time.Unix(0, n), nil
}
