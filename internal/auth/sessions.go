package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mpk-pharma/kanha/internal/shared"
)

// SessionStore keeps login sessions in Redis so tokens can be revoked before
// they expire.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

type sessionPayload struct {
	Principal shared.Principal `json:"principal"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl, now: time.Now}
}

// Create registers a new session for principal.
func (s *SessionStore) Create(ctx context.Context, p shared.Principal) (string, time.Time, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := s.now().Add(s.ttl).UTC().Truncate(time.Second)
	data, err := json.Marshal(sessionPayload{Principal: p, ExpiresAt: expiresAt})
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.client.Set(ctx, s.redisKey(id.String()), data, s.ttl).Err(); err != nil {
		return "", time.Time{}, err
	}
	return id.String(), expiresAt, nil
}

// Lookup returns the principal of a live session.
func (s *SessionStore) Lookup(ctx context.Context, id string) (shared.Principal, error) {
	if id == "" {
		return shared.Principal{}, shared.ErrSessionRevoked
	}
	payload, err := s.client.Get(ctx, s.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return shared.Principal{}, shared.ErrSessionRevoked
		}
		return shared.Principal{}, err
	}
	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return shared.Principal{}, err
	}
	return stored.Principal, nil
}

// Revoke deletes the session. Revoking an unknown session is not an error.
func (s *SessionStore) Revoke(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.redisKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// TTL exposes the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

func (s *SessionStore) redisKey(id string) string {
	return "session:" + id
}
