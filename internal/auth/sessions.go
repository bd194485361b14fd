package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore tracks which issued tokens are still valid per user.
type SessionStore interface {
	Register(ctx context.Context, userID, sessionID string, ttl time.Duration) error
	Exists(ctx context.Context, userID, sessionID string) (bool, error)
	TerminateUserSessions(ctx context.Context, userID string) error
}

func sessionKey(userID string) string {
	return "sessions:" + userID
}

type redisSessionStore struct {
	client redis.UniversalClient
}

// NewRedisSessionStore keeps one set of session ids per user in Redis.
func NewRedisSessionStore(client redis.UniversalClient) SessionStore {
	return &redisSessionStore{client: client}
}

func (s *redisSessionStore) Register(ctx context.Context, userID, sessionID string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, sessionKey(userID), sessionID)
	pipe.Expire(ctx, sessionKey(userID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisSessionStore) Exists(ctx context.Context, userID, sessionID string) (bool, error) {
	return s.client.SIsMember(ctx, sessionKey(userID), sessionID).Result()
}

func (s *redisSessionStore) TerminateUserSessions(ctx context.Context, userID string) error {
	return s.client.Del(ctx, sessionKey(userID)).Err()
}

type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]time.Time
}

// NewMemorySessionStore keeps sessions in process.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{sessions: map[string]map[string]time.Time{}}
}

func (s *memorySessionStore) Register(_ context.Context, userID, sessionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[userID] == nil {
		s.sessions[userID] = map[string]time.Time{}
	}
	s.sessions[userID][sessionID] = time.Now().Add(ttl)
	return nil
}

func (s *memorySessionStore) Exists(_ context.Context, userID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.sessions[userID][sessionID]
	return ok && time.Now().Before(expires), nil
}

func (s *memorySessionStore) TerminateUserSessions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}
