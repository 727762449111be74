package assessment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/p-n-ai/ai-literacy/internal/platform/cache"
)

// SessionStore holds issued tests until they are submitted or expire.
type SessionStore interface {
	Save(ctx context.Context, test Test) error
	Load(ctx context.Context, id string) (Test, error)
	// Take removes the test and returns it. Of several concurrent calls
	// for one id, exactly one succeeds; the rest get ErrTestNotFound.
	Take(ctx context.Context, id string) (Test, error)
	Delete(ctx context.Context, id string) error
}

type session struct {
	test    Test
	expires time.Time
}

// MemorySessionStore is an in-process SessionStore with expiry.
type MemorySessionStore struct {
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]session
	mu       sync.Mutex
}

// NewMemorySessionStore creates a store whose tests expire after ttl.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]session),
	}
}

func (s *MemorySessionStore) Save(_ context.Context, test Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// Drop expired sessions on write so the map stays bounded by live tests.
	for id, sess := range s.sessions {
		if now.After(sess.expires) {
			delete(s.sessions, id)
		}
	}
	s.sessions[test.ID] = session{test: test, expires: now.Add(s.ttl)}
	return nil
}

func (s *MemorySessionStore) Load(_ context.Context, id string) (Test, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || s.now().After(sess.expires) {
		return Test{}, ErrTestNotFound
	}
	return sess.test, nil
}

func (s *MemorySessionStore) Take(_ context.Context, id string) (Test, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	if !ok || s.now().After(sess.expires) {
		return Test{}, ErrTestNotFound
	}
	return sess.test, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// RedisSessionStore keeps issued tests in Redis with a TTL so any replica can
// grade a submission.
type RedisSessionStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(c *cache.Cache, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{cache: c, ttl: ttl}
}

func sessionKey(id string) string {
	return "test:" + id
}

func (s *RedisSessionStore) Save(ctx context.Context, test Test) error {
	if err := s.cache.SetJSON(ctx, sessionKey(test.ID), test, s.ttl); err != nil {
		return fmt.Errorf("save test session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Load(ctx context.Context, id string) (Test, error) {
	var test Test
	err := s.cache.GetJSON(ctx, sessionKey(id), &test)
	if errors.Is(err, cache.ErrMiss) {
		return Test{}, ErrTestNotFound
	}
	if err != nil {
		return Test{}, fmt.Errorf("load test session: %w", err)
	}
	return test, nil
}

func (s *RedisSessionStore) Take(ctx context.Context, id string) (Test, error) {
	var test Test
	err := s.cache.TakeJSON(ctx, sessionKey(id), &test)
	if errors.Is(err, cache.ErrMiss) {
		return Test{}, ErrTestNotFound
	}
	if err != nil {
		return Test{}, fmt.Errorf("take test session: %w", err)
	}
	return test, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, sessionKey(id))
}
