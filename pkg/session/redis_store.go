package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// allStates is used to reindex a user whose state changed.
var allStates = []State{
	StateIdle,
	StateWaitingForRepo,
	StateAnalyzing,
	StateReadyForQuery,
	StateWaitingForAnswer,
}

// RedisStore implements Store using Redis.
// Sessions are stored as JSON values keyed by user id, with per-state index
// sets for scanning and a sorted set of last-activity timestamps for eviction.
type RedisStore struct {
	client *redis.Client
	prefix string
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all session keys (default: "repoinsight:session:").
	Prefix string
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "repoinsight:session:"
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

// NewRedisStoreFromClient creates a store from an existing client.
// This is useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "repoinsight:session:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Key helpers
func (s *RedisStore) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

func (s *RedisStore) stateIndexKey(state State) string {
	return s.prefix + "state:" + string(state)
}

func (s *RedisStore) activityKey() string {
	return s.prefix + "activity"
}

func (s *RedisStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Get retrieves the session for a user.
func (s *RedisStore) Get(ctx context.Context, userID string) (*Session, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.userKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if _, err := ParseState(string(sess.State)); err != nil {
		return nil, err
	}

	return &sess, nil
}

// Put creates or replaces the session for a user, moving it between state
// index sets atomically with the value write.
func (s *RedisStore) Put(ctx context.Context, sess *Session) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := sess.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.userKey(sess.UserID), data, 0)
	for _, st := range allStates {
		if st == sess.State {
			pipe.SAdd(ctx, s.stateIndexKey(st), sess.UserID)
		} else {
			pipe.SRem(ctx, s.stateIndexKey(st), sess.UserID)
		}
	}
	pipe.ZAdd(ctx, s.activityKey(), redis.Z{
		Score:  activityScore(sess.LastActivity),
		Member: sess.UserID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes the session for a user.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.userKey(userID))
	for _, st := range allStates {
		pipe.SRem(ctx, s.stateIndexKey(st), userID)
	}
	pipe.ZRem(ctx, s.activityKey(), userID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListByState returns all sessions currently in the given state.
func (s *RedisStore) ListByState(ctx context.Context, state State) ([]*Session, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	userIDs, err := s.client.SMembers(ctx, s.stateIndexKey(state)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	// Redis sets are unordered; sort for deterministic scans.
	sort.Strings(userIDs)

	sessions := make([]*Session, 0, len(userIDs))
	for _, id := range userIDs {
		sess, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				// Session was deleted, clean up the dangling index entry.
				s.client.SRem(ctx, s.stateIndexKey(state), id)
				continue
			}
			if errors.Is(err, ErrCorruptSession) {
				// One bad record must not stop the scan over the rest.
				log.Printf("[SESSION] skipping corrupt record for user %s: %v", id, err)
				s.client.SRem(ctx, s.stateIndexKey(state), id)
				continue
			}
			return nil, err
		}
		if sess.State != state {
			// Index lagged behind a concurrent Put; skip.
			continue
		}
		sessions = append(sessions, sess)
	}

	return sessions, nil
}

// DeleteInactiveBefore removes every session whose last activity predates the
// cutoff.
func (s *RedisStore) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	max := "(" + strconv.FormatFloat(activityScore(cutoff), 'f', -1, 64)
	userIDs, err := s.client.ZRangeByScore(ctx, s.activityKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan inactive sessions: %w", err)
	}

	removed := 0
	for _, id := range userIDs {
		if err := s.Delete(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Ping checks if the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.client.Ping(ctx).Err()
}

// Close releases resources held by the store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func activityScore(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
