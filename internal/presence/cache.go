package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotCached is returned when a user has no cached presence entry.
var ErrNotCached = errors.New("presence not cached")

type entry struct {
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Cache keeps a hot copy of the durable presence flag in Redis so presence
// reads skip the database. The users table stays authoritative; a nil Cache
// (or a nil client) disables all operations.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache wraps a Redis client. Passing nil yields a disabled cache.
func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb, ttl: 24 * time.Hour}
}

// OpenFromEnv connects to Redis when REDIS_ADDR is set and returns nil otherwise.
func OpenFromEnv() *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	_ = rdb.Ping(context.Background()).Err()
	return rdb
}

func key(userID int) string { return fmt.Sprintf("presence:%d", userID) }

// Set records the user's presence state.
func (c *Cache) Set(ctx context.Context, userID int, online bool, lastSeen time.Time) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	b, _ := json.Marshal(entry{IsOnline: online, LastSeen: &lastSeen})
	return c.rdb.Set(ctx, key(userID), b, c.ttl).Err()
}

// Get returns the cached presence state, or ErrNotCached on a miss.
func (c *Cache) Get(ctx context.Context, userID int) (bool, *time.Time, error) {
	if c == nil || c.rdb == nil {
		return false, nil, ErrNotCached
	}
	val, err := c.rdb.Get(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil, ErrNotCached
	}
	if err != nil {
		return false, nil, err
	}
	var e entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return false, nil, ErrNotCached
	}
	return e.IsOnline, e.LastSeen, nil
}
