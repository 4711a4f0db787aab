package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"linkforge-backend/shared/config"
)

// ErrNotInitialized is returned by a nil or closed CacheManager
var ErrNotInitialized = errors.New("cache manager not initialized")

// releaseScript deletes the lock only if it is still held by the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CacheManager wraps the Redis client used for cross-replica job locks
type CacheManager struct {
	client *redis.Client
}

// NewCacheManager connects to Redis using the shared configuration
func NewCacheManager(ctx context.Context, cfg *config.Config) (*CacheManager, error) {
	redisDB, err := strconv.Atoi(cfg.RedisDB)
	if err != nil {
		redisDB = 0
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       redisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CacheManager{client: client}, nil
}

// NewCacheManagerWithClient wraps an existing client
func NewCacheManagerWithClient(client *redis.Client) *CacheManager {
	return &CacheManager{client: client}
}

// GenerateLockKey generates the key guarding a periodic task
func GenerateLockKey(task string) string {
	return fmt.Sprintf("lock:session-janitor:%s", task)
}

// TryLock acquires the named lock for ttl. The returned release function is
// safe to call once the lock has expired or been taken by someone else.
func (cm *CacheManager) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	if cm == nil || cm.client == nil {
		return nil, false, ErrNotInitialized
	}

	key := GenerateLockKey(name)
	token := uuid.NewString()

	ok, err := cm.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, cm.client, []string{key}, token).Err()
	}
	return release, true, nil
}

// TestConnection tests the Redis connection
func (cm *CacheManager) TestConnection(ctx context.Context) error {
	if cm == nil || cm.client == nil {
		return ErrNotInitialized
	}
	return cm.client.Ping(ctx).Err()
}

// Close closes the cache manager connection
func (cm *CacheManager) Close() error {
	if cm != nil && cm.client != nil {
		return cm.client.Close()
	}
	return nil
}

// LocalLocker is the single-process fallback used when Redis is not configured
type LocalLocker struct {
	mutex sync.Mutex
	held  map[string]time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time)}
}

// TryLock acquires name unless it is held and not yet expired
func (l *LocalLocker) TryLock(_ context.Context, name string, ttl time.Duration) (func(), bool, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := time.Now()
	if until, exists := l.held[name]; exists && now.Before(until) {
		return nil, false, nil
	}

	until := now.Add(ttl)
	l.held[name] = until

	release := func() {
		l.mutex.Lock()
		defer l.mutex.Unlock()
		if l.held[name].Equal(until) {
			delete(l.held, name)
		}
	}
	return release, true, nil
}
