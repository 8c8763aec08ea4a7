package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/guest-feedback/pkg/logger"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
	Close() error
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, url, password string, db int) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	opts.DB = db

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is an in-process Store for local runs without Redis.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value     string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return "", ErrMiss
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		delete(m.items, key)
		return "", ErrMiss
	}
	return item.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = item
	return nil
}

func (m *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item, ok := m.items[key]; ok && (item.expiresAt.IsZero() || m.now().Before(item.expiresAt)) {
		return false, nil
	}
	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = item
	return true, nil
}

func (m *MemoryStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	if item, ok := m.items[key]; ok {
		parsed, err := strconv.ParseInt(item.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer", key)
		}
		n = parsed
	}
	n++
	m.items[key] = memoryItem{value: strconv.FormatInt(n, 10)}
	return n, nil
}

func (m *MemoryStore) Close() error { return nil }

const generationKey = "analytics:gen"

// Versioned caches read results under a generation number. Invalidate bumps
// the generation so every previously cached entry becomes unreachable.
type Versioned struct {
	store  Store
	prefix string
	ttl    time.Duration
}

func NewVersioned(store Store, prefix string, ttl time.Duration) *Versioned {
	return &Versioned{store: store, prefix: prefix, ttl: ttl}
}

func (v *Versioned) Invalidate(ctx context.Context) error {
	if v == nil || v.store == nil {
		return nil
	}
	_, err := v.store.Incr(ctx, generationKey)
	return err
}

func (v *Versioned) key(ctx context.Context, op string, params any) (string, error) {
	gen, err := v.store.Get(ctx, generationKey)
	if errors.Is(err, ErrMiss) {
		gen = "0"
	} else if err != nil {
		return "", err
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%s:%s:%s", v.prefix, gen, op, hex.EncodeToString(sum[:12])), nil
}

// Remember returns the cached value for (op, params) or calls load and caches
// its result. Cache failures are logged and fall through to load.
func Remember[T any](ctx context.Context, v *Versioned, op string, params any, load func(context.Context) (T, error)) (T, error) {
	if v == nil || v.store == nil {
		return load(ctx)
	}

	key, err := v.key(ctx, op, params)
	if err != nil {
		logger.WarnContext(ctx, "Analytics cache key failed", "op", op, "error", err)
		return load(ctx)
	}

	if raw, err := v.store.Get(ctx, key); err == nil {
		var out T
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out, nil
		}
	} else if !errors.Is(err, ErrMiss) {
		logger.WarnContext(ctx, "Analytics cache read failed", "op", op, "error", err)
	}

	out, err := load(ctx)
	if err != nil {
		return out, err
	}

	if raw, err := json.Marshal(out); err == nil {
		if err := v.store.Set(ctx, key, string(raw), v.ttl); err != nil {
			logger.WarnContext(ctx, "Analytics cache write failed", "op", op, "error", err)
		}
	}
	return out, nil
}
