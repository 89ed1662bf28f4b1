package session

import (
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreType selects a Store implementation.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

const (
	defaultKeyPrefix = "assistant:session:"
	defaultTTL       = 24 * time.Hour
)

// StoreOption configures NewStore.
type StoreOption func(*storeOptions)

type storeOptions struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// WithRedisClient sets the client used by the redis store. Required for StoreTypeRedis.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(o *storeOptions) { o.client = client }
}

// WithRedisTTL sets how long an idle session survives. Default: 24 hours
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(o *storeOptions) { o.ttl = ttl }
}

// WithKeyPrefix namespaces redis keys. Default: "assistant:session:"
func WithKeyPrefix(prefix string) StoreOption {
	return func(o *storeOptions) { o.prefix = prefix }
}

// NewStore builds the Store for storeType. An empty type means memory.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	o := storeOptions{ttl: defaultTTL, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	switch storeType {
	case StoreTypeMemory, "":
		return &memoryStore{threads: make(map[string]*SessionData)}, nil
	case StoreTypeRedis:
		if o.client == nil {
			return nil, ErrInvalidConfig
		}
		if o.ttl <= 0 {
			o.ttl = defaultTTL
		}
		if o.prefix == "" {
			o.prefix = defaultKeyPrefix
		}
		return &redisStore{client: o.client, ttl: o.ttl, prefix: o.prefix}, nil
	default:
		return nil, ErrInvalidStoreType
	}
}

// memoryStore is a process-local Store. Sessions are copied on the way in and
// out so a caller holding a stale copy still hits the version check.
type memoryStore struct {
	mu      sync.RWMutex
	threads map[string]*SessionData
}
