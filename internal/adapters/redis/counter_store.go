package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// incrWithTTL increments KEYS[1] and sets its expiry only when the
// increment created the key, so the window never slides.
var incrWithTTL = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// CounterStore backs fixed-window rate limits with Redis so every replica
// sees the same counts.
type CounterStore struct {
	client goredis.UniversalClient
	prefix string
}

type Option func(*CounterStore)

// WithKeyPrefix namespaces counter keys, e.g. per deployment.
func WithKeyPrefix(prefix string) Option {
	return func(s *CounterStore) { s.prefix = prefix }
}

func NewCounterStore(client goredis.UniversalClient, opts ...Option) *CounterStore {
	s := &CounterStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial parses a redis:// URL, connects and pings.
func Dial(ctx context.Context, url string, opts ...Option) (*CounterStore, error) {
	o, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewCounterStore(client, opts...), nil
}

func (s *CounterStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := incrWithTTL.Run(ctx, s.client, []string{s.prefix + key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return n, nil
}

func (s *CounterStore) Close() error {
	return s.client.Close()
}
