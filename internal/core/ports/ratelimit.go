package ports

import (
	"context"
	"time"
)

// CounterStore increments a counter atomically. The ttl applies when the
// key is first created.
type CounterStore interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
