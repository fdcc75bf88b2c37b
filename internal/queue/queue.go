package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Queue names. Each maps to one Redis list external workers BRPOP from;
// synthesis fans out across one list per priority tier.
const (
	Validation = "validation"
	Conversion = "conversion"
	Synthesis  = "synthesis"
)

// Priority is the coarse scheduling tier for synthesis work. Workers drain
// the high list before normal, and normal before low.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ParsePriority maps a request-supplied priority string onto a tier.
// Anything other than "high" or "low" is normal.
func ParsePriority(raw string) Priority {
	switch raw {
	case string(PriorityHigh):
		return PriorityHigh
	case string(PriorityLow):
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Key returns the Redis list key for a queue. Only the synthesis queue is
// tiered; the priority is ignored for the others.
func Key(name string, priority Priority) string {
	if name == Synthesis {
		if priority == "" {
			priority = PriorityNormal
		}
		return fmt.Sprintf("bindery:queue:%s:%s", name, priority)
	}
	return "bindery:queue:" + name
}

// Dispatcher pushes work items onto named queues for external workers.
type Dispatcher interface {
	Enqueue(ctx context.Context, name string, payload any, priority Priority) error
}

// RedisDispatcher is the production Dispatcher backed by Redis lists.
// LPUSH here pairs with BRPOP on the worker side for FIFO ordering
// within a tier.
type RedisDispatcher struct {
	client *redis.Client
}

func NewRedisDispatcher(client *redis.Client) *RedisDispatcher {
	return &RedisDispatcher{client: client}
}

func (d *RedisDispatcher) Enqueue(ctx context.Context, name string, payload any, priority Priority) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal queue payload: %w", err)
	}
	if err := d.client.LPush(ctx, Key(name, priority), body).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", name, err)
	}
	return nil
}
