// Package store abstracts the persistent key-value store backing result
// retention, worker heartbeats, and queue mirrors. The contract is the small
// set of atomic primitives the scheduler needs: sorted-set insert/pop-highest,
// set membership operations, and get/set with expiry. Store failures always
// propagate; nothing is retried at this layer.
package store

import (
	"context"
	"time"
)

// Store is the persistence contract used by the queue and coordinator.
// Implementations must make each operation atomic.
type Store interface {
	// ZAdd inserts a member into a sorted set with the given score.
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZPopMax removes and returns the highest-scored member.
	// The third return value is false when the set is empty.
	ZPopMax(ctx context.Context, key string) (string, float64, bool, error)

	// ZRem removes a member from a sorted set.
	ZRem(ctx context.Context, key string, member string) error

	// ZCard returns the cardinality of a sorted set.
	ZCard(ctx context.Context, key string) (int64, error)

	// SAdd adds members to a set.
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from a set.
	SRem(ctx context.Context, key string, members ...string) error

	// SCard returns the cardinality of a set.
	SCard(ctx context.Context, key string) (int64, error)

	// SMembers returns all members of a set.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Set stores a value under key. A positive ttl bounds its retention.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value under key; the bool is false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Del removes a key.
	Del(ctx context.Context, key string) error

	// Close releases the underlying client.
	Close() error
}

// Key helpers shared by all implementations so queue and coordinator state
// stay in predictable namespaces.

// ResultKey is the key holding the serialized result of a task.
func ResultKey(taskID string) string {
	return "colony:result:" + taskID
}

// HeartbeatKey is the key holding a worker's last-seen heartbeat.
func HeartbeatKey(workerID string) string {
	return "colony:heartbeat:" + workerID
}

// ReadyKey is the sorted set mirroring a queue's ready tasks by priority.
func ReadyKey(queueName string) string {
	return "colony:queue:" + queueName + ":ready"
}

// DepsKey is the set holding the unresolved dependency ids of a task.
func DepsKey(taskID string) string {
	return "colony:deps:" + taskID
}
