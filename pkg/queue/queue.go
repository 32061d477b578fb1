package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Job names known to the worker binaries.
const (
	JobDispatchDelivery = "delivery.dispatch"
	JobAttachTags       = "ticket.tags"
)

// Job is one durable unit of queued work. Payload is free-form; handlers
// pull out the keys they need.
type Job struct {
	ID      string                 `json:"id"`
	Name    string                 `json:"name"`
	Payload map[string]interface{} `json:"payload"`
	ReadyAt time.Time              `json:"ready_at"`
}

// Queue is a Redis-backed delayed job queue. Jobs live in a sorted set
// scored by their ready time; workers atomically pop due members, which
// gives at-least-once semantics across competing workers (a popped job that
// crashes mid-handler is lost, the delivered flag on the records themselves
// is the idempotency guard the other way).
type Queue struct {
	client *redis.Client
	key    string
}

func New(client *redis.Client, key string) *Queue {
	if key == "" {
		key = "relay:jobs"
	}
	return &Queue{client: client, key: key}
}

// Enqueue schedules a job. A zero delay makes it due immediately.
func (q *Queue) Enqueue(ctx context.Context, name string, payload map[string]interface{}, delay time.Duration) error {
	job := Job{
		ID:      uuid.New().String(),
		Name:    name,
		Payload: payload,
		ReadyAt: time.Now().UTC().Add(delay),
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(job.ReadyAt.UnixMilli()),
		Member: raw,
	}).Err()
}

// popScript atomically removes and returns the oldest due job.
var popScript = redis.NewScript(`
local jobs = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #jobs == 0 then
  return false
end
redis.call('ZREM', KEYS[1], jobs[1])
return jobs[1]
`)

// Pop returns the next due job, or nil when none is ready.
func (q *Queue) Pop(ctx context.Context) (*Job, error) {
	now := time.Now().UTC().UnixMilli()
	raw, err := popScript.Run(ctx, q.client, []string{q.key}, now).Text()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}
