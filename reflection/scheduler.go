package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ScheduleDelay is how far in the future a scheduled pass becomes due.
const ScheduleDelay = 5 * time.Minute

// ScheduledRequest is a deferred reflection pass handed to a task queue.
type ScheduledRequest struct {
	ID        string    `json:"id"`
	Request   Request   `json:"request"`
	DueAt     time.Time `json:"due_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Queue hands scheduled requests to an external executor. The core does
// not implement cron/timer logic itself; it only enqueues and pops due
// work.
type Queue interface {
	// Enqueue adds a scheduled request, ordered by due time.
	Enqueue(ctx context.Context, req *ScheduledRequest) error

	// PopDue removes and returns the earliest request due at or before
	// now, or nil when nothing is due.
	PopDue(ctx context.Context, now time.Time) (*ScheduledRequest, error)

	// Len returns the number of pending requests.
	Len(ctx context.Context) (int, error)
}

// Scheduler builds deferred reflection requests and hands them off.
type Scheduler struct {
	queue  Queue
	now    func() time.Time
	logger *zap.Logger
}

// NewScheduler creates a scheduler over the given queue.
func NewScheduler(queue Queue, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		queue:  queue,
		now:    time.Now,
		logger: logger.With(zap.String("component", "reflection_scheduler")),
	}
}

// WithNow overrides the clock, for tests.
func (s *Scheduler) WithNow(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Schedule enqueues a reflection pass due ScheduleDelay from now.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (*ScheduledRequest, error) {
	now := s.now()
	scheduled := &ScheduledRequest{
		ID:        uuid.NewString(),
		Request:   req,
		DueAt:     now.Add(ScheduleDelay),
		CreatedAt: now,
	}
	if err := s.queue.Enqueue(ctx, scheduled); err != nil {
		return nil, fmt.Errorf("enqueue reflection request: %w", err)
	}

	s.logger.Info("reflection scheduled",
		zap.String("id", scheduled.ID),
		zap.String("conductor", req.Conductor),
		zap.Time("due_at", scheduled.DueAt))

	return scheduled, nil
}

// RunDue pops every due request and runs the immediate pipeline for it.
// Returns the number of passes executed.
func (s *Scheduler) RunDue(ctx context.Context, engine *Engine) (int, error) {
	ran := 0
	for {
		scheduled, err := s.queue.PopDue(ctx, s.now())
		if err != nil {
			return ran, fmt.Errorf("pop due reflection request: %w", err)
		}
		if scheduled == nil {
			return ran, nil
		}
		engine.Generate(ctx, scheduled.Request)
		ran++
	}
}

// RedisQueue is a Queue backed by a Redis sorted set scored by due time.
// Suitable for distributed deployments where a separate worker drains
// the queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue on the given client. keyPrefix defaults
// to "memcore:".
func NewRedisQueue(client *redis.Client, keyPrefix string) *RedisQueue {
	if keyPrefix == "" {
		keyPrefix = "memcore:"
	}
	return &RedisQueue{
		client: client,
		key:    keyPrefix + "reflection:due",
	}
}

// Enqueue adds the request scored by its due time.
func (q *RedisQueue) Enqueue(ctx context.Context, req *ScheduledRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal scheduled request: %w", err)
	}
	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(req.DueAt.Unix()),
		Member: payload,
	}).Err()
}

// PopDue removes and returns the earliest due request.
func (q *RedisQueue) PopDue(ctx context.Context, now time.Time) (*ScheduledRequest, error) {
	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.Unix()),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	// A competing worker may steal the member between range and remove;
	// ZRem reports whether we won.
	removed, err := q.client.ZRem(ctx, q.key, members[0]).Result()
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		return nil, nil
	}

	var req ScheduledRequest
	if err := json.Unmarshal([]byte(members[0]), &req); err != nil {
		return nil, fmt.Errorf("unmarshal scheduled request: %w", err)
	}
	return &req, nil
}

// Len returns the number of pending requests.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.key).Result()
	return int(n), err
}
