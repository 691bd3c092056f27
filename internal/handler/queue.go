package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Queue lifecycle states reported by /status.
const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

const queueKey = "jobs:queue"

// JobStatus is the /status payload for an async job.
type JobStatus struct {
	ID     string    `json:"id"`
	Status string    `json:"status"`
	Output *Response `json:"output,omitempty"`
}

// Queue is the redis-backed async job pipeline: /run pushes job ids onto a
// list, a single worker goroutine pops and processes them, results are kept
// with a TTL for /status lookups.
type Queue struct {
	rdb     *redis.Client
	handler *Handler
	ttl     time.Duration
	log     *zap.Logger
}

func NewQueue(addr, password string, db int, h *Handler, ttl time.Duration) (*Queue, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Queue{rdb: rdb, handler: h, ttl: ttl, log: zap.L()}, nil
}

func jobKey(id, field string) string {
	return fmt.Sprintf("job:%s:%s", id, field)
}

// Enqueue stores the job input and pushes its id onto the work list.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if err := q.rdb.Set(ctx, jobKey(job.ID, "input"), []byte(job.Input), q.ttl).Err(); err != nil {
		return fmt.Errorf("store job input: %w", err)
	}
	if err := q.rdb.Set(ctx, jobKey(job.ID, "status"), StatusInQueue, q.ttl).Err(); err != nil {
		return fmt.Errorf("store job status: %w", err)
	}
	if err := q.rdb.LPush(ctx, queueKey, job.ID).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	q.log.Info("job enqueued", zap.String("job_id", job.ID))
	return nil
}

// Status reports a job's queue state, including the final envelope once done.
func (q *Queue) Status(ctx context.Context, id string) (*JobStatus, error) {
	status, err := q.rdb.Get(ctx, jobKey(id, "status")).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	st := &JobStatus{ID: id, Status: status}
	if status == StatusCompleted || status == StatusFailed {
		raw, err := q.rdb.Get(ctx, jobKey(id, "result")).Bytes()
		if err == nil {
			var resp Response
			if json.Unmarshal(raw, &resp) == nil {
				st.Output = &resp
			}
		}
	}
	return st, nil
}

// Run consumes the queue until the context is cancelled. Jobs run one at a
// time; the engine is the bottleneck, not this loop.
func (q *Queue) Run(ctx context.Context) {
	q.log.Info("queue worker started", zap.String("queue", queueKey))
	for {
		res, err := q.rdb.BRPop(ctx, 5*time.Second, queueKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				q.log.Info("queue worker stopping")
				return
			}
			q.log.Error("queue pop failed", zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		// res[0] is the queue key, res[1] the job id
		q.process(ctx, res[1])
	}
}

func (q *Queue) process(ctx context.Context, id string) {
	input, err := q.rdb.Get(ctx, jobKey(id, "input")).Bytes()
	if err != nil {
		q.log.Error("job input missing", zap.String("job_id", id), zap.Error(err))
		return
	}

	q.rdb.Set(ctx, jobKey(id, "status"), StatusInProgress, q.ttl)

	resp := q.handler.Handle(ctx, Job{ID: id, Input: input})

	status := StatusCompleted
	if resp.Error != "" {
		status = StatusFailed
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		q.log.Error("marshal result failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	q.rdb.Set(ctx, jobKey(id, "result"), raw, q.ttl)
	q.rdb.Set(ctx, jobKey(id, "status"), status, q.ttl)
}
