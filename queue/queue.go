package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Job 一次转码任务，以视频ID为键，可重复执行
type Job struct {
	ID         string    `json:"id"`
	VideoID    int64     `json:"videoId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// NewJob creates a job for the given video.
func NewJob(videoID int64) Job {
	return Job{
		ID:         uuid.NewString(),
		VideoID:    videoID,
		EnqueuedAt: time.Now(),
	}
}

// Queue decouples the write path from transcoding execution.
// Dequeue blocks until a job is available or the context is done.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
}

// redis列表键，LPUSH入队、BRPOP出队，先进先出
const redisQueueKey = "transcode_jobs"

// RedisQueue is the production queue on a Redis list.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a RedisQueue.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.LPush(ctx, redisQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job for video %d: %w", job.VideoID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		// 带超时的BRPOP，定期醒来检查ctx
		result, err := q.client.BRPop(ctx, 5*time.Second, redisQueueKey).Result()
		if err != nil {
			if err == redis.Nil {
				if ctx.Err() != nil {
					return Job{}, ctx.Err()
				}
				continue
			}
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("failed to dequeue job: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			return Job{}, fmt.Errorf("failed to unmarshal job payload: %w", err)
		}
		return job, nil
	}
}

// MemoryQueue is an in-process channel queue for tests and embedded workers.
type MemoryQueue struct {
	jobs chan Job
}

// NewMemoryQueue creates a MemoryQueue with the given buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{jobs: make(chan Job, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queue full")
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}
