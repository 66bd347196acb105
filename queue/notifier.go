package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Status 任务状态
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// StatusEvent is one progress update of a transcode job.
type StatusEvent struct {
	JobID   string    `json:"jobId"`
	VideoID int64     `json:"videoId"`
	Status  Status    `json:"status"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier publishes and subscribes to job status updates.
type Notifier interface {
	Publish(ctx context.Context, event StatusEvent) error
	// Subscribe 返回某个视频的事件通道，cancel 用于退订
	Subscribe(ctx context.Context, videoID int64) (<-chan StatusEvent, func(), error)
}

func statusChannel(videoID int64) string {
	return fmt.Sprintf("transcode_status_%d", videoID)
}

// RedisNotifier distributes status events over Redis pub/sub.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier creates a RedisNotifier.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, event StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}
	if err := n.client.Publish(ctx, statusChannel(event.VideoID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish status event: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Subscribe(ctx context.Context, videoID int64) (<-chan StatusEvent, func(), error) {
	sub := n.client.Subscribe(ctx, statusChannel(videoID))
	// 确认订阅建立
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to status channel: %w", err)
	}

	events := make(chan StatusEvent, 16)
	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			var event StatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case events <- event:
			default:
				// 消费方太慢就丢弃，进度事件可丢
			}
		}
	}()

	cancel := func() { sub.Close() }
	return events, cancel, nil
}

// MemoryNotifier is an in-process Notifier for tests and embedded workers.
type MemoryNotifier struct {
	mu   sync.Mutex
	subs map[int64][]chan StatusEvent
}

// NewMemoryNotifier creates a MemoryNotifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[int64][]chan StatusEvent)}
}

func (n *MemoryNotifier) Publish(_ context.Context, event StatusEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[event.VideoID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (n *MemoryNotifier) Subscribe(_ context.Context, videoID int64) (<-chan StatusEvent, func(), error) {
	ch := make(chan StatusEvent, 16)

	n.mu.Lock()
	n.subs[videoID] = append(n.subs[videoID], ch)
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subs := n.subs[videoID]
		for i, c := range subs {
			if c == ch {
				n.subs[videoID] = append(subs[:i], subs[i+1:]...)
				close(c)
				break
			}
		}
	}
	return ch, cancel, nil
}
