package queue

import "sync"

// VideoLocker 按视频ID串行化：同一视频同时只允许一个转码任务，
// 删除/更新路径清理文件前也要拿同一把锁，避免和在跑的任务互踩。
type VideoLocker struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewVideoLocker creates an empty VideoLocker.
func NewVideoLocker() *VideoLocker {
	return &VideoLocker{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the per-video mutex, creating it on first use.
func (l *VideoLocker) Lock(videoID int64) {
	l.mutexFor(videoID).Lock()
}

// Unlock releases the per-video mutex.
func (l *VideoLocker) Unlock(videoID int64) {
	l.mutexFor(videoID).Unlock()
}

func (l *VideoLocker) mutexFor(videoID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[videoID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[videoID] = m
	}
	return m
}
