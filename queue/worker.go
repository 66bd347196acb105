package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Videoflix/cache"
	"Videoflix/core/hls"
	"Videoflix/logger"
	"Videoflix/repository"
)

// Pool 转码工作池。从队列取任务，调用转码适配器，完成后清掉该视频
// 的旧缓存。任务失败只上报，不会让工作协程退出。
type Pool struct {
	queue      Queue
	transcoder hls.Transcoder
	videoRepo  repository.VideoRepository
	videoCache *cache.VideoCache
	notifier   Notifier
	locker     *VideoLocker
	size       int

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool of the given size.
func NewPool(q Queue, t hls.Transcoder, repo repository.VideoRepository, c *cache.VideoCache, n Notifier, locker *VideoLocker, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		queue:      q,
		transcoder: t,
		videoRepo:  repo,
		videoCache: c,
		notifier:   n,
		locker:     locker,
		size:       size,
	}
}

// Start launches the workers. Returns an error if already started.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return fmt.Errorf("worker pool already started")
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	logger.Info("转码工作池已启动", logger.Int("workers", p.size))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("取任务失败", logger.Int("worker", id), logger.ErrorField(err))
			time.Sleep(time.Second)
			continue
		}

		p.process(ctx, job)
	}
}

// process runs one job to completion or failure.
func (p *Pool) process(ctx context.Context, job Job) {
	// 同一视频串行执行，防止并发更新和在跑任务互踩
	p.locker.Lock(job.VideoID)
	defer p.locker.Unlock(job.VideoID)

	p.publish(ctx, job, StatusProcessing, nil)

	video, err := p.videoRepo.GetVideoByID(job.VideoID)
	if err != nil {
		p.fail(ctx, job, fmt.Errorf("failed to load video record: %w", err))
		return
	}
	if video == nil {
		// 任务还在队列里时视频已被删除
		logger.Warn("视频记录不存在，任务作废",
			logger.Int64("videoId", job.VideoID),
			logger.String("jobId", job.ID))
		p.fail(ctx, job, fmt.Errorf("video record not found"))
		return
	}

	start := time.Now()
	if err := p.transcoder.ConvertVideo(ctx, video.ID, video.FilePath); err != nil {
		p.fail(ctx, job, err)
		return
	}

	// 上一次转码可能留下过期的缓存条目
	if err := p.videoCache.InvalidateVideo(ctx, video.ID); err != nil {
		logger.Warn("转码后清理缓存失败", logger.Int64("videoId", video.ID), logger.ErrorField(err))
	}

	logger.Info("转码任务完成",
		logger.Int64("videoId", video.ID),
		logger.String("jobId", job.ID),
		logger.Duration("elapsed", time.Since(start)))
	p.publish(ctx, job, StatusCompleted, nil)
}

func (p *Pool) fail(ctx context.Context, job Job, err error) {
	logger.Error("转码任务失败",
		logger.Int64("videoId", job.VideoID),
		logger.String("jobId", job.ID),
		logger.ErrorField(err))
	p.publish(ctx, job, StatusFailed, err)
}

func (p *Pool) publish(ctx context.Context, job Job, status Status, jobErr error) {
	event := StatusEvent{
		JobID:   job.ID,
		VideoID: job.VideoID,
		Status:  status,
		At:      time.Now(),
	}
	if jobErr != nil {
		event.Error = jobErr.Error()
	}
	if err := p.notifier.Publish(ctx, event); err != nil {
		logger.Warn("发布任务状态失败", logger.String("jobId", job.ID), logger.ErrorField(err))
	}
}
