package cache

import (
	"context"
	"fmt"
	"time"

	"Videoflix/core/hls"
	"Videoflix/logger"
)

// 三个键族的TTL
const (
	ListTTL     = 1 * time.Hour
	PlaylistTTL = 6 * time.Hour
	SegmentTTL  = 12 * time.Hour
)

// ListKey 视频列表的全局缓存键
const ListKey = "video_list"

// PlaylistKey 单个档位索引播放列表的缓存键
func PlaylistKey(videoID int64, rendition string) string {
	return fmt.Sprintf("hls_playlist_%d_%s", videoID, rendition)
}

// SegmentKey 单个媒体分片的缓存键
func SegmentKey(videoID int64, rendition, segment string) string {
	return fmt.Sprintf("hls_segment_%d_%s_%s", videoID, rendition, segment)
}

// VideoCache 是列表/播放列表/分片三类读穿缓存。
// 未命中时从后端（仓库序列化结果或磁盘上的HLS文件）加载并写回；
// 后端文件不存在时直接上抛 not-found，不缓存任何内容。
type VideoCache struct {
	store      Store
	renditions *hls.Store
}

// NewVideoCache creates a VideoCache over the given backends.
func NewVideoCache(store Store, renditions *hls.Store) *VideoCache {
	return &VideoCache{store: store, renditions: renditions}
}

// List serves the serialized video listing, loading through on a miss.
func (c *VideoCache) List(ctx context.Context, load func() ([]byte, error)) ([]byte, error) {
	if data := c.get(ctx, ListKey); data != nil {
		return data, nil
	}

	data, err := load()
	if err != nil {
		return nil, err
	}

	c.set(ctx, ListKey, data, ListTTL)
	return data, nil
}

// Playlist serves a rendition's index playlist through the cache.
func (c *VideoCache) Playlist(ctx context.Context, videoID int64, rendition string) ([]byte, error) {
	key := PlaylistKey(videoID, rendition)
	if data := c.get(ctx, key); data != nil {
		return data, nil
	}

	data, err := c.renditions.ReadPlaylist(videoID, rendition)
	if err != nil {
		return nil, err
	}

	c.set(ctx, key, data, PlaylistTTL)
	return data, nil
}

// Segment serves one media segment through the cache.
func (c *VideoCache) Segment(ctx context.Context, videoID int64, rendition, segment string) ([]byte, error) {
	key := SegmentKey(videoID, rendition, segment)
	if data := c.get(ctx, key); data != nil {
		return data, nil
	}

	data, err := c.renditions.ReadSegment(videoID, rendition, segment)
	if err != nil {
		return nil, err
	}

	c.set(ctx, key, data, SegmentTTL)
	return data, nil
}

// InvalidateVideo removes the list key, every playlist key of the fixed
// rendition set, and a segment key for every segment file currently present
// on disk. 未落盘的分片从未被缓存过，无需处理。
func (c *VideoCache) InvalidateVideo(ctx context.Context, videoID int64) error {
	keys := []string{ListKey}
	for _, r := range hls.Renditions {
		keys = append(keys, PlaylistKey(videoID, r.Name))
		for _, segment := range c.renditions.ListSegments(videoID, r.Name) {
			keys = append(keys, SegmentKey(videoID, r.Name, segment))
		}
	}

	if err := c.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to invalidate cache for video %d: %w", videoID, err)
	}

	logger.Debug("缓存已失效",
		logger.Int64("videoId", videoID),
		logger.Int("keys", len(keys)))
	return nil
}

// InvalidateList removes only the listing key (metadata-only updates).
func (c *VideoCache) InvalidateList(ctx context.Context) error {
	return c.store.Delete(ctx, ListKey)
}

// get 读缓存，任何错误都按未命中处理，让调用方回落到磁盘
func (c *VideoCache) get(ctx context.Context, key string) []byte {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		logger.Warn("读取缓存失败，回落到后端",
			logger.String("key", key),
			logger.ErrorField(err))
		return nil
	}
	return data
}

// set 写缓存，失败只记日志，不影响响应
func (c *VideoCache) set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		logger.Warn("写入缓存失败",
			logger.String("key", key),
			logger.Int("dataSize", len(data)),
			logger.ErrorField(err))
	}
}
