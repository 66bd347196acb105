package hls

import "errors"

var (
	// ErrSourceMissing 源媒体文件不存在，任务级致命错误
	ErrSourceMissing = errors.New("source media file missing")
	// ErrArtifactNotFound 请求的播放列表或分片在磁盘上不存在
	ErrArtifactNotFound = errors.New("hls artifact not found")
)
