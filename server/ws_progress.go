package server

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"Videoflix/core/hls"
	"Videoflix/logger"
	"Videoflix/queue"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// progressMessage 推送给客户端的进度消息
type progressMessage struct {
	Type      string `json:"type"` // status | segment
	VideoID   int64  `json:"videoId"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	Rendition string `json:"rendition,omitempty"`
	Segment   string `json:"segment,omitempty"`
}

// TranscodeProgressHandler streams transcode progress over a websocket:
// 任务状态变化来自通知器，分片落盘事件来自fsnotify对视频目录的监听。
// 任务完成或失败后发送最终状态并关闭连接。
func (h *APIHandler) TranscodeProgressHandler(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoIDFromRequest(r)
	if !ok || !h.videoExists(videoID) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("[Progress] websocket升级失败", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe, err := h.notifier.Subscribe(ctx, videoID)
	if err != nil {
		logger.Error("[Progress] 订阅任务状态失败", logger.Int64("videoId", videoID), logger.ErrorField(err))
		return
	}
	defer unsubscribe()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("[Progress] 创建文件监听失败", logger.ErrorField(err))
		return
	}
	defer watcher.Close()

	// 监听视频目录和已有的档位子目录；转码中新建的子目录在事件里补挂
	videoDir := h.renditions.VideoDir(videoID)
	watcher.Add(videoDir)
	for _, rendition := range hls.Renditions {
		watcher.Add(h.renditions.RenditionDir(videoID, rendition.Name))
	}

	// 客户端断开时结束本次推送
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			msg := progressMessage{
				Type:    "status",
				VideoID: videoID,
				Status:  string(event.Status),
				Error:   event.Error,
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			if event.Status == queue.StatusCompleted || event.Status == queue.StatusFailed {
				return
			}

		case fsEvent, ok := <-watcher.Events:
			if !ok {
				return
			}
			if fsEvent.Op&fsnotify.Create == 0 {
				continue
			}
			name := filepath.Base(fsEvent.Name)
			switch {
			case strings.HasSuffix(name, ".ts"):
				msg := progressMessage{
					Type:      "segment",
					VideoID:   videoID,
					Rendition: filepath.Base(filepath.Dir(fsEvent.Name)),
					Segment:   name,
				}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			default:
				// 可能是新的档位目录
				if _, known := hls.RenditionByName(name); known {
					watcher.Add(fsEvent.Name)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("[Progress] 文件监听错误", logger.ErrorField(err))

		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
