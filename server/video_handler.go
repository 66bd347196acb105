package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"Videoflix/logger"
	"Videoflix/model"
	"Videoflix/queue"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// 上传表单的内存缓冲上限，超出部分落临时文件
const maxMultipartMemory = 32 << 20

// ListVideosHandler serves the video listing through the list cache.
func (h *APIHandler) ListVideosHandler(w http.ResponseWriter, r *http.Request) {
	data, err := h.videoCache.List(r.Context(), func() ([]byte, error) {
		videos, err := h.videoRepo.GetAllVideos()
		if err != nil {
			return nil, err
		}

		summaries := make([]model.VideoSummary, 0, len(videos))
		for _, v := range videos {
			summaries = append(summaries, model.VideoSummary{
				ID:           v.ID,
				CreatedAt:    v.CreatedAt,
				Title:        v.Title,
				Description:  v.Description,
				ThumbnailURL: thumbnailURL(v),
				Category:     v.Category,
			})
		}
		return json.Marshal(summaries)
	})
	if err != nil {
		logger.Error("[VideoList] 获取视频列表失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// UploadVideoHandler creates a video record and fires the transcode job.
func (h *APIHandler) UploadVideoHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	title := r.FormValue("title")
	if title == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}

	videoFile, videoHeader, err := r.FormFile("video_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "video_file is required")
		return
	}
	defer videoFile.Close()

	filePath, err := h.saveUpload(videoFile, videoHeader, h.cfg.VideoDir)
	if err != nil {
		logger.Error("[VideoUpload] 保存视频文件失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to store video file")
		return
	}

	thumbnailPath := ""
	if thumbFile, thumbHeader, err := r.FormFile("thumbnail"); err == nil {
		defer thumbFile.Close()
		thumbnailPath, err = h.saveUpload(thumbFile, thumbHeader, h.cfg.ThumbnailDir)
		if err != nil {
			logger.Error("[VideoUpload] 保存缩略图失败", logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to store thumbnail")
			return
		}
	}

	video := &model.Video{
		Title:         title,
		Description:   r.FormValue("description"),
		Category:      r.FormValue("category"),
		FilePath:      filePath,
		ThumbnailPath: thumbnailPath,
	}

	id, err := h.videoRepo.CreateVideo(video)
	if err != nil {
		logger.Error("[VideoUpload] 创建视频记录失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create video record")
		return
	}
	video.ID = id
	video.CreatedAt = time.Now()

	// 新记录让列表缓存失效
	if err := h.videoCache.InvalidateList(r.Context()); err != nil {
		logger.Warn("[VideoUpload] 清理列表缓存失败", logger.ErrorField(err))
	}

	h.enqueueTranscode(id)
	h.archiveSource(id, filePath)

	logger.Info("[VideoUpload] 视频已创建",
		logger.Int64("videoId", id),
		logger.String("title", title))

	writeJSON(w, http.StatusCreated, model.VideoSummary{
		ID:           id,
		CreatedAt:    video.CreatedAt,
		Title:        video.Title,
		Description:  video.Description,
		ThumbnailURL: thumbnailURL(video),
		Category:     video.Category,
	})
}

// UpdateVideoHandler updates metadata and optionally replaces the source file.
// 换源时的顺序是固定的：先清掉旧文件、旧转码产物和旧缓存，再落新文件、重新入队。
func (h *APIHandler) UpdateVideoHandler(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	video, err := h.videoRepo.GetVideoByID(videoID)
	if err != nil {
		logger.Error("[VideoUpdate] 查询视频失败", logger.Int64("videoId", videoID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if video == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	if title := r.FormValue("title"); title != "" {
		video.Title = title
	}
	if description := r.FormValue("description"); description != "" {
		video.Description = description
	}
	if category := r.FormValue("category"); category != "" {
		video.Category = category
	}

	sourceReplaced := false
	if newFile, newHeader, err := r.FormFile("video_file"); err == nil {
		defer newFile.Close()
		if err := h.replaceSource(r.Context(), video, newFile, newHeader); err != nil {
			logger.Error("[VideoUpdate] 替换源文件失败", logger.Int64("videoId", videoID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to replace video file")
			return
		}
		sourceReplaced = true
	}

	if thumbFile, thumbHeader, err := r.FormFile("thumbnail"); err == nil {
		defer thumbFile.Close()
		newThumb, err := h.saveUpload(thumbFile, thumbHeader, h.cfg.ThumbnailDir)
		if err != nil {
			logger.Error("[VideoUpdate] 保存缩略图失败", logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to store thumbnail")
			return
		}
		removeFileQuietly(video.ThumbnailPath)
		video.ThumbnailPath = newThumb
	}

	if err := h.videoRepo.UpdateVideo(video); err != nil {
		logger.Error("[VideoUpdate] 更新视频记录失败", logger.Int64("videoId", videoID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to update video record")
		return
	}

	// 列表里是元数据，任何更新都让它失效
	if err := h.videoCache.InvalidateList(r.Context()); err != nil {
		logger.Warn("[VideoUpdate] 清理列表缓存失败", logger.ErrorField(err))
	}

	if sourceReplaced {
		h.enqueueTranscode(videoID)
		h.archiveSource(videoID, video.FilePath)
	}

	writeJSON(w, http.StatusOK, model.VideoSummary{
		ID:           video.ID,
		CreatedAt:    video.CreatedAt,
		Title:        video.Title,
		Description:  video.Description,
		ThumbnailURL: thumbnailURL(video),
		Category:     video.Category,
	})
}

// DeleteVideoHandler removes the record, all derived artifacts and cache keys.
func (h *APIHandler) DeleteVideoHandler(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	video, err := h.videoRepo.GetVideoByID(videoID)
	if err != nil {
		logger.Error("[VideoDelete] 查询视频失败", logger.Int64("videoId", videoID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if video == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	// 和在跑的转码任务拿同一把锁
	h.locker.Lock(videoID)
	defer h.locker.Unlock(videoID)

	// 先按磁盘现状清缓存，再删文件
	if err := h.videoCache.InvalidateVideo(r.Context(), videoID); err != nil {
		logger.Warn("[VideoDelete] 清理缓存失败", logger.Int64("videoId", videoID), logger.ErrorField(err))
	}

	if err := h.renditions.RemoveVideo(videoID); err != nil {
		logger.Error("[VideoDelete] 删除转码产物失败", logger.Int64("videoId", videoID), logger.ErrorField(err))
	}
	removeFileQuietly(video.FilePath)
	removeFileQuietly(video.ThumbnailPath)

	if h.archiver != nil {
		if err := h.archiver.RemoveSource(r.Context(), videoID); err != nil {
			logger.Warn("[VideoDelete] 删除归档失败", logger.Int64("videoId", videoID), logger.ErrorField(err))
		}
	}

	if err := h.videoRepo.DeleteVideo(videoID); err != nil {
		logger.Error("[VideoDelete] 删除视频记录失败", logger.Int64("videoId", videoID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete video")
		return
	}

	logger.Info("[VideoDelete] 视频已删除", logger.Int64("videoId", videoID))
	w.WriteHeader(http.StatusNoContent)
}

// replaceSource cleans up everything derived from the old source before the
// new file is stored, then swaps the path on the record.
func (h *APIHandler) replaceSource(ctx context.Context, video *model.Video, newFile multipart.File, newHeader *multipart.FileHeader) error {
	h.locker.Lock(video.ID)
	defer h.locker.Unlock(video.ID)

	if err := h.videoCache.InvalidateVideo(ctx, video.ID); err != nil {
		logger.Warn("清理旧缓存失败", logger.Int64("videoId", video.ID), logger.ErrorField(err))
	}
	if err := h.renditions.RemoveVideo(video.ID); err != nil {
		return fmt.Errorf("failed to remove old renditions: %w", err)
	}
	removeFileQuietly(video.FilePath)

	newPath, err := h.saveUpload(newFile, newHeader, h.cfg.VideoDir)
	if err != nil {
		return err
	}
	video.FilePath = newPath
	return nil
}

// saveUpload stores an uploaded file under dir with a fresh uuid name.
func (h *APIHandler) saveUpload(file multipart.File, header *multipart.FileHeader, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	name := uuid.NewString() + filepath.Ext(header.Filename)
	path := filepath.Join(dir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload target: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return path, nil
}

// enqueueTranscode 入队即返回，失败只记日志——写路径不等转码
func (h *APIHandler) enqueueTranscode(videoID int64) {
	job := queue.NewJob(videoID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.jobs.Enqueue(ctx, job); err != nil {
		logger.Error("转码任务入队失败",
			logger.Int64("videoId", videoID),
			logger.String("jobId", job.ID),
			logger.ErrorField(err))
		return
	}

	if err := h.notifier.Publish(ctx, queue.StatusEvent{
		JobID:   job.ID,
		VideoID: videoID,
		Status:  queue.StatusQueued,
		At:      time.Now(),
	}); err != nil {
		logger.Warn("发布排队状态失败", logger.String("jobId", job.ID), logger.ErrorField(err))
	}

	logger.Info("转码任务已入队",
		logger.Int64("videoId", videoID),
		logger.String("jobId", job.ID))
}

func (h *APIHandler) archiveSource(videoID int64, path string) {
	if h.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := h.archiver.ArchiveSource(ctx, videoID, path); err != nil {
			logger.Warn("源文件归档失败", logger.Int64("videoId", videoID), logger.ErrorField(err))
		}
	}()
}

func videoIDFromRequest(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["movie_id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func thumbnailURL(v *model.Video) string {
	if v.ThumbnailPath == "" {
		return ""
	}
	return "/media/thumbnails/" + filepath.Base(v.ThumbnailPath)
}

func removeFileQuietly(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("删除文件失败", logger.String("path", path), logger.ErrorField(err))
	}
}
