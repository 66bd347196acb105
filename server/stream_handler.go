package server

import (
	"errors"
	"net/http"

	"Videoflix/core/hls"
	"Videoflix/logger"

	"github.com/gorilla/mux"
)

const (
	contentTypePlaylist = "application/vnd.apple.mpegurl"
	contentTypeSegment  = "video/MP2T"
)

// MasterPlaylistHandler serves the top-level variant playlist of a video.
func (h *APIHandler) MasterPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoIDFromRequest(r)
	if !ok || !h.videoExists(videoID) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	data, err := h.renditions.ReadMaster(videoID)
	if err != nil {
		if errors.Is(err, hls.ErrArtifactNotFound) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		logger.Error("[Stream] 读取主播放列表失败", logger.Int64("videoId", videoID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", contentTypePlaylist)
	w.Write(data)
}

// PlaylistHandler serves one rendition's index playlist through the cache.
func (h *APIHandler) PlaylistHandler(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoIDFromRequest(r)
	resolution := mux.Vars(r)["resolution"]
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if _, known := hls.RenditionByName(resolution); !known {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if !h.videoExists(videoID) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	data, err := h.videoCache.Playlist(r.Context(), videoID, resolution)
	if err != nil {
		if errors.Is(err, hls.ErrArtifactNotFound) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		logger.Error("[Stream] 读取播放列表失败",
			logger.Int64("videoId", videoID),
			logger.String("resolution", resolution),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", contentTypePlaylist)
	w.Write(data)
}

// SegmentHandler serves one media segment through the cache.
func (h *APIHandler) SegmentHandler(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoIDFromRequest(r)
	vars := mux.Vars(r)
	resolution, segment := vars["resolution"], vars["segment"]
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if _, known := hls.RenditionByName(resolution); !known {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	data, err := h.videoCache.Segment(r.Context(), videoID, resolution, segment)
	if err != nil {
		if errors.Is(err, hls.ErrArtifactNotFound) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		logger.Error("[Stream] 读取分片失败",
			logger.Int64("videoId", videoID),
			logger.String("resolution", resolution),
			logger.String("segment", segment),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", contentTypeSegment)
	w.Write(data)
}

func (h *APIHandler) videoExists(videoID int64) bool {
	video, err := h.videoRepo.GetVideoByID(videoID)
	if err != nil {
		logger.Error("[Stream] 查询视频记录失败", logger.Int64("videoId", videoID), logger.ErrorField(err))
		return false
	}
	return video != nil
}
