package hls

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	indexPlaylist  = "index.m3u8"
	masterPlaylist = "master.m3u8"
)

// Store 管理每个视频的HLS文件树：
// {mediaRoot}/hls/{videoID}/{rendition}/index.m3u8 + segment_XXX.ts
// {mediaRoot}/hls/{videoID}/master.m3u8
type Store struct {
	mediaRoot string
}

// NewStore creates a rendition store rooted at mediaRoot.
func NewStore(mediaRoot string) *Store {
	return &Store{mediaRoot: mediaRoot}
}

// VideoDir returns the per-video base directory.
func (s *Store) VideoDir(videoID int64) string {
	return filepath.Join(s.mediaRoot, "hls", strconv.FormatInt(videoID, 10))
}

// RenditionDir returns the directory of one rendition.
func (s *Store) RenditionDir(videoID int64, rendition string) string {
	return filepath.Join(s.VideoDir(videoID), rendition)
}

// IndexPath returns the index playlist path of one rendition.
func (s *Store) IndexPath(videoID int64, rendition string) string {
	return filepath.Join(s.RenditionDir(videoID, rendition), indexPlaylist)
}

// MasterPath returns the master playlist path of a video.
func (s *Store) MasterPath(videoID int64) string {
	return filepath.Join(s.VideoDir(videoID), masterPlaylist)
}

// HasIndex reports whether a rendition already has its index playlist.
// 目录里有索引即视为该档位转码完成（按存在性判断，不校验内容）。
func (s *Store) HasIndex(videoID int64, rendition string) bool {
	_, err := os.Stat(s.IndexPath(videoID, rendition))
	return err == nil
}

// HasMaster reports whether the master playlist exists.
func (s *Store) HasMaster(videoID int64) bool {
	_, err := os.Stat(s.MasterPath(videoID))
	return err == nil
}

// PresentRenditions returns the renditions whose index playlist exists on disk,
// in the fixed ascending-quality order.
func (s *Store) PresentRenditions(videoID int64) []Rendition {
	var present []Rendition
	for _, r := range Renditions {
		if s.HasIndex(videoID, r.Name) {
			present = append(present, r)
		}
	}
	return present
}

// ReadPlaylist reads a rendition's index playlist.
func (s *Store) ReadPlaylist(videoID int64, rendition string) ([]byte, error) {
	return s.readFile(s.IndexPath(videoID, rendition))
}

// ReadMaster reads the master playlist.
func (s *Store) ReadMaster(videoID int64) ([]byte, error) {
	return s.readFile(s.MasterPath(videoID))
}

// ReadSegment reads one media segment of a rendition.
func (s *Store) ReadSegment(videoID int64, rendition, segment string) ([]byte, error) {
	if !ValidSegmentName(segment) {
		return nil, ErrArtifactNotFound
	}
	return s.readFile(filepath.Join(s.RenditionDir(videoID, rendition), segment))
}

func (s *Store) readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// ListSegments enumerates the segment files currently present in a rendition
// directory. Best effort: a missing directory yields an empty list.
func (s *Store) ListSegments(videoID int64, rendition string) []string {
	entries, err := os.ReadDir(s.RenditionDir(videoID, rendition))
	if err != nil {
		return nil
	}

	var segments []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".ts") {
			segments = append(segments, e.Name())
		}
	}
	sort.Strings(segments)
	return segments
}

// RemoveVideo deletes the whole HLS subtree of a video.
func (s *Store) RemoveVideo(videoID int64) error {
	if err := os.RemoveAll(s.VideoDir(videoID)); err != nil {
		return fmt.Errorf("failed to remove hls tree for video %d: %w", videoID, err)
	}
	return nil
}

// WriteMaster writes the master playlist atomically (temp file + rename),
// 避免出现写了一半的主播放列表。
func (s *Store) WriteMaster(videoID int64, content string) error {
	if err := os.MkdirAll(s.VideoDir(videoID), 0755); err != nil {
		return fmt.Errorf("failed to create video dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.VideoDir(videoID), masterPlaylist+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp master playlist: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write master playlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to flush master playlist: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.MasterPath(videoID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move master playlist into place: %w", err)
	}
	return nil
}

// ValidSegmentName rejects path traversal and anything that is not a .ts file.
func ValidSegmentName(name string) bool {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return false
	}
	return strings.HasSuffix(name, ".ts")
}
