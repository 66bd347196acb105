package hls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"Videoflix/logger"
)

// Transcoder defines the interface for producing HLS renditions of a video.
type Transcoder interface {
	ConvertVideo(ctx context.Context, videoID int64, inputPath string) error
}

// Runner executes an external command. Seam for tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s execution failed: %w\nstderr: %s", name, err, stderr.String())
	}
	return nil
}

// FFmpegTranscoder implements Transcoder using the ffmpeg binary.
type FFmpegTranscoder struct {
	ffmpegPath string
	store      *Store
	runner     Runner
	timeout    time.Duration // 单个档位的超时，0表示不限制
}

// NewFFmpegTranscoder creates an FFmpegTranscoder writing into store.
func NewFFmpegTranscoder(ffmpegPath string, store *Store, timeout time.Duration) *FFmpegTranscoder {
	return &FFmpegTranscoder{
		ffmpegPath: ffmpegPath,
		store:      store,
		runner:     execRunner{},
		timeout:    timeout,
	}
}

// WithRunner overrides the command runner. Used by tests to fake ffmpeg.
func (t *FFmpegTranscoder) WithRunner(r Runner) *FFmpegTranscoder {
	t.runner = r
	return t
}

// ConvertVideo produces all renditions of a video plus the master playlist.
//
// 每个档位独立处理：索引已存在则跳过（幂等），ffmpeg 失败只影响该档位，
// 其余档位继续。所有档位尝试完后，若主播放列表不存在，则根据磁盘上
// 实际存在的档位生成它。
func (t *FFmpegTranscoder) ConvertVideo(ctx context.Context, videoID int64, inputPath string) error {
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("%w: %s", ErrSourceMissing, filepath.Base(inputPath))
	}

	if err := os.MkdirAll(t.store.VideoDir(videoID), 0755); err != nil {
		return fmt.Errorf("failed to create output base directory: %w", err)
	}

	var errs []error
	for _, r := range Renditions {
		if t.store.HasIndex(videoID, r.Name) {
			logger.Info("分辨率已转码完成，跳过",
				logger.Int64("videoId", videoID),
				logger.String("rendition", r.Name))
			continue
		}

		if err := t.convertRendition(ctx, videoID, inputPath, r); err != nil {
			logger.Error("分辨率转码失败",
				logger.Int64("videoId", videoID),
				logger.String("rendition", r.Name),
				logger.ErrorField(err))
			errs = append(errs, fmt.Errorf("rendition %s: %w", r.Name, err))
		}
	}

	if !t.store.HasMaster(videoID) {
		present := t.store.PresentRenditions(videoID)
		if err := t.store.WriteMaster(videoID, MasterPlaylist(present)); err != nil {
			errs = append(errs, fmt.Errorf("master playlist: %w", err))
		} else {
			logger.Info("主播放列表已生成",
				logger.Int64("videoId", videoID),
				logger.Int("renditions", len(present)))
		}
	}

	return errors.Join(errs...)
}

func (t *FFmpegTranscoder) convertRendition(ctx context.Context, videoID int64, inputPath string, r Rendition) error {
	outputDir := t.store.RenditionDir(videoID, r.Name)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create rendition directory: %w", err)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	args := t.buildArgs(inputPath, r, outputDir)

	logger.Info("开始转码",
		logger.Int64("videoId", videoID),
		logger.String("rendition", r.Name))

	if err := t.runner.Run(ctx, t.ffmpegPath, args...); err != nil {
		return err
	}

	logger.Info("转码完成",
		logger.Int64("videoId", videoID),
		logger.String("rendition", r.Name),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// buildArgs assembles the fixed encoding profile for one rendition:
// AAC 48kHz audio, H.264 main profile CRF 20, 4 second VOD segments.
func (t *FFmpegTranscoder) buildArgs(inputPath string, r Rendition, outputDir string) []string {
	return []string{
		"-y", "-i", inputPath,
		"-vf", "scale=" + r.Scale(),
		"-c:a", "aac",
		"-ar", "48000",
		"-c:v", "h264",
		"-profile:v", "main",
		"-crf", "20",
		"-sc_threshold", "0",
		"-g", "48",
		"-keyint_min", "48",
		"-hls_time", "4",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outputDir, "segment_%03d.ts"),
		filepath.Join(outputDir, indexPlaylist),
	}
}
