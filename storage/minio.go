package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"Videoflix/config"
	"Videoflix/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver 可选的源文件归档。开启后，上传的原始视频会备份到对象存储，
// 本地磁盘上的拷贝仍然是转码的唯一输入。
type Archiver struct {
	client *minio.Client
	bucket string
}

// NewArchiver connects to MinIO and ensures the archive bucket exists.
// Returns (nil, nil) when archiving is disabled in the config.
func NewArchiver(cfg *config.Config) (*Archiver, error) {
	if !cfg.MinioEnabled {
		return nil, nil
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check archive bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create archive bucket: %w", err)
		}
		logger.Info("归档存储桶已创建", logger.String("bucket", cfg.MinioBucket))
	}

	return &Archiver{client: client, bucket: cfg.MinioBucket}, nil
}

// ArchiveSource uploads a local source file under sources/{videoID}/{filename}.
func (a *Archiver) ArchiveSource(ctx context.Context, videoID int64, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source for archiving: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source for archiving: %w", err)
	}

	objectName := fmt.Sprintf("sources/%d/%s", videoID, filepath.Base(localPath))
	_, err = a.client.PutObject(ctx, a.bucket, objectName, file, info.Size(), minio.PutObjectOptions{
		ContentType: "video/mp4",
	})
	if err != nil {
		return fmt.Errorf("failed to archive source %s: %w", objectName, err)
	}

	logger.Info("源文件已归档",
		logger.Int64("videoId", videoID),
		logger.String("object", objectName))
	return nil
}

// RemoveSource deletes every archived object of a video.
func (a *Archiver) RemoveSource(ctx context.Context, videoID int64) error {
	prefix := fmt.Sprintf("sources/%d/", videoID)
	for object := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return fmt.Errorf("failed to list archived objects: %w", object.Err)
		}
		if err := a.client.RemoveObject(ctx, a.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove archived object %s: %w", object.Key, err)
		}
	}
	return nil
}
