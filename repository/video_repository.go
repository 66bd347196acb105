package repository

import (
	"database/sql"
	"fmt"
	"time"

	"Videoflix/model"
)

// VideoRepository defines the interface for video record operations.
type VideoRepository interface {
	CreateVideo(video *model.Video) (int64, error)
	GetVideoByID(id int64) (*model.Video, error)
	GetAllVideos() ([]*model.Video, error)
	UpdateVideo(video *model.Video) error
	DeleteVideo(id int64) error
}

// mysqlVideoRepository implements VideoRepository for MySQL.
type mysqlVideoRepository struct {
	db *sql.DB
}

// NewMySQLVideoRepository creates a new mysqlVideoRepository.
func NewMySQLVideoRepository(db *sql.DB) VideoRepository {
	return &mysqlVideoRepository{db: db}
}

// CreateVideo adds a new video record to the database.
func (r *mysqlVideoRepository) CreateVideo(video *model.Video) (int64, error) {
	query := `INSERT INTO videos (title, description, category, file_path, thumbnail_path, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateVideo: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(video.Title, video.Description, video.Category, video.FilePath, video.ThumbnailPath, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateVideo: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateVideo: %w", err)
	}
	return id, nil
}

// GetVideoByID retrieves a video by its ID. Returns (nil, nil) when not found.
func (r *mysqlVideoRepository) GetVideoByID(id int64) (*model.Video, error) {
	query := `SELECT id, title, description, category, file_path, thumbnail_path, created_at, updated_at
	           FROM videos WHERE id = ?`
	row := r.db.QueryRow(query, id)

	video := &model.Video{}
	err := row.Scan(&video.ID, &video.Title, &video.Description, &video.Category, &video.FilePath, &video.ThumbnailPath, &video.CreatedAt, &video.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan video by ID %d: %w", id, err)
	}
	return video, nil
}

// GetAllVideos retrieves all videos ordered by descending creation time.
func (r *mysqlVideoRepository) GetAllVideos() ([]*model.Video, error) {
	query := `SELECT id, title, description, category, file_path, thumbnail_path, created_at, updated_at
	           FROM videos ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	videos := make([]*model.Video, 0)
	for rows.Next() {
		video := &model.Video{}
		err := rows.Scan(&video.ID, &video.Title, &video.Description, &video.Category, &video.FilePath, &video.ThumbnailPath, &video.CreatedAt, &video.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video in GetAllVideos: %w", err)
		}
		videos = append(videos, video)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAllVideos: %w", err)
	}
	return videos, nil
}

// UpdateVideo updates a video record.
func (r *mysqlVideoRepository) UpdateVideo(video *model.Video) error {
	query := `UPDATE videos SET title = ?, description = ?, category = ?, file_path = ?, thumbnail_path = ?, updated_at = NOW()
	           WHERE id = ?`
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for UpdateVideo: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(video.Title, video.Description, video.Category, video.FilePath, video.ThumbnailPath, video.ID); err != nil {
		return fmt.Errorf("failed to execute UpdateVideo for ID %d: %w", video.ID, err)
	}
	return nil
}

// DeleteVideo removes a video record.
func (r *mysqlVideoRepository) DeleteVideo(id int64) error {
	stmt, err := r.db.Prepare("DELETE FROM videos WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement for DeleteVideo: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(id); err != nil {
		return fmt.Errorf("failed to execute DeleteVideo for ID %d: %w", id, err)
	}
	return nil
}
