package model

import "time"

// Video represents a hosted video record.
type Video struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	FilePath      string    `json:"-"` // Path to the original video file, not exposed in API directly
	ThumbnailPath string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"-"`
}

// VideoSummary is the listing representation delivered by the API.
type VideoSummary struct {
	ID           int64     `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Category     string    `json:"category"`
}
