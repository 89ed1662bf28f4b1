package supabase

import (
	"context"
	"time"
)

// Store provides access to the site's Supabase tables.
type Store interface {
	// GetThread returns the stored assistant thread id for a user, or "" when none exists.
	GetThread(ctx context.Context, userID string) (string, error)

	// SaveThread records the user -> thread mapping.
	SaveThread(ctx context.Context, userID, threadID string) error

	// ListVideos lists the portfolio videos of a table, ordered for display.
	ListVideos(ctx context.Context, table string) ([]Video, error)

	// InsertVideo adds a video and returns the stored row.
	InsertVideo(ctx context.Context, video *Video) (*Video, error)

	// UpdateVideo applies a partial update and returns the stored row.
	UpdateVideo(ctx context.Context, id int64, fields map[string]any) (*Video, error)

	// DeleteVideo removes a video.
	DeleteVideo(ctx context.Context, id int64) error

	// AddKnowledge stores a knowledge-base entry and returns the stored row.
	AddKnowledge(ctx context.Context, entry *KnowledgeEntry) (*KnowledgeEntry, error)

	// GetKnowledgeByIDs retrieves knowledge-base entries by their IDs.
	GetKnowledgeByIDs(ctx context.Context, ids []string) ([]KnowledgeEntry, error)

	// Close releases cached lookups.
	Close() error
}

// Thread maps an external user id to an assistant thread.
type Thread struct {
	UserID    string    `json:"user_id"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Video is a portfolio entry.
type Video struct {
	ID           int64      `json:"id,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	VideoURL     string     `json:"video_url"`
	ThumbnailURL string     `json:"thumbnail_url"`
	Category     string     `json:"category"`
	Featured     bool       `json:"featured"`
	SortOrder    int        `json:"sort_order"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// KnowledgeEntry is a piece of text the assistant may draw on.
type KnowledgeEntry struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Source    string     `json:"source"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// VideoFields lists the columns UpdateVideo accepts.
var VideoFields = map[string]bool{
	"title":         true,
	"description":   true,
	"video_url":     true,
	"thumbnail_url": true,
	"category":      true,
	"featured":      true,
	"sort_order":    true,
}
