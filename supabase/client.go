package supabase

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/creastat/assistant"
)

// Config holds Supabase connection configuration
type Config struct {
	URL      string
	APIKey   string
	CacheTTL time.Duration // Default: 5 minutes

	ThreadsTable   string   // Default: chat_threads
	VideosTable    string   // Default: videos
	KnowledgeTable string   // Default: knowledge_base
	VideoTables    []string // Tables ListVideos may read. Default: [VideosTable]
}

// Client implements the Store interface using Supabase
type Client struct {
	client   *supabase.Client
	cache    *cache
	cacheTTL time.Duration

	threadsTable   string
	videosTable    string
	knowledgeTable string
	videoTables    map[string]bool
}

// cache holds thread lookups and video listings for a short while
type cache struct {
	mu      sync.RWMutex
	byUser  map[string]*cacheEntry[string]
	byTable map[string]*cacheEntry[[]Video]
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// New creates a new Supabase client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, &assistant.ConfigError{Variable: "NEXT_PUBLIC_SUPABASE_URL"}
	}
	if cfg.APIKey == "" {
		return nil, &assistant.ConfigError{Variable: "SUPABASE_SERVICE_ROLE_KEY"}
	}

	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.ThreadsTable == "" {
		cfg.ThreadsTable = "chat_threads"
	}
	if cfg.VideosTable == "" {
		cfg.VideosTable = "videos"
	}
	if cfg.KnowledgeTable == "" {
		cfg.KnowledgeTable = "knowledge_base"
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	videoTables := map[string]bool{cfg.VideosTable: true}
	for _, t := range cfg.VideoTables {
		videoTables[t] = true
	}

	return &Client{
		client:         client,
		cacheTTL:       cfg.CacheTTL,
		threadsTable:   cfg.ThreadsTable,
		videosTable:    cfg.VideosTable,
		knowledgeTable: cfg.KnowledgeTable,
		videoTables:    videoTables,
		cache: &cache{
			byUser:  make(map[string]*cacheEntry[string]),
			byTable: make(map[string]*cacheEntry[[]Video]),
		},
	}, nil
}

// GetThread retrieves the most recent thread id stored for a user
func (c *Client) GetThread(ctx context.Context, userID string) (string, error) {
	if cached, ok := c.threadFromCache(userID); ok {
		return cached, nil
	}

	var threads []Thread
	_, err := c.client.From(c.threadsTable).
		Select("user_id,thread_id,created_at", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		ExecuteTo(&threads)

	if err != nil {
		return "", fmt.Errorf("failed to get thread: %w", err)
	}

	if len(threads) == 0 {
		return "", nil
	}

	c.cacheThread(userID, threads[0].ThreadID)
	return threads[0].ThreadID, nil
}

// SaveThread stores a user -> thread mapping
func (c *Client) SaveThread(ctx context.Context, userID, threadID string) error {
	row := Thread{UserID: userID, ThreadID: threadID, CreatedAt: time.Now().UTC()}
	_, _, err := c.client.From(c.threadsTable).
		Insert(row, false, "", "minimal", "").
		Execute()

	if err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}

	c.cacheThread(userID, threadID)
	return nil
}

// ListVideos retrieves the videos of an allowed table
func (c *Client) ListVideos(ctx context.Context, table string) ([]Video, error) {
	if table == "" {
		table = c.videosTable
	}
	if !c.videoTables[table] {
		return nil, &assistant.ValidationError{Field: "table", Reason: "unknown video table " + table}
	}

	if cached, ok := c.videosFromCache(table); ok {
		return cached, nil
	}

	var videos []Video
	_, err := c.client.From(table).
		Select("*", "", false).
		Order("sort_order", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&videos)

	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}

	c.cacheVideos(table, videos)
	return videos, nil
}

// InsertVideo adds a video to the default videos table
func (c *Client) InsertVideo(ctx context.Context, video *Video) (*Video, error) {
	var rows []Video
	_, err := c.client.From(c.videosTable).
		Insert(video, false, "", "representation", "").
		ExecuteTo(&rows)

	if err != nil {
		return nil, fmt.Errorf("failed to insert video: %w", err)
	}
	c.invalidateVideos()

	if len(rows) == 0 {
		return video, nil
	}
	return &rows[0], nil
}

// UpdateVideo applies the allowed fields to a video
func (c *Client) UpdateVideo(ctx context.Context, id int64, fields map[string]any) (*Video, error) {
	update := make(map[string]any, len(fields))
	for k, v := range fields {
		if !VideoFields[k] {
			return nil, &assistant.ValidationError{Field: k, Reason: "field cannot be updated"}
		}
		update[k] = v
	}
	if len(update) == 0 {
		return nil, &assistant.ValidationError{Reason: "no fields to update"}
	}
	update["updated_at"] = time.Now().UTC()

	var rows []Video
	_, err := c.client.From(c.videosTable).
		Update(update, "representation", "").
		Eq("id", strconv.FormatInt(id, 10)).
		ExecuteTo(&rows)

	if err != nil {
		return nil, fmt.Errorf("failed to update video: %w", err)
	}
	c.invalidateVideos()

	if len(rows) == 0 {
		return nil, fmt.Errorf("video %d: %w", id, assistant.ErrNotFound)
	}
	return &rows[0], nil
}

// DeleteVideo removes a video by ID
func (c *Client) DeleteVideo(ctx context.Context, id int64) error {
	_, _, err := c.client.From(c.videosTable).
		Delete("minimal", "").
		Eq("id", strconv.FormatInt(id, 10)).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	c.invalidateVideos()
	return nil
}

// AddKnowledge stores a knowledge-base entry
func (c *Client) AddKnowledge(ctx context.Context, entry *KnowledgeEntry) (*KnowledgeEntry, error) {
	var rows []KnowledgeEntry
	_, err := c.client.From(c.knowledgeTable).
		Insert(entry, false, "", "representation", "").
		ExecuteTo(&rows)

	if err != nil {
		return nil, fmt.Errorf("failed to add knowledge entry: %w", err)
	}

	if len(rows) == 0 {
		return entry, nil
	}
	return &rows[0], nil
}

// GetKnowledgeByIDs retrieves multiple knowledge entries by their IDs
func (c *Client) GetKnowledgeByIDs(ctx context.Context, ids []string) ([]KnowledgeEntry, error) {
	if len(ids) == 0 {
		return []KnowledgeEntry{}, nil
	}

	var entries []KnowledgeEntry
	_, err := c.client.From(c.knowledgeTable).
		Select("*", "", false).
		In("id", ids).
		ExecuteTo(&entries)

	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge entries: %w", err)
	}

	return entries, nil
}

// Close drops cached lookups. The PostgREST transport holds no connections of its own.
func (c *Client) Close() error {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()

	clear(c.cache.byUser)
	clear(c.cache.byTable)
	return nil
}

func (c *Client) threadFromCache(userID string) (string, bool) {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()

	if e, ok := c.cache.byUser[userID]; ok && time.Now().Before(e.expiresAt) {
		return e.value, true
	}
	return "", false
}

func (c *Client) cacheThread(userID, threadID string) {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()

	c.cache.byUser[userID] = &cacheEntry[string]{
		value:     threadID,
		expiresAt: time.Now().Add(c.cacheTTL),
	}
}

func (c *Client) videosFromCache(table string) ([]Video, bool) {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()

	if e, ok := c.cache.byTable[table]; ok && time.Now().Before(e.expiresAt) {
		return e.value, true
	}
	return nil, false
}

func (c *Client) cacheVideos(table string, videos []Video) {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()

	c.cache.byTable[table] = &cacheEntry[[]Video]{
		value:     videos,
		expiresAt: time.Now().Add(c.cacheTTL),
	}
}

func (c *Client) invalidateVideos() {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()

	c.cache.byTable = make(map[string]*cacheEntry[[]Video])
}

// Compile-time check that Client implements Store
var _ Store = (*Client)(nil)
