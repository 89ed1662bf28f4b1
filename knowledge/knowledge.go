// Package knowledge manages the assistant's knowledge base: admin additions are
// stored as rows, embedded, and indexed for retrieval by the fallback path.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/supabase"
	"github.com/creastat/assistant/vectorstore"
)

// Rows persists knowledge-base entries. The rows are authoritative; the vector
// payload is a copy taken at indexing time.
type Rows interface {
	AddKnowledge(ctx context.Context, entry *supabase.KnowledgeEntry) (*supabase.KnowledgeEntry, error)
	GetKnowledgeByIDs(ctx context.Context, ids []string) ([]supabase.KnowledgeEntry, error)
}

// Options tune retrieval.
type Options struct {
	// Limit is how many snippets Context returns. Default: 3
	Limit int
	// MinScore drops weak matches. Default: 0.3
	MinScore float32
	// MaxChars caps the size of the context block. Default: 2000
	MaxChars int
}

// Service adds and retrieves knowledge-base entries.
type Service struct {
	embedder embedding.Embedder
	vectors  vectorstore.VectorStore
	rows     Rows
	opts     Options
	logger   *slog.Logger
}

// New creates a Service. rows may be nil when no relational store is configured.
func New(embedder embedding.Embedder, vectors vectorstore.VectorStore, rows Rows, opts Options, logger *slog.Logger) *Service {
	if opts.Limit <= 0 {
		opts.Limit = 3
	}
	if opts.MinScore == 0 {
		opts.MinScore = 0.3
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 2000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embedder: embedder, vectors: vectors, rows: rows, opts: opts, logger: logger}
}

// Entry is an admin addition.
type Entry struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Add embeds, stores and indexes an entry. Nothing is written when embedding fails.
func (s *Service) Add(ctx context.Context, entry Entry) (*supabase.KnowledgeEntry, error) {
	content := strings.TrimSpace(entry.Content)
	if content == "" {
		return nil, &assistant.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if entry.Source == "" {
		entry.Source = "admin"
	}

	row := &supabase.KnowledgeEntry{
		ID:      uuid.NewString(),
		Title:   strings.TrimSpace(entry.Title),
		Content: content,
		Source:  entry.Source,
	}
	vector, err := s.embed(ctx, row.Title+"\n"+row.Content)
	if err != nil {
		return nil, err
	}

	if s.rows != nil {
		stored, err := s.rows.AddKnowledge(ctx, row)
		if err != nil {
			return nil, err
		}
		row = stored
	}

	err = s.vectors.Upsert(ctx, []vectorstore.Point{{
		ID:      row.ID,
		Vector:  vector,
		Title:   row.Title,
		Content: row.Content,
		Source:  row.Source,
	}})
	if err != nil {
		s.logger.Error("knowledge row stored but not indexed", "id", row.ID, "error", err)
		return nil, err
	}

	s.logger.Info("knowledge entry added", "id", row.ID, "source", row.Source, "chars", len(row.Content))
	return row, nil
}

// Search returns the entries closest to query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]vectorstore.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &assistant.ValidationError{Field: "q", Reason: "must not be empty"}
	}
	if limit <= 0 {
		limit = s.opts.Limit
	}
	vector, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := s.vectors.Search(ctx, vector, vectorstore.SearchFilter{MinScore: s.opts.MinScore}, limit)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, results), nil
}

// hydrate replaces payload text with the stored rows where they exist.
func (s *Service) hydrate(ctx context.Context, results []vectorstore.SearchResult) []vectorstore.SearchResult {
	if s.rows == nil || len(results) == 0 {
		return results
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	rows, err := s.rows.GetKnowledgeByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to load knowledge rows, using indexed text", "error", err)
		return results
	}
	byID := make(map[string]supabase.KnowledgeEntry, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	for i, r := range results {
		if row, ok := byID[r.ID]; ok {
			results[i].Title = row.Title
			results[i].Content = row.Content
			results[i].Source = row.Source
		}
	}
	return results
}

// Context renders the best matches for query as a prompt block, or "" when
// nothing relevant is found.
func (s *Service) Context(ctx context.Context, query string) (string, error) {
	results, err := s.Search(ctx, query, s.opts.Limit)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, r := range results {
		line := strings.TrimSpace(r.Content)
		if r.Title != "" {
			line = r.Title + ": " + line
		}
		if sb.Len()+len(line) > s.opts.MaxChars {
			break
		}
		sb.WriteString("- ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// Close releases the vector store.
func (s *Service) Close() error {
	return s.vectors.Close()
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	out := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		out[i] = float32(v)
	}
	return out, nil
}
