// Package server exposes the assistant and the portfolio catalogue over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/creastat/assistant/chat"
	"github.com/creastat/assistant/knowledge"
	"github.com/creastat/assistant/supabase"
	"github.com/creastat/assistant/vectorstore"
)

// ChatService answers user messages. *chat.Orchestrator implements it.
type ChatService interface {
	HandleMessage(ctx context.Context, req chat.Request) (*chat.ReplyStream, error)
	Start(ctx context.Context, req chat.Request) (*chat.StartResult, error)
	Status(ctx context.Context, threadID, runID string) (*chat.RunStatus, error)
	Result(ctx context.Context, threadID, runID string) (*chat.Reply, error)
}

// VideoStore is the portfolio catalogue.
type VideoStore interface {
	ListVideos(ctx context.Context, table string) ([]supabase.Video, error)
	InsertVideo(ctx context.Context, video *supabase.Video) (*supabase.Video, error)
	UpdateVideo(ctx context.Context, id int64, fields map[string]any) (*supabase.Video, error)
	DeleteVideo(ctx context.Context, id int64) error
}

// KnowledgeBase accepts and searches knowledge-base entries.
type KnowledgeBase interface {
	Add(ctx context.Context, entry knowledge.Entry) (*supabase.KnowledgeEntry, error)
	Search(ctx context.Context, query string, limit int) ([]vectorstore.SearchResult, error)
}

// Options wires the server. Chat, Videos and Knowledge may be nil; the routes
// they back then answer with an explanatory error.
type Options struct {
	Chat ChatService
	// ChatErr is why Chat could not be built, typically a missing credential.
	// It is reported by every chat route without contacting the provider.
	ChatErr     error
	Videos      VideoStore
	Knowledge   KnowledgeBase
	AdminToken  string
	CORSOrigins []string
	Logger      *slog.Logger
}

// Server is the HTTP API: chat, portfolio videos and admin knowledge routes.
type Server struct {
	engine *gin.Engine
	opts   Options
	logger *slog.Logger
}

// New builds the gin engine and registers every route.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Chat == nil && opts.ChatErr == nil {
		opts.ChatErr = errors.New("chat service is not configured")
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger), cors(opts.CORSOrigins))

	s := &Server{engine: engine, opts: opts, logger: logger}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.health)

	api := s.engine.Group("/api")
	{
		api.POST("/chat", s.requireChat, s.handleChat)
		api.POST("/chat/start", s.requireChat, s.handleChatStart)
		api.GET("/chat/status", s.requireChat, s.handleChatStatus)
		api.GET("/chat/result", s.requireChat, s.handleChatResult)

		api.GET("/videos", s.requireVideos, s.listVideos)
	}

	admin := api.Group("/admin", adminOnly(s.opts.AdminToken))
	{
		admin.POST("/videos", s.requireVideos, s.createVideo)
		admin.PATCH("/videos/:id", s.requireVideos, s.updateVideo)
		admin.DELETE("/videos/:id", s.requireVideos, s.deleteVideo)

		admin.POST("/knowledge", s.requireKnowledge, s.addKnowledge)
		admin.GET("/knowledge/search", s.requireKnowledge, s.searchKnowledge)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"chat":      s.opts.ChatErr == nil,
		"videos":    s.opts.Videos != nil,
		"knowledge": s.opts.Knowledge != nil,
	})
}

func (s *Server) requireChat(c *gin.Context) {
	if s.opts.ChatErr != nil {
		s.writeError(c, s.opts.ChatErr)
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) requireVideos(c *gin.Context) {
	if s.opts.Videos == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "video catalogue is not configured"})
		return
	}
	c.Next()
}

func (s *Server) requireKnowledge(c *gin.Context) {
	if s.opts.Knowledge == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "knowledge base is not configured"})
		return
	}
	c.Next()
}
