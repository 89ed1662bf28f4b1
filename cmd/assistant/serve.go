package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	embedopenai "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/creastat/assistant/chat"
	"github.com/creastat/assistant/config"
	"github.com/creastat/assistant/knowledge"
	"github.com/creastat/assistant/llm/openai"
	"github.com/creastat/assistant/ratelimit"
	"github.com/creastat/assistant/server"
	"github.com/creastat/assistant/session"
	"github.com/creastat/assistant/store/postgres"
	"github.com/creastat/assistant/supabase"
	"github.com/creastat/assistant/vectorstore/qdrant"
)

type rootFlags struct {
	configFile string
	envFile    string
	debug      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:          "assistant",
		Short:        "Virtual assistant backend for the production company website",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "optional YAML config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "human-readable debug logging")

	root.AddCommand(newServeCmd(flags))
	return root
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.envFile, flags.configFile)
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, flags.debug || cfg.Debug)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.close()

			return app.server.Run(ctx, cfg.Addr())
		},
	}
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	if debug {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

type app struct {
	server  *server.Server
	closers []func() error
	logger  *slog.Logger
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to release resource", "error", err)
		}
	}
}

// build wires the components enabled by cfg. Optional backends that fail to
// start are logged and left out; only the HTTP server itself is mandatory.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}
	limiter := ratelimit.New(ratelimit.Options{})

	var supa *supabase.Client
	if cfg.SupabaseConfigured() {
		client, err := supabase.New(supabase.Config{
			URL:         cfg.Supabase.URL,
			APIKey:      cfg.SupabaseKey(),
			VideoTables: cfg.Supabase.VideoTables,
		})
		if err != nil {
			logger.Warn("supabase disabled", "error", err)
		} else {
			supa = client
			a.closers = append(a.closers, client.Close)
		}
	} else {
		logger.Warn("supabase credentials missing, thread mapping and videos disabled")
	}

	var threads chat.ThreadRepository
	switch {
	case cfg.DatabaseURL != "":
		repo, err := postgres.Open(ctx, cfg.DatabaseURL, "")
		if err != nil {
			return nil, err
		}
		if err := repo.EnsureTable(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		threads = repo
		a.closers = append(a.closers, repo.Close)
	case supa != nil:
		threads = supa
	}

	sessions, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, sessions.Close)

	kb, err := newKnowledge(ctx, cfg, supa, logger)
	if err != nil {
		logger.Warn("knowledge base disabled", "error", err)
	}

	opts := server.Options{
		AdminToken:  cfg.AdminToken,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	}
	if supa != nil {
		opts.Videos = supa
	}
	if kb != nil {
		opts.Knowledge = kb
		a.closers = append(a.closers, kb.Close)
	}

	if err := cfg.RequireOpenAI(); err != nil {
		logger.Error("assistant disabled", "error", err)
		opts.ChatErr = err
	} else {
		provider, err := openai.New(ctx, openai.Config{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			DefaultModel: cfg.OpenAI.FallbackModel,
		})
		if err != nil {
			return nil, err
		}
		deps := chat.Deps{
			Provider: provider,
			Threads:  threads,
			Sessions: sessions,
			Limiter:  limiter,
			Logger:   logger,
		}
		if kb != nil {
			deps.Knowledge = kb
		}
		opts.Chat = chat.New(deps, chat.Options{
			AssistantID:   cfg.OpenAI.AssistantID,
			SimpleModel:   cfg.OpenAI.SimpleModel,
			FallbackModel: cfg.OpenAI.FallbackModel,
			Persona:       cfg.Persona,
			PollTimeout:   cfg.PollTimeout,
			PollInterval:  cfg.PollInterval,
		})
	}

	a.server = server.New(opts)
	return a, nil
}

func newSessionStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Store, error) {
	if cfg.RedisURL == "" {
		return session.NewStore(session.StoreTypeMemory)
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	logger.Info("session store", "type", session.StoreTypeRedis, "addr", redisOpts.Addr)
	return session.NewStore(session.StoreTypeRedis, session.WithRedisClient(client))
}

// newKnowledge returns nil without error when the knowledge base is not configured.
func newKnowledge(ctx context.Context, cfg *config.Config, supa *supabase.Client, logger *slog.Logger) (*knowledge.Service, error) {
	if cfg.Qdrant.URL == "" || cfg.OpenAI.APIKey == "" {
		return nil, nil
	}

	embedder, err := embedopenai.NewEmbedder(ctx, &embedopenai.EmbeddingConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.EmbeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	vectors, err := qdrant.New(qdrant.Config{
		URL:            cfg.Qdrant.URL,
		APIKey:         cfg.Qdrant.APIKey,
		CollectionName: cfg.Qdrant.Collection,
	})
	if err != nil {
		return nil, err
	}
	if err := vectors.EnsureCollection(ctx, cfg.Qdrant.Dimensions); err != nil {
		_ = vectors.Close()
		return nil, err
	}

	var rows knowledge.Rows
	if supa != nil {
		rows = supa
	}
	return knowledge.New(embedder, vectors, rows, knowledge.Options{}, logger), nil
}
