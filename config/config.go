// Package config loads the service configuration from the environment, an
// optional .env file and an optional YAML file.
//
// Precedence, highest first: process environment, .env, config file, defaults.
// The hosted-service credentials keep their conventional names:
//
//	OPENAI_API_KEY, OPENAI_ASSISTANT_ID
//	NEXT_PUBLIC_SUPABASE_URL, NEXT_PUBLIC_SUPABASE_ANON_KEY, SUPABASE_SERVICE_ROLE_KEY
//
// Everything else is read from ASSISTANT_* variables or the matching YAML key.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/creastat/assistant"
)

// Defaults applied when neither the environment nor the config file sets a value.
const (
	DefaultPort         = 8080
	DefaultModel        = "gpt-4o-mini"
	DefaultEmbedding    = "text-embedding-3-small"
	DefaultPollTimeout  = 60 * time.Second
	DefaultPollInterval = time.Second
)

// Config is the resolved service configuration.
type Config struct {
	Port        int
	Debug       bool
	AdminToken  string
	CORSOrigins []string

	OpenAI   OpenAIConfig
	Supabase SupabaseConfig

	Persona      string
	PollTimeout  time.Duration
	PollInterval time.Duration

	DatabaseURL string
	RedisURL    string

	Qdrant QdrantConfig
}

// OpenAIConfig holds the assistant and model settings.
type OpenAIConfig struct {
	APIKey         string
	AssistantID    string
	BaseURL        string
	SimpleModel    string
	FallbackModel  string
	EmbeddingModel string
}

// SupabaseConfig locates the hosted data store. Either key is enough; the service role key wins.
type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	VideoTables    []string
}

// QdrantConfig locates the knowledge-base vector index.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dimensions int
}

// keys maps viper keys to the environment variables they are read from.
var keys = map[string][]string{
	"port":                  {"ASSISTANT_PORT", "PORT"},
	"debug":                 {"ASSISTANT_DEBUG"},
	"admin_token":           {"ASSISTANT_ADMIN_TOKEN"},
	"cors_origins":          {"ASSISTANT_CORS_ORIGINS"},
	"openai.api_key":        {"OPENAI_API_KEY"},
	"openai.assistant_id":   {"OPENAI_ASSISTANT_ID"},
	"openai.base_url":       {"ASSISTANT_OPENAI_BASE_URL"},
	"openai.simple_model":   {"ASSISTANT_SIMPLE_MODEL"},
	"openai.fallback_model": {"ASSISTANT_FALLBACK_MODEL"},
	"openai.embedding":      {"ASSISTANT_EMBEDDING_MODEL"},
	"supabase.url":          {"NEXT_PUBLIC_SUPABASE_URL"},
	"supabase.anon_key":     {"NEXT_PUBLIC_SUPABASE_ANON_KEY"},
	"supabase.service_role": {"SUPABASE_SERVICE_ROLE_KEY"},
	"supabase.video_tables": {"ASSISTANT_VIDEO_TABLES"},
	"persona":               {"ASSISTANT_PERSONA"},
	"poll.timeout":          {"ASSISTANT_POLL_TIMEOUT"},
	"poll.interval":         {"ASSISTANT_POLL_INTERVAL"},
	"database_url":          {"DATABASE_URL"},
	"redis_url":             {"REDIS_URL"},
	"qdrant.url":            {"QDRANT_URL"},
	"qdrant.api_key":        {"QDRANT_API_KEY"},
	"qdrant.collection":     {"ASSISTANT_QDRANT_COLLECTION"},
	"qdrant.dimensions":     {"ASSISTANT_EMBEDDING_DIMENSIONS"},
}

// Load resolves the configuration. envFile and configFile are optional; a
// missing .env is ignored, a missing or malformed config file is an error.
func Load(envFile, configFile string) (*Config, error) {
	if err := loadDotenv(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("port", DefaultPort)
	v.SetDefault("openai.simple_model", DefaultModel)
	v.SetDefault("openai.fallback_model", DefaultModel)
	v.SetDefault("openai.embedding", DefaultEmbedding)
	v.SetDefault("poll.timeout", DefaultPollTimeout)
	v.SetDefault("poll.interval", DefaultPollInterval)
	v.SetDefault("supabase.video_tables", "videos")
	v.SetDefault("qdrant.collection", "knowledge_base")
	v.SetDefault("qdrant.dimensions", 1536)

	for key, envs := range keys {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Port:        v.GetInt("port"),
		Debug:       v.GetBool("debug"),
		AdminToken:  v.GetString("admin_token"),
		CORSOrigins: splitList(v.GetString("cors_origins")),
		OpenAI: OpenAIConfig{
			APIKey:         strings.TrimSpace(v.GetString("openai.api_key")),
			AssistantID:    strings.TrimSpace(v.GetString("openai.assistant_id")),
			BaseURL:        v.GetString("openai.base_url"),
			SimpleModel:    v.GetString("openai.simple_model"),
			FallbackModel:  v.GetString("openai.fallback_model"),
			EmbeddingModel: v.GetString("openai.embedding"),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimSpace(v.GetString("supabase.url")),
			AnonKey:        strings.TrimSpace(v.GetString("supabase.anon_key")),
			ServiceRoleKey: strings.TrimSpace(v.GetString("supabase.service_role")),
			VideoTables:    splitList(v.GetString("supabase.video_tables")),
		},
		Persona:      v.GetString("persona"),
		PollTimeout:  v.GetDuration("poll.timeout"),
		PollInterval: v.GetDuration("poll.interval"),
		DatabaseURL:  v.GetString("database_url"),
		RedisURL:     v.GetString("redis_url"),
		Qdrant: QdrantConfig{
			URL:        v.GetString("qdrant.url"),
			APIKey:     v.GetString("qdrant.api_key"),
			Collection: v.GetString("qdrant.collection"),
			Dimensions: v.GetInt("qdrant.dimensions"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotenv(path string) error {
	if path == "" {
		path = ".env"
	}
	// godotenv never overrides variables already set in the process.
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &assistant.ValidationError{Field: "port", Reason: fmt.Sprintf("%d is out of range", c.Port)}
	}
	if c.PollInterval <= 0 {
		return &assistant.ValidationError{Field: "poll.interval", Reason: "must be positive"}
	}
	if c.PollTimeout < c.PollInterval {
		return &assistant.ValidationError{Field: "poll.timeout", Reason: "must not be shorter than poll.interval"}
	}
	return nil
}

// RequireOpenAI reports the first missing credential the assistant path needs.
func (c *Config) RequireOpenAI() error {
	if c.OpenAI.APIKey == "" {
		return &assistant.ConfigError{Variable: "OPENAI_API_KEY"}
	}
	if c.OpenAI.AssistantID == "" {
		return &assistant.ConfigError{Variable: "OPENAI_ASSISTANT_ID"}
	}
	return nil
}

// SupabaseKey returns the service role key, or the anon key when no service key is set.
func (c *Config) SupabaseKey() string {
	if c.Supabase.ServiceRoleKey != "" {
		return c.Supabase.ServiceRoleKey
	}
	return c.Supabase.AnonKey
}

// SupabaseConfigured reports whether the Supabase client can be built.
func (c *Config) SupabaseConfigured() bool {
	return c.Supabase.URL != "" && c.SupabaseKey() != ""
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
