// Package openai implements llm.Provider on top of the OpenAI API. Threads, runs and
// thread messages go through the assistants endpoints; plain completions go through
// an eino chat model so they can be generated or streamed.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/llm"
)

// Config holds OpenAI connection configuration.
type Config struct {
	APIKey string
	// BaseURL overrides the API root, e.g. for a proxy. Default: https://api.openai.com/v1
	BaseURL string
	// DefaultModel is used by completions when the caller passes no model.
	DefaultModel string
	// Timeout bounds each completion request. Default: 60 seconds
	Timeout time.Duration
	// MessagePageSize is how many thread messages ListMessages fetches. Default: 20
	MessagePageSize int
}

// Provider implements llm.Provider.
type Provider struct {
	client       *goopenai.Client
	chatModel    model.BaseChatModel
	defaultModel string
	pageSize     int
}

// New creates a new OpenAI provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, &assistant.ConfigError{Variable: "OPENAI_API_KEY"}
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MessagePageSize <= 0 {
		cfg.MessagePageSize = 20
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.DefaultModel,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create openai chat model: %w", err)
	}

	return &Provider{
		client:       goopenai.NewClientWithConfig(clientCfg),
		chatModel:    chatModel,
		defaultModel: cfg.DefaultModel,
		pageSize:     cfg.MessagePageSize,
	}, nil
}

// CreateThread implements llm.Provider.
func (p *Provider) CreateThread(ctx context.Context) (string, error) {
	thread, err := p.client.CreateThread(ctx, goopenai.ThreadRequest{})
	if err != nil {
		return "", wrap("create thread", err)
	}
	return thread.ID, nil
}

// PostMessage implements llm.Provider.
func (p *Provider) PostMessage(ctx context.Context, threadID, content string) error {
	_, err := p.client.CreateMessage(ctx, threadID, goopenai.MessageRequest{
		Role:    assistant.RoleUser,
		Content: content,
	})
	if err != nil {
		return wrap("post message", err)
	}
	return nil
}

// StartRun implements llm.Provider.
func (p *Provider) StartRun(ctx context.Context, threadID, assistantID string) (*llm.Run, error) {
	run, err := p.client.CreateRun(ctx, threadID, goopenai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return nil, wrap("start run", err)
	}
	return toRun(run), nil
}

// GetRun implements llm.Provider.
func (p *Provider) GetRun(ctx context.Context, threadID, runID string) (*llm.Run, error) {
	run, err := p.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, wrap("get run", err)
	}
	return toRun(run), nil
}

// ListMessages implements llm.Provider.
func (p *Provider) ListMessages(ctx context.Context, threadID string) ([]llm.Message, error) {
	limit := p.pageSize
	order := "desc"
	list, err := p.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, wrap("list messages", err)
	}
	return toMessages(list.Messages), nil
}

// CompleteChat implements llm.Provider.
func (p *Provider) CompleteChat(ctx context.Context, modelName string, messages []llm.ChatMessage) (string, error) {
	out, err := p.chatModel.Generate(ctx, toSchema(messages), p.modelOption(modelName))
	if err != nil {
		return "", wrap("chat completion", err)
	}
	return out.Content, nil
}

// StreamChat implements llm.Provider.
func (p *Provider) StreamChat(ctx context.Context, modelName string, messages []llm.ChatMessage) (io.ReadCloser, error) {
	reader, err := p.chatModel.Stream(ctx, toSchema(messages), p.modelOption(modelName))
	if err != nil {
		return nil, wrap("chat stream", err)
	}
	return newStreamBody(reader), nil
}

func (p *Provider) modelOption(name string) model.Option {
	if name == "" {
		name = p.defaultModel
	}
	return model.WithModel(name)
}

func toSchema(messages []llm.ChatMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, &schema.Message{Role: schema.RoleType(m.Role), Content: m.Content})
	}
	return out
}

func toRun(run goopenai.Run) *llm.Run {
	out := &llm.Run{
		ID:          run.ID,
		ThreadID:    run.ThreadID,
		Status:      string(run.Status),
		StartedAt:   unixPtr(run.StartedAt),
		CompletedAt: unixPtr(run.CompletedAt),
	}
	if run.LastError != nil {
		out.LastError = &llm.RunError{
			Code:    string(run.LastError.Code),
			Message: run.LastError.Message,
		}
	}
	return out
}

func toMessages(in []goopenai.Message) []llm.Message {
	out := make([]llm.Message, 0, len(in))
	for _, m := range in {
		msg := llm.Message{
			ID:        m.ID,
			Role:      m.Role,
			CreatedAt: time.Unix(int64(m.CreatedAt), 0),
		}
		for _, c := range m.Content {
			part := llm.ContentPart{Type: c.Type}
			if c.Text != nil {
				part.Text = c.Text.Value
			}
			msg.Content = append(msg.Content, part)
		}
		out = append(out, msg)
	}
	return out
}

func unixPtr(ts *int64) *time.Time {
	if ts == nil || *ts == 0 {
		return nil
	}
	t := time.Unix(*ts, 0)
	return &t
}

// wrap annotates err and lifts the upstream HTTP status into an llm.StatusError.
func wrap(op string, err error) error {
	if code := httpStatus(err); code != 0 {
		return fmt.Errorf("failed to %s: %w", op, &llm.StatusError{StatusCode: code, Err: err})
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func httpStatus(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// Compile-time check that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)
