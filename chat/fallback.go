package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/llm"
	"github.com/creastat/assistant/ratelimit"
)

// Reply is the answer to one user message.
type Reply struct {
	Text     string `json:"reply"`
	Fallback bool   `json:"fallback"`
	ThreadID string `json:"threadId,omitempty"`
	RunID    string `json:"runId,omitempty"`
}

// Turn is the user input a reply answers.
type Turn struct {
	Message string
	// PriorTurns are earlier user messages, newest first.
	PriorTurns []string
}

// Fallback answers a turn with a single completion when the run path fails.
type Fallback struct {
	provider   llm.Provider
	model      string
	persona    string
	priorTurns int
	knowledge  KnowledgeSource
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
}

// NewFallback creates a Fallback. knowledge may be nil.
func NewFallback(provider llm.Provider, opts Options, knowledge KnowledgeSource, limiter *ratelimit.Limiter, logger *slog.Logger) *Fallback {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		provider:   provider,
		model:      opts.FallbackModel,
		persona:    opts.Persona,
		priorTurns: opts.PriorTurns,
		knowledge:  knowledge,
		limiter:    limiter,
		logger:     logger,
	}
}

// Reply produces a fallback answer. cause is the run-path failure and is only logged.
func (f *Fallback) Reply(ctx context.Context, turn Turn, cause error) (*Reply, error) {
	f.logger.Warn("falling back to completion", "model", f.model, "cause", cause)

	prompt := f.userPrompt(turn)
	if prompt == "" {
		return nil, fmt.Errorf("%w: nothing to answer", assistant.ErrAssistantUnavailable)
	}

	messages := []llm.ChatMessage{
		{Role: assistant.RoleSystem, Content: f.systemPrompt(ctx, prompt)},
		{Role: assistant.RoleUser, Content: prompt},
	}
	text, err := f.provider.CompleteChat(ctx, f.model, messages)
	record(f.limiter, KeyCompletion, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", assistant.ErrAssistantUnavailable, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w", assistant.ErrAssistantUnavailable, assistant.ErrEmptyReply)
	}
	return &Reply{Text: text, Fallback: true}, nil
}

// userPrompt joins the message with up to priorTurns earlier user turns, newest first.
func (f *Fallback) userPrompt(turn Turn) string {
	parts := make([]string, 0, 1+f.priorTurns)
	msg := strings.TrimSpace(turn.Message)
	if msg != "" {
		parts = append(parts, msg)
	}
	for _, prior := range turn.PriorTurns {
		if len(parts) > f.priorTurns {
			break
		}
		if prior = strings.TrimSpace(prior); prior != "" && prior != msg {
			parts = append(parts, prior)
		}
	}
	return strings.Join(parts, " ")
}

func (f *Fallback) systemPrompt(ctx context.Context, query string) string {
	if f.knowledge == nil {
		return f.persona
	}
	block, err := f.knowledge.Context(ctx, query)
	if err != nil {
		f.logger.Warn("knowledge lookup failed", "error", err)
		return f.persona
	}
	if block == "" {
		return f.persona
	}
	return f.persona + "\n\nInformações de referência:\n" + block
}
