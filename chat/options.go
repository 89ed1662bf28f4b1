// Package chat drives assistant conversations: it maps users to provider threads,
// runs the assistant on each message, polls the run to completion, and falls back
// to a plain completion when the run path does not produce an answer.
package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/creastat/assistant/llm"
	"github.com/creastat/assistant/ratelimit"
	"github.com/creastat/assistant/session"
)

// DefaultPersona is the system prompt used by the simple model and the fallback path.
const DefaultPersona = "Você é o assistente virtual de uma produtora de vídeo. " +
	"Responda em português do Brasil, de forma cordial e objetiva, sobre os serviços da produtora: " +
	"vídeos institucionais, publicitários, eventos, animações e edição. " +
	"Quando não souber algo, sugira que o cliente entre em contato pelo formulário do site."

// Rate limiter keys for upstream calls.
const (
	KeyThreadCreate = "thread.create"
	KeyMessagePost  = "message.post"
	KeyRunStart     = "run.start"
	KeyRunStatus    = "run.status"
	KeyMessageList  = "message.list"
	KeyCompletion   = "chat.completion"
)

// Options configures an Orchestrator.
type Options struct {
	// AssistantID is the hosted assistant configuration runs are started with.
	AssistantID string
	// SimpleModel answers requests flagged useSimpleModel. Default: gpt-4o-mini
	SimpleModel string
	// FallbackModel answers when the run path fails. Default: gpt-4o-mini
	FallbackModel string
	// Persona is the system prompt for the simple and fallback paths. Default: DefaultPersona
	Persona string
	// PollTimeout bounds the wait for a run. Default: 60 seconds
	PollTimeout time.Duration
	// PollInterval is the fixed delay between status checks. Default: 1 second
	PollInterval time.Duration
	// PriorTurns is how many earlier user turns the fallback sees. Default: 3
	PriorTurns int
	// History bounds the per-thread session history.
	History session.HistoryLimits
}

func (o Options) withDefaults() Options {
	if o.SimpleModel == "" {
		o.SimpleModel = "gpt-4o-mini"
	}
	if o.FallbackModel == "" {
		o.FallbackModel = "gpt-4o-mini"
	}
	if o.Persona == "" {
		o.Persona = DefaultPersona
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 60 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.PriorTurns <= 0 {
		o.PriorTurns = 3
	}
	if o.History.Messages <= 0 && o.History.Tokens <= 0 {
		o.History = session.DefaultHistoryLimits
	}
	return o
}

// KnowledgeSource supplies reference text for the fallback prompt.
type KnowledgeSource interface {
	Context(ctx context.Context, query string) (string, error)
}

// ThreadRepository persists the user -> thread mapping.
type ThreadRepository interface {
	// GetThread returns "" when the user has no thread.
	GetThread(ctx context.Context, userID string) (string, error)
	SaveThread(ctx context.Context, userID, threadID string) error
}

// Deps are the collaborators of an Orchestrator. Only Provider is required.
type Deps struct {
	Provider  llm.Provider
	Threads   ThreadRepository
	Sessions  session.Store
	Knowledge KnowledgeSource
	Limiter   *ratelimit.Limiter
	Clock     Clock
	Logger    *slog.Logger
}

// Clock abstracts time for the poll loop.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// record feeds the outcome of an upstream call into the limiter.
func record(l *ratelimit.Limiter, key string, err error) {
	if l == nil {
		return
	}
	if err == nil {
		l.RecordSuccess(key)
		return
	}
	l.RecordFailure(key, llm.StatusCode(err))
}
