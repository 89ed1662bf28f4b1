package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/llm"
	"github.com/creastat/assistant/ratelimit"
	"github.com/creastat/assistant/session"
)

// Request is one incoming user message.
type Request struct {
	UserID  string
	Message string
	// PriorTurns are earlier user messages sent by the client, newest first.
	// When empty they are read from the session history.
	PriorTurns     []string
	UseSimpleModel bool
}

// ReplyStream is the body of a chat answer. Body must be closed by the caller.
type ReplyStream struct {
	Body     io.ReadCloser
	Fallback bool
	ThreadID string
	RunID    string
}

// Orchestrator answers user messages through the assistant run path or the simple model.
type Orchestrator struct {
	provider llm.Provider
	threads  *ThreadStore
	poller   *Poller
	fallback *Fallback
	sessions session.Store
	limiter  *ratelimit.Limiter
	opts     Options
	logger   *slog.Logger
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "chat")

	fallback := NewFallback(deps.Provider, opts, deps.Knowledge, deps.Limiter, logger)
	return &Orchestrator{
		provider: deps.Provider,
		threads:  NewThreadStore(deps.Provider, deps.Threads, deps.Limiter, logger),
		poller:   NewPoller(deps.Provider, fallback, opts, deps.Limiter, deps.Clock, logger),
		fallback: fallback,
		sessions: deps.Sessions,
		limiter:  deps.Limiter,
		opts:     opts,
		logger:   logger,
	}
}

// HandleMessage answers a message synchronously. The simple model streams its
// tokens; the run path yields the complete reply as a single chunk.
func (o *Orchestrator) HandleMessage(ctx context.Context, req Request) (*ReplyStream, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, &assistant.ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if req.UseSimpleModel {
		return o.streamSimple(ctx, message)
	}

	threadID, err := o.threads.ResolveThread(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	turn := Turn{Message: message, PriorTurns: req.PriorTurns}
	if len(turn.PriorTurns) == 0 {
		turn.PriorTurns = o.priorTurns(ctx, threadID)
	}

	var reply *Reply
	err = o.provider.PostMessage(ctx, threadID, message)
	record(o.limiter, KeyMessagePost, err)
	if err != nil {
		// Without the message on the thread a run would answer the wrong turn.
		o.logger.Warn("failed to post message", "thread_id", threadID, "error", err)
		reply, err = o.fallback.Reply(ctx, turn, err)
		if err == nil {
			reply.ThreadID = threadID
		}
	} else {
		reply, err = o.poller.ResolveReply(ctx, threadID, turn)
	}
	if err != nil {
		return nil, err
	}

	o.remember(ctx, threadID, req.UserID, reply.RunID, assistant.RoleUser, message)
	o.remember(ctx, threadID, req.UserID, reply.RunID, assistant.RoleAssistant, reply.Text)

	return &ReplyStream{
		Body:     io.NopCloser(strings.NewReader(reply.Text)),
		Fallback: reply.Fallback,
		ThreadID: reply.ThreadID,
		RunID:    reply.RunID,
	}, nil
}

func (o *Orchestrator) streamSimple(ctx context.Context, message string) (*ReplyStream, error) {
	body, err := o.provider.StreamChat(ctx, o.opts.SimpleModel, []llm.ChatMessage{
		{Role: assistant.RoleSystem, Content: o.opts.Persona},
		{Role: assistant.RoleUser, Content: message},
	})
	record(o.limiter, KeyCompletion, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", assistant.ErrAssistantUnavailable, err)
	}
	return &ReplyStream{Body: body}, nil
}

// StartResult identifies a run started by Start.
type StartResult struct {
	ThreadID string `json:"threadId"`
	RunID    string `json:"runId"`
}

// Start posts the message and starts a run without waiting for it.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*StartResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, &assistant.ValidationError{Field: "message", Reason: "must not be empty"}
	}

	threadID, err := o.threads.ResolveThread(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	err = o.provider.PostMessage(ctx, threadID, message)
	record(o.limiter, KeyMessagePost, err)
	if err != nil {
		return nil, upstreamError("post message", err)
	}
	run, err := o.poller.StartRun(ctx, threadID)
	if err != nil {
		return nil, err
	}

	o.remember(ctx, threadID, req.UserID, run.ID, assistant.RoleUser, message)
	return &StartResult{ThreadID: threadID, RunID: run.ID}, nil
}

// RunStatus is the externally visible state of a run.
type RunStatus struct {
	Status       string     `json:"status"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	ErrorCode    string     `json:"errorCode,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// RateLimitedError is returned when the limiter asks callers to wait.
type RateLimitedError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s is backing off, retry after %s", e.Key, e.RetryAfter)
}

// Unwrap makes errors.Is(err, assistant.ErrUpstreamTransient) hold.
func (e *RateLimitedError) Unwrap() error { return assistant.ErrUpstreamTransient }

// Status fetches a run's status once. It refuses while the status endpoint is backing off.
func (o *Orchestrator) Status(ctx context.Context, threadID, runID string) (*RunStatus, error) {
	if err := requireIDs(threadID, runID); err != nil {
		return nil, err
	}
	if o.limiter != nil && !o.limiter.CanProceed(KeyRunStatus) {
		return nil, &RateLimitedError{Key: KeyRunStatus, RetryAfter: o.limiter.WaitTimeRemaining(KeyRunStatus)}
	}

	run, err := o.provider.GetRun(ctx, threadID, runID)
	record(o.limiter, KeyRunStatus, err)
	if err != nil {
		return nil, upstreamError("get run", err)
	}

	status := &RunStatus{Status: run.Status, StartedAt: run.StartedAt, CompletedAt: run.CompletedAt}
	if run.LastError != nil {
		status.ErrorCode = run.LastError.Code
		status.ErrorMessage = run.LastError.Message
	}
	return status, nil
}

// Result collects the reply of a run the caller has seen finish, falling back
// when the run did not complete or left no assistant message.
//
// runID is optional; without it the run is assumed to have completed and only
// the thread's messages are consulted.
func (o *Orchestrator) Result(ctx context.Context, threadID, runID string) (*Reply, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, &assistant.ValidationError{Field: "threadId", Reason: "is required"}
	}

	var cause error
	if runID != "" {
		run, err := o.provider.GetRun(ctx, threadID, runID)
		record(o.limiter, KeyRunStatus, err)
		switch {
		case err != nil:
			cause = upstreamError("get run", err)
		case run.Status != llm.StatusCompleted && run.Terminal():
			cause = runFailure(run)
		case run.Status != llm.StatusCompleted:
			return nil, &RunPendingError{Status: run.Status}
		}
	}

	if cause == nil {
		text, err := o.poller.Collect(ctx, threadID)
		if err == nil {
			o.rememberReply(ctx, threadID, runID, text)
			return &Reply{Text: text, ThreadID: threadID, RunID: runID}, nil
		}
		cause = err
	}

	turn := o.lastTurn(ctx, threadID)
	reply, err := o.fallback.Reply(ctx, turn, cause)
	if err != nil {
		return nil, err
	}
	reply.ThreadID = threadID
	reply.RunID = runID
	o.rememberReply(ctx, threadID, runID, reply.Text)
	return reply, nil
}

// RunPendingError is returned by Result for a run that has not finished yet.
type RunPendingError struct {
	Status string
}

func (e *RunPendingError) Error() string {
	return fmt.Sprintf("run has not finished (status %s)", e.Status)
}

func requireIDs(threadID, runID string) error {
	if strings.TrimSpace(threadID) == "" {
		return &assistant.ValidationError{Field: "threadId", Reason: "is required"}
	}
	if strings.TrimSpace(runID) == "" {
		return &assistant.ValidationError{Field: "runId", Reason: "is required"}
	}
	return nil
}

// lastTurn rebuilds the user input for a fallback from the session history,
// or from the thread itself when no session is kept.
func (o *Orchestrator) lastTurn(ctx context.Context, threadID string) Turn {
	if turns := o.priorTurns(ctx, threadID); len(turns) > 0 {
		return Turn{Message: turns[0], PriorTurns: turns[1:]}
	}

	messages, err := o.provider.ListMessages(ctx, threadID)
	record(o.limiter, KeyMessageList, err)
	if err != nil {
		o.logger.Warn("failed to list messages for fallback", "thread_id", threadID, "error", err)
		return Turn{}
	}
	var turns []string
	for _, m := range messages {
		if m.Role == assistant.RoleUser {
			if text := strings.TrimSpace(m.Text()); text != "" {
				turns = append(turns, text)
			}
		}
	}
	if len(turns) == 0 {
		return Turn{}
	}
	return Turn{Message: turns[0], PriorTurns: turns[1:]}
}

// priorTurns returns the user turns recorded for the thread, newest first.
func (o *Orchestrator) priorTurns(ctx context.Context, threadID string) []string {
	if o.sessions == nil {
		return nil
	}
	data, err := o.sessions.Get(ctx, threadID)
	if err != nil {
		o.logger.Warn("failed to load session", "thread_id", threadID, "error", err)
		return nil
	}
	if data == nil {
		return nil
	}
	return assistant.RecentUserTurns(data.History, o.opts.PriorTurns+1)
}

func (o *Orchestrator) rememberReply(ctx context.Context, threadID, runID, text string) {
	o.remember(ctx, threadID, "", runID, assistant.RoleAssistant, text)
}

func (o *Orchestrator) remember(ctx context.Context, threadID, userID, runID, role, content string) {
	if o.sessions == nil || threadID == "" {
		return
	}
	err := session.AppendTurn(ctx, o.sessions, session.Turn{
		SessionID: threadID,
		UserID:    userID,
		RunID:     runID,
		Role:      role,
		Content:   content,
	}, o.opts.History)
	if err != nil {
		o.logger.Warn("failed to record turn", "thread_id", threadID, "role", role, "error", err)
	}
}
