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

// Poller starts assistant runs and waits for them to finish.
type Poller struct {
	provider    llm.Provider
	fallback    *Fallback
	assistantID string
	opts        Options
	limiter     *ratelimit.Limiter
	clock       Clock
	logger      *slog.Logger
}

// NewPoller creates a Poller. clock may be nil for wall-clock time.
func NewPoller(provider llm.Provider, fallback *Fallback, opts Options, limiter *ratelimit.Limiter, clock Clock, logger *slog.Logger) *Poller {
	opts = opts.withDefaults()
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		provider:    provider,
		fallback:    fallback,
		assistantID: opts.AssistantID,
		opts:        opts,
		limiter:     limiter,
		clock:       clock,
		logger:      logger,
	}
}

// ResolveReply runs the assistant on the thread and returns its reply, or a
// fallback reply when the run fails, expires, times out or answers nothing.
// Only a failure to start the run is returned as an error without fallback.
func (p *Poller) ResolveReply(ctx context.Context, threadID string, turn Turn) (*Reply, error) {
	run, err := p.StartRun(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return p.Await(ctx, threadID, run.ID, turn)
}

// StartRun starts a run on the thread.
func (p *Poller) StartRun(ctx context.Context, threadID string) (*llm.Run, error) {
	run, err := p.provider.StartRun(ctx, threadID, p.assistantID)
	record(p.limiter, KeyRunStart, err)
	if err != nil {
		return nil, upstreamError("start run", err)
	}
	p.logger.Info("run started", "thread_id", threadID, "run_id", run.ID, "status", run.Status)
	return run, nil
}

// Await waits for a started run and collects its reply.
func (p *Poller) Await(ctx context.Context, threadID, runID string, turn Turn) (*Reply, error) {
	cause := p.Poll(ctx, threadID, runID)
	if cause == nil {
		text, err := p.Collect(ctx, threadID)
		if err == nil {
			return &Reply{Text: text, ThreadID: threadID, RunID: runID}, nil
		}
		cause = err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	reply, err := p.fallback.Reply(ctx, turn, cause)
	if err != nil {
		return nil, err
	}
	reply.ThreadID = threadID
	reply.RunID = runID
	return reply, nil
}

// Poll checks the run status at a fixed interval until it is terminal or the
// timeout elapses. It returns nil only for a completed run. A failed status
// check is logged and the loop keeps going.
func (p *Poller) Poll(ctx context.Context, threadID, runID string) error {
	start := p.clock.Now()
	var last string

	for {
		run, err := p.provider.GetRun(ctx, threadID, runID)
		record(p.limiter, KeyRunStatus, err)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("run status check failed", "thread_id", threadID, "run_id", runID, "error", err)
		case run.Status == llm.StatusCompleted:
			p.logger.Info("run completed", "run_id", runID, "elapsed", p.clock.Now().Sub(start))
			return nil
		case run.Terminal():
			return runFailure(run)
		case run.Status != last:
			p.logger.Debug("run status", "run_id", runID, "status", run.Status)
			last = run.Status
		}

		remaining := p.opts.PollTimeout - p.clock.Now().Sub(start)
		if remaining <= 0 {
			return p.timedOut(runID, last)
		}
		if err := p.clock.Sleep(ctx, min(p.opts.PollInterval, remaining)); err != nil {
			return err
		}
		if p.clock.Now().Sub(start) >= p.opts.PollTimeout {
			return p.timedOut(runID, last)
		}
	}
}

// Collect extracts the assistant reply from the thread's newest messages.
func (p *Poller) Collect(ctx context.Context, threadID string) (string, error) {
	messages, err := p.provider.ListMessages(ctx, threadID)
	record(p.limiter, KeyMessageList, err)
	if err != nil {
		return "", upstreamError("list messages", err)
	}
	text := ExtractReply(messages)
	if strings.TrimSpace(text) == "" {
		return "", assistant.ErrEmptyReply
	}
	return text, nil
}

func (p *Poller) timedOut(runID, last string) error {
	p.logger.Warn("run timed out", "run_id", runID, "timeout", p.opts.PollTimeout, "last_status", last)
	return fmt.Errorf("%w after %s", assistant.ErrRunTimedOut, p.opts.PollTimeout)
}

// ExtractReply returns the text of the first assistant message in a newest-first
// listing. Only text parts contribute; "" means there is no usable reply.
func ExtractReply(messages []llm.Message) string {
	for _, m := range messages {
		if m.Role != assistant.RoleAssistant {
			continue
		}
		return m.Text()
	}
	return ""
}

func runFailure(run *llm.Run) error {
	err := &assistant.RunFailedError{Status: run.Status}
	if run.LastError != nil {
		err.Code = run.LastError.Code
		err.Message = run.LastError.Message
	}
	return err
}

// upstreamError classifies a provider failure. Rate-limit responses are transient.
func upstreamError(op string, err error) error {
	if llm.StatusCode(err) == 429 {
		return fmt.Errorf("%s: %w: %w", op, assistant.ErrUpstreamTransient, err)
	}
	return fmt.Errorf("%s: %w: %w", op, assistant.ErrUpstreamUnavailable, err)
}
