package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/creastat/assistant/llm"
)

// fakeProvider scripts the hosted assistant and counts calls.
type fakeProvider struct {
	mu sync.Mutex

	threadErr   error
	postErr     error
	startErr    error
	statuses    []string // returned by successive GetRun calls; the last one repeats
	statusErrs  []error  // parallel to statuses, nil for success
	runError    *llm.RunError
	messages    []llm.Message
	listErr     error
	completion  string
	completeErr error
	streamText  string

	threadsCreated int
	posts          []string
	runsStarted    int
	statusCalls    int
	listCalls      int
	completions    []completionCall
	streams        int
}

type completionCall struct {
	model    string
	messages []llm.ChatMessage
}

func (f *fakeProvider) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.threadErr != nil {
		return "", f.threadErr
	}
	f.threadsCreated++
	return fmt.Sprintf("thread_%d", f.threadsCreated), nil
}

func (f *fakeProvider) PostMessage(ctx context.Context, threadID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, content)
	return nil
}

func (f *fakeProvider) StartRun(ctx context.Context, threadID, assistantID string) (*llm.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.runsStarted++
	return &llm.Run{ID: fmt.Sprintf("run_%d", f.runsStarted), ThreadID: threadID, Status: llm.StatusQueued}, nil
}

func (f *fakeProvider) GetRun(ctx context.Context, threadID, runID string) (*llm.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := min(f.statusCalls, len(f.statuses)-1)
	f.statusCalls++
	if i < len(f.statusErrs) && f.statusErrs[i] != nil {
		return nil, f.statusErrs[i]
	}
	run := &llm.Run{ID: runID, ThreadID: threadID, Status: f.statuses[i]}
	if run.Status == llm.StatusFailed {
		run.LastError = f.runError
	}
	return run, nil
}

func (f *fakeProvider) ListMessages(ctx context.Context, threadID string) ([]llm.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.messages, f.listErr
}

func (f *fakeProvider) CompleteChat(ctx context.Context, model string, messages []llm.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, completionCall{model: model, messages: messages})
	return f.completion, f.completeErr
}

func (f *fakeProvider) StreamChat(ctx context.Context, model string, messages []llm.ChatMessage) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams++
	return io.NopCloser(strings.NewReader(f.streamText)), nil
}

func (f *fakeProvider) upstreamCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threadsCreated + len(f.posts) + f.runsStarted + f.statusCalls + f.listCalls + len(f.completions) + f.streams
}

// fakeClock advances only when the poll loop sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// fakeRepo is an in-memory user -> thread mapping.
type fakeRepo struct {
	threads map[string]string
	getErr  error
	saveErr error
	saves   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{threads: map[string]string{}}
}

func (r *fakeRepo) GetThread(ctx context.Context, userID string) (string, error) {
	if r.getErr != nil {
		return "", r.getErr
	}
	return r.threads[userID], nil
}

func (r *fakeRepo) SaveThread(ctx context.Context, userID, threadID string) error {
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.threads[userID] = threadID
	return nil
}

type fakeKnowledge struct {
	block string
	err   error
}

func (k fakeKnowledge) Context(ctx context.Context, query string) (string, error) {
	return k.block, k.err
}

func assistantMessage(parts ...llm.ContentPart) llm.Message {
	return llm.Message{Role: "assistant", Content: parts}
}

func text(s string) llm.ContentPart {
	return llm.ContentPart{Type: llm.ContentTypeText, Text: s}
}

func rateLimited() error {
	return &llm.StatusError{StatusCode: 429, Err: errors.New("rate limit exceeded")}
}
