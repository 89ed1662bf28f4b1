package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/llm"
	"github.com/creastat/assistant/ratelimit"
	"github.com/creastat/assistant/session"
)

func newTestOrchestrator(t *testing.T, p *fakeProvider, repo ThreadRepository, opts Options) (*Orchestrator, session.Store) {
	t.Helper()
	store, err := session.NewStore(session.StoreTypeMemory)
	require.NoError(t, err)
	o := New(Deps{
		Provider: p,
		Threads:  repo,
		Sessions: store,
		Clock:    newFakeClock(),
	}, opts)
	return o, store
}

func readAll(t *testing.T, rs *ReplyStream) string {
	t.Helper()
	defer rs.Body.Close()
	b, err := io.ReadAll(rs.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHandleMessage_NewUserGetsThread(t *testing.T) {
	p := &fakeProvider{
		statuses: []string{llm.StatusInProgress, llm.StatusCompleted},
		messages: []llm.Message{assistantMessage(text("Olá! Como posso ajudar?"))},
	}
	repo := newFakeRepo()
	o, store := newTestOrchestrator(t, p, repo, Options{AssistantID: "asst_1"})

	rs, err := o.HandleMessage(context.Background(), Request{UserID: "u1", Message: "Olá"})
	require.NoError(t, err)
	assert.Equal(t, "Olá! Como posso ajudar?", readAll(t, rs))
	assert.False(t, rs.Fallback)
	assert.Equal(t, "thread_1", repo.threads["u1"])
	assert.Equal(t, []string{"Olá"}, p.posts)

	data, err := store.Get(context.Background(), "thread_1")
	require.NoError(t, err)
	require.NotNil(t, data)
	require.Len(t, data.History, 2)
	assert.Equal(t, "run_1", data.LastRunID)
}

func TestHandleMessage_ReusesThread(t *testing.T) {
	p := &fakeProvider{
		statuses: []string{llm.StatusCompleted},
		messages: []llm.Message{assistantMessage(text("ok"))},
	}
	repo := newFakeRepo()
	o, _ := newTestOrchestrator(t, p, repo, Options{})

	for i := 0; i < 3; i++ {
		rs, err := o.HandleMessage(context.Background(), Request{UserID: "u1", Message: "oi"})
		require.NoError(t, err)
		assert.Equal(t, "thread_1", rs.ThreadID)
	}
	assert.Equal(t, 1, p.threadsCreated)
	assert.Equal(t, 1, repo.saves)
}

func TestHandleMessage_TimeoutFallbackIncludesPriorTurns(t *testing.T) {
	p := &fakeProvider{
		statuses:   []string{llm.StatusInProgress},
		completion: "Nossos pacotes começam em R$ 2.000.",
	}
	o, _ := newTestOrchestrator(t, p, newFakeRepo(), Options{PollTimeout: 3 * time.Second, PollInterval: time.Second})

	rs, err := o.HandleMessage(context.Background(), Request{
		UserID:     "u1",
		Message:    "Quanto custa?",
		PriorTurns: []string{"Vocês fazem casamentos?", "Olá", "Bom dia", "Primeira"},
	})
	require.NoError(t, err)
	assert.True(t, rs.Fallback)
	assert.Equal(t, "Nossos pacotes começam em R$ 2.000.", readAll(t, rs))
	assert.Equal(t, 3, p.statusCalls)

	require.Len(t, p.completions, 1)
	call := p.completions[0]
	require.Len(t, call.messages, 2)
	assert.Equal(t, assistant.RoleSystem, call.messages[0].Role)
	assert.Equal(t, "Quanto custa? Vocês fazem casamentos? Olá Bom dia", call.messages[1].Content)
}

func TestHandleMessage_FallbackUsesSessionHistory(t *testing.T) {
	p := &fakeProvider{
		statuses:   []string{llm.StatusCompleted},
		messages:   []llm.Message{assistantMessage(text("primeira resposta"))},
		completion: "fallback",
	}
	o, _ := newTestOrchestrator(t, p, newFakeRepo(), Options{})

	_, err := o.HandleMessage(context.Background(), Request{UserID: "u1", Message: "Vocês filmam eventos?"})
	require.NoError(t, err)

	p.statuses = []string{llm.StatusFailed}
	p.statusCalls = 0
	rs, err := o.HandleMessage(context.Background(), Request{UserID: "u1", Message: "E em São Paulo?"})
	require.NoError(t, err)
	assert.True(t, rs.Fallback)
	require.Len(t, p.completions, 1)
	assert.Equal(t, "E em São Paulo? Vocês filmam eventos?", p.completions[0].messages[1].Content)
}

func TestHandleMessage_KnowledgeEnrichesFallbackPrompt(t *testing.T) {
	p := &fakeProvider{statuses: []string{llm.StatusExpired}, completion: "ok"}
	o := New(Deps{
		Provider:  p,
		Knowledge: fakeKnowledge{block: "- Atendemos todo o Brasil."},
		Clock:     newFakeClock(),
	}, Options{Persona: "Persona."})

	_, err := o.HandleMessage(context.Background(), Request{Message: "Vocês viajam?"})
	require.NoError(t, err)
	require.Len(t, p.completions, 1)
	assert.Equal(t, "Persona.\n\nInformações de referência:\n- Atendemos todo o Brasil.", p.completions[0].messages[0].Content)
}

func TestHandleMessage_SimpleModelSkipsThreads(t *testing.T) {
	p := &fakeProvider{streamText: "Olá, tudo bem?"}
	o, _ := newTestOrchestrator(t, p, newFakeRepo(), Options{})

	rs, err := o.HandleMessage(context.Background(), Request{UserID: "u1", Message: "oi", UseSimpleModel: true})
	require.NoError(t, err)
	assert.Equal(t, "Olá, tudo bem?", readAll(t, rs))
	assert.Equal(t, 1, p.streams)
	assert.Equal(t, 0, p.threadsCreated)
	assert.Empty(t, p.posts)
	assert.Equal(t, 0, p.runsStarted)
}

func TestHandleMessage_RejectsEmptyMessage(t *testing.T) {
	p := &fakeProvider{}
	o, _ := newTestOrchestrator(t, p, newFakeRepo(), Options{})

	_, err := o.HandleMessage(context.Background(), Request{UserID: "u1", Message: "  "})
	var ve *assistant.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 0, p.upstreamCalls())
}

func TestHandleMessage_ThreadCreationFailure(t *testing.T) {
	p := &fakeProvider{threadErr: errors.New("unauthorized")}
	o, _ := newTestOrchestrator(t, p, newFakeRepo(), Options{})

	_, err := o.HandleMessage(context.Background(), Request{UserID: "u1", Message: "oi"})
	assert.ErrorIs(t, err, assistant.ErrThreadCreationFailed)
}

func TestHandleMessage_PostFailureFallsBack(t *testing.T) {
	p := &fakeProvider{postErr: errors.New("bad request"), completion: "fallback"}
	o, _ := newTestOrchestrator(t, p, newFakeRepo(), Options{})

	rs, err := o.HandleMessage(context.Background(), Request{UserID: "u1", Message: "oi"})
	require.NoError(t, err)
	assert.True(t, rs.Fallback)
	assert.Equal(t, 0, p.runsStarted)
}

func TestStart_ReturnsRunIdentifiers(t *testing.T) {
	p := &fakeProvider{}
	o, store := newTestOrchestrator(t, p, newFakeRepo(), Options{})

	res, err := o.Start(context.Background(), Request{UserID: "u1", Message: "Olá"})
	require.NoError(t, err)
	assert.Equal(t, &StartResult{ThreadID: "thread_1", RunID: "run_1"}, res)
	assert.Equal(t, 0, p.statusCalls)

	data, err := store.Get(context.Background(), "thread_1")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "run_1", data.LastRunID)
}

func TestStart_PostFailure(t *testing.T) {
	p := &fakeProvider{postErr: errors.New("bad gateway")}
	o, _ := newTestOrchestrator(t, p, newFakeRepo(), Options{})

	_, err := o.Start(context.Background(), Request{UserID: "u1", Message: "Olá"})
	assert.ErrorIs(t, err, assistant.ErrUpstreamUnavailable)
	assert.Equal(t, 0, p.runsStarted)
}

func TestStatus_BacksOffAfterRateLimit(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(ratelimit.Options{Now: func() time.Time { return now }})
	p := &fakeProvider{
		statuses:   []string{"", llm.StatusInProgress},
		statusErrs: []error{rateLimited(), nil},
	}
	o := New(Deps{Provider: p, Limiter: limiter}, Options{})

	_, err := o.Status(context.Background(), "thread_1", "run_1")
	assert.ErrorIs(t, err, assistant.ErrUpstreamTransient)

	_, err = o.Status(context.Background(), "thread_1", "run_1")
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, time.Second, rl.RetryAfter)
	assert.Equal(t, 1, p.statusCalls)

	now = now.Add(time.Second)
	status, err := o.Status(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	assert.Equal(t, llm.StatusInProgress, status.Status)
	assert.Zero(t, limiter.Backoff(KeyRunStatus))
}

func TestStatus_RequiresIDs(t *testing.T) {
	o := New(Deps{Provider: &fakeProvider{}}, Options{})

	_, err := o.Status(context.Background(), "", "run_1")
	var ve *assistant.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "threadId", ve.Field)
}

func TestResult_Completed(t *testing.T) {
	p := &fakeProvider{
		statuses: []string{llm.StatusCompleted},
		messages: []llm.Message{assistantMessage(text("Pronto!"))},
	}
	o, _ := newTestOrchestrator(t, p, nil, Options{})

	reply, err := o.Result(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	assert.Equal(t, &Reply{Text: "Pronto!", ThreadID: "thread_1", RunID: "run_1"}, reply)
}

func TestResult_FailedRunFallsBackOnSessionTurn(t *testing.T) {
	p := &fakeProvider{completion: "fallback"}
	o, _ := newTestOrchestrator(t, p, newFakeRepo(), Options{})

	res, err := o.Start(context.Background(), Request{UserID: "u1", Message: "Quais serviços?"})
	require.NoError(t, err)

	p.statuses = []string{llm.StatusFailed}
	reply, err := o.Result(context.Background(), res.ThreadID, res.RunID)
	require.NoError(t, err)
	assert.True(t, reply.Fallback)
	require.Len(t, p.completions, 1)
	assert.Equal(t, "Quais serviços?", p.completions[0].messages[1].Content)
	assert.Equal(t, 0, p.listCalls)
}

func TestResult_FallbackReadsThreadWithoutSession(t *testing.T) {
	p := &fakeProvider{
		statuses: []string{llm.StatusCompleted},
		messages: []llm.Message{
			{Role: "user", Content: []llm.ContentPart{text("Vocês fazem drone?")}},
		},
		completion: "Sim, fazemos.",
	}
	o := New(Deps{Provider: p}, Options{})

	reply, err := o.Result(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	assert.True(t, reply.Fallback)
	assert.Equal(t, "Vocês fazem drone?", p.completions[0].messages[1].Content)
}

func TestResult_BlankReplyFallsBack(t *testing.T) {
	p := &fakeProvider{
		statuses: []string{llm.StatusCompleted},
		messages: []llm.Message{
			assistantMessage(text(" \n ")),
			{Role: "user", Content: []llm.ContentPart{text("Qual o prazo?")}},
		},
		completion: "Em média 15 dias.",
	}
	o := New(Deps{Provider: p}, Options{})

	reply, err := o.Result(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	assert.True(t, reply.Fallback)
	assert.Equal(t, "Em média 15 dias.", reply.Text)
	require.Len(t, p.completions, 1)
	assert.Equal(t, "Qual o prazo?", p.completions[0].messages[1].Content)
}

func TestResult_PendingRun(t *testing.T) {
	p := &fakeProvider{statuses: []string{llm.StatusInProgress}}
	o := New(Deps{Provider: p}, Options{})

	_, err := o.Result(context.Background(), "thread_1", "run_1")
	var pending *RunPendingError
	require.ErrorAs(t, err, &pending)
	assert.Equal(t, llm.StatusInProgress, pending.Status)
	assert.Empty(t, p.completions)
}

func TestThreadStore_LookupFailureCreatesThread(t *testing.T) {
	p := &fakeProvider{}
	repo := newFakeRepo()
	repo.getErr = errors.New("db down")
	s := NewThreadStore(p, repo, nil, nil)

	id, err := s.ResolveThread(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "thread_1", id)
	assert.Equal(t, 1, repo.saves)
}

func TestThreadStore_SaveFailureIsIgnored(t *testing.T) {
	p := &fakeProvider{}
	repo := newFakeRepo()
	repo.saveErr = errors.New("db down")
	s := NewThreadStore(p, repo, nil, nil)

	id, err := s.ResolveThread(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "thread_1", id)

	id, err = s.ResolveThread(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "thread_2", id)
}

func TestThreadStore_AnonymousUserIsNotPersisted(t *testing.T) {
	p := &fakeProvider{}
	repo := newFakeRepo()
	s := NewThreadStore(p, repo, nil, nil)

	_, err := s.ResolveThread(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, repo.saves)
}

func TestReplyStream_SimpleModelStreamsTokens(t *testing.T) {
	p := &fakeProvider{streamText: strings.Repeat("a", 10)}
	o := New(Deps{Provider: p}, Options{SimpleModel: "gpt-4o"})

	rs, err := o.HandleMessage(context.Background(), Request{Message: "oi", UseSimpleModel: true})
	require.NoError(t, err)
	assert.Len(t, readAll(t, rs), 10)
	assert.False(t, rs.Fallback)
}

func TestResult_WithoutRunID(t *testing.T) {
	p := &fakeProvider{messages: []llm.Message{assistantMessage(text("Pronto!"))}}
	o := New(Deps{Provider: p}, Options{})

	reply, err := o.Result(context.Background(), "thread_1", "")
	require.NoError(t, err)
	assert.Equal(t, "Pronto!", reply.Text)
	assert.Equal(t, 0, p.statusCalls)

	_, err = o.Result(context.Background(), "", "")
	var ve *assistant.ValidationError
	require.ErrorAs(t, err, &ve)
}
