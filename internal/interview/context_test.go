package interview

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/interview-coach/internal/domain"
	"github.com/ashureev/interview-coach/internal/evaluation"
	"github.com/ashureev/interview-coach/internal/question"
	"github.com/ashureev/interview-coach/internal/store"
)

// The sqlite store honours context cancellation on every call, so these
// tests fail if a cancelled caller context reaches it.
func newSQLiteHarness(t *testing.T, cfg Config, transport evaluation.Transport) *harness {
	t.Helper()
	kv, err := store.NewSQLite(filepath.Join(t.TempDir(), "coach.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return newHarnessOn(t, kv, cfg, transport)
}

func (h *harness) onNextQuestion(fn func(ctx context.Context, in question.NextInput)) {
	h.qs.mu.Lock()
	h.qs.hook = fn
	h.qs.mu.Unlock()
}

func withSessionID(sender, sid, text string) Message {
	return Message{Sender: sender, Items: []Content{
		Metadata{Values: map[string]string{domain.SessionIDMetadataKey: sid}},
		Text{Text: text},
	}}
}

func TestScoreQueuedBehindTurnOutlivesDeliveryDeadline(t *testing.T) {
	t.Parallel()
	lb := &evaluation.Loopback{}
	h := newSQLiteHarness(t, Config{QuestionsPerSession: 3}, lb)

	h.say(t, "agent1", "HR")
	h.say(t, "agent1", "answer one")
	first := lb.Submitted()[0]

	entered := make(chan struct{})
	release := make(chan struct{})
	h.onNextQuestion(func(context.Context, question.NextInput) {
		close(entered)
		<-release
	})
	turn := make(chan struct{})
	go func() {
		defer close(turn)
		h.say(t, "agent1", "answer two")
	}()
	<-entered

	// The delivery deadline passes while the turn still holds the session.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	delivered := make(chan error, 1)
	go func() { delivered <- h.engine.Receive(ctx, scoreOf(first, 4)) }()
	<-ctx.Done()
	close(release)
	<-turn
	require.NoError(t, <-delivered)
	h.onNextQuestion(nil)

	s := h.session(t, "agent1")
	require.Len(t, s.Evaluations, 1)
	assert.Equal(t, "answer one", s.Evaluations[0].Answer)
	assert.NotContains(t, s.Outstanding, first.RequestID)
	assert.Len(t, s.Outstanding, 1)
	assert.Equal(t, 2, s.QuestionIndex)

	_, err := h.kv.Get(context.Background(), evaluation.PendingKey(first.RequestID))
	assert.ErrorIs(t, err, store.ErrNotFound)
	second := lb.Submitted()[1]
	_, err = h.kv.Get(context.Background(), evaluation.PendingKey(second.RequestID))
	assert.NoError(t, err)
}

func TestCancelledTurnKeepsAnswersAlignedWithQuestions(t *testing.T) {
	t.Parallel()
	h := newSQLiteHarness(t, Config{QuestionsPerSession: 4}, nil)
	h.say(t, "agent1", "Senior Developer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.onNextQuestion(func(c context.Context, _ question.NextInput) {
		cancel()
		assert.NoError(t, c.Err())
	})
	h.engine.HandleMessage(ctx, say("agent1", "answer one"))
	h.onNextQuestion(nil)

	s := h.session(t, "agent1")
	assert.Equal(t, 1, s.QuestionIndex)
	assert.Equal(t, []string{"answer one"}, s.Answers)
	assert.Equal(t, []string{"Q1", "Q2"}, s.Questions)
	assert.Equal(t, "Q2", h.out.last("agent1"))

	h.say(t, "agent1", "answer two")
	h.say(t, "agent1", "answer three")

	s = h.session(t, "agent1")
	require.Len(t, s.ConversationHistory, 3)
	assert.LessOrEqual(t, len(s.Answers), len(s.Questions))
	for i, qa := range s.ConversationHistory {
		assert.Equal(t, s.Questions[i], qa.Question)
		assert.Equal(t, s.Answers[i], qa.Answer)
	}
}

func TestExpiredContextsStillCompleteInterview(t *testing.T) {
	t.Parallel()
	lb := &evaluation.Loopback{}
	h := newSQLiteHarness(t, Config{QuestionsPerSession: 1}, lb)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	h.engine.HandleMessage(cancelled, say("agent1", "HR"))
	assert.Equal(t, domain.PersonaHR, h.session(t, "agent1").Persona)

	h.engine.HandleMessage(cancelled, say("agent1", "only answer"))
	reqs := lb.Submitted()
	require.Len(t, reqs, 1)

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	require.NoError(t, h.engine.Receive(expired, scoreOf(reqs[0], 5)))

	s := h.session(t, "agent1")
	assert.True(t, s.ReportSent)
	assert.Empty(t, s.Outstanding)
	assert.Equal(t, 1, h.out.count("agent1", reportHeader))
}

func TestConcurrentSessionsOfOneSenderKeepAllHistory(t *testing.T) {
	t.Parallel()
	const sessions = 6
	lb := &evaluation.Loopback{}
	h := newSQLiteHarness(t, Config{QuestionsPerSession: 1}, lb)
	ctx := context.Background()

	for i := 0; i < sessions; i++ {
		sid := fmt.Sprintf("s%d", i)
		h.engine.HandleMessage(ctx, withSessionID("agent1", sid, "HR"))
		h.engine.HandleMessage(ctx, withSessionID("agent1", sid, fmt.Sprintf("answer %d", i)))
	}
	reqs := lb.Submitted()
	require.Len(t, reqs, sessions)

	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func(req evaluation.Request) {
			defer wg.Done()
			assert.NoError(t, h.engine.Receive(ctx, scoreOf(req, 3)))
		}(req)
	}
	wg.Wait()

	hist, err := h.engine.History(ctx, "agent1")
	require.NoError(t, err)
	require.Len(t, hist.Entries, sessions)
	seen := make(map[string]bool)
	for _, e := range hist.Entries {
		seen[e.Answer] = true
	}
	for i := 0; i < sessions; i++ {
		assert.True(t, seen[fmt.Sprintf("answer %d", i)], "answer %d missing from history", i)
	}
	assert.Zero(t, h.engine.locks.Len())
}
