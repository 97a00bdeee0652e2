package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/interview-coach/internal/domain"
	"github.com/ashureev/interview-coach/internal/evaluation"
	"github.com/ashureev/interview-coach/internal/knowledge"
	"github.com/ashureev/interview-coach/internal/question"
	"github.com/ashureev/interview-coach/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const reportHeader = "Interview complete – here's your detailed report"

type sent struct {
	to   string
	text string
}

type recorder struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (r *recorder) Send(_ context.Context, to, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{to: to, text: text})
	return r.err
}

func (r *recorder) texts(to string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		if m.to == to {
			out = append(out, m.text)
		}
	}
	return out
}

func (r *recorder) last(to string) string {
	ts := r.texts(to)
	if len(ts) == 0 {
		return ""
	}
	return ts[len(ts)-1]
}

func (r *recorder) count(to, substr string) int {
	n := 0
	for _, t := range r.texts(to) {
		if strings.Contains(t, substr) {
			n++
		}
	}
	return n
}

type scripted struct {
	mu    sync.Mutex
	turns []question.NextInput
	panic bool
	// hook runs inside NextQuestion, with the session lock held.
	hook func(ctx context.Context, in question.NextInput)
}

func (s *scripted) OpeningQuestion(context.Context, domain.Role, domain.Persona, []string) string {
	return "Q1"
}

func (s *scripted) NextQuestion(ctx context.Context, in question.NextInput) string {
	s.mu.Lock()
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(ctx, in)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panic {
		panic("generator exploded")
	}
	s.turns = append(s.turns, in)
	return fmt.Sprintf("Q%d", in.Turn)
}

type harness struct {
	engine *Engine
	kv     store.KV
	out    *recorder
	lb     *evaluation.Loopback
	qs     *scripted
}

func newHarness(t *testing.T, cfg Config, transport evaluation.Transport) *harness {
	t.Helper()
	return newHarnessOn(t, store.NewMemory(), cfg, transport)
}

func newHarnessOn(t *testing.T, kv store.KV, cfg Config, transport evaluation.Transport) *harness {
	t.Helper()
	reasoner, err := knowledge.NewDefault()
	require.NoError(t, err)

	h := &harness{kv: kv, out: &recorder{}, qs: &scripted{}}
	if lb, ok := transport.(*evaluation.Loopback); ok {
		h.lb = lb
	}
	if cfg.QuestionsPerSession == 0 {
		cfg.QuestionsPerSession = 3
	}
	e, err := NewEngine(cfg, Deps{
		Store:      kv,
		Reasoner:   reasoner,
		Questions:  h.qs,
		Dispatcher: evaluation.NewDispatcher(kv, transport, time.Second, nil),
		History:    NewKVHistory(kv),
		Out:        h.out,
	})
	require.NoError(t, err)
	h.engine = e
	return h
}

func say(sender, text string) Message {
	return Message{ID: "m", Sender: sender, Items: []Content{Text{Text: text}}}
}

func (h *harness) say(t *testing.T, sender, text string) {
	t.Helper()
	h.engine.HandleMessage(context.Background(), say(sender, text))
}

func (h *harness) session(t *testing.T, sender string) domain.Session {
	t.Helper()
	s, err := h.engine.Load(context.Background(), domain.SenderSessionKey(sender))
	require.NoError(t, err)
	return s
}

func scoreOf(req evaluation.Request, clarity int) evaluation.Response {
	return evaluation.Response{
		RequestID:      req.RequestID,
		Question:       req.Question,
		Answer:         req.Answer,
		Persona:        req.Persona,
		Role:           req.Role,
		UserIdentity:   req.UserIdentity,
		Clarity:        clarity,
		Specificity:    3,
		Confidence:     4,
		Feedback:       "ok",
		ImprovedAnswer: "better",
	}
}

func TestSessionStartSendsWelcome(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil)

	h.engine.HandleMessage(context.Background(), Message{Sender: "agent1", Items: []Content{SessionStart{}}})

	assert.Contains(t, h.out.last("agent1"), "Choose an interviewer avatar")
	assert.Equal(t, domain.Session{}, h.session(t, "agent1"))
}

func TestSessionStartMidInterviewIsIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil)

	h.say(t, "agent1", "HR")
	before := len(h.out.texts("agent1"))
	h.engine.HandleMessage(context.Background(), Message{Sender: "agent1", Items: []Content{SessionStart{}}})

	assert.Len(t, h.out.texts("agent1"), before)
	assert.Equal(t, domain.PersonaHR, h.session(t, "agent1").Persona)
}

func TestGreetingAndNoiseShowMenu(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil)

	h.say(t, "agent1", "hello there")
	assert.Contains(t, h.out.last("agent1"), "Hi! I'm your AI interview coach.")
	assert.Contains(t, h.out.last("agent1"), "Type your choice")

	h.say(t, "agent1", "banana")
	assert.Contains(t, h.out.last("agent1"), "Please choose an interviewer avatar")

	s := h.session(t, "agent1")
	assert.Equal(t, domain.RoleJuniorDataAnalyst, s.Role)
	assert.Empty(t, s.Persona)
}

func TestPersonaSelectionAsksFirstQuestion(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil)

	h.say(t, "agent1", "hello")
	h.say(t, "agent1", "  hr ")

	texts := h.out.texts("agent1")
	require.Len(t, texts, 3)
	assert.Contains(t, texts[1], "You selected HR.")
	assert.Contains(t, texts[1], "We'll do 3 questions")
	assert.Equal(t, "Q1", texts[2])

	s := h.session(t, "agent1")
	assert.Equal(t, domain.PersonaHR, s.Persona)
	assert.Equal(t, []string{"Q1"}, s.Questions)
	assert.Equal(t, 0, s.QuestionIndex)

	hist, err := h.engine.History(context.Background(), "agent1")
	require.NoError(t, err)
	assert.Equal(t, domain.PersonaHR, hist.Persona)
	assert.Equal(t, domain.RoleJuniorDataAnalyst, hist.Role)
}

func TestFullInterviewReleasesOneReport(t *testing.T) {
	t.Parallel()
	lb := &evaluation.Loopback{}
	h := newHarness(t, Config{}, lb)
	ctx := context.Background()

	h.say(t, "agent1", "Junior Developer")
	h.say(t, "agent1", "I cleaned data with SQL")
	require.Equal(t, "Q2", h.out.last("agent1"))
	h.say(t, "agent1", "I built a dashboard in Tableau")
	require.Equal(t, "Q3", h.out.last("agent1"))
	h.say(t, "agent1", "I presented results to stakeholders")
	assert.Equal(t, completeText, h.out.last("agent1"))

	s := h.session(t, "agent1")
	assert.True(t, s.Finished)
	assert.Equal(t, 3, s.QuestionIndex)
	assert.Len(t, s.Outstanding, 3)
	assert.Zero(t, h.out.count("agent1", reportHeader))

	reqs := lb.Submitted()
	require.Len(t, reqs, 3)
	assert.Equal(t, "Q1", reqs[0].Question)
	assert.Equal(t, "I cleaned data with SQL", reqs[0].Answer)
	assert.Equal(t, "Junior Developer", reqs[0].Persona)

	// Out-of-order arrival.
	require.NoError(t, h.engine.Receive(ctx, scoreOf(reqs[2], 5)))
	require.NoError(t, h.engine.Receive(ctx, scoreOf(reqs[0], 3)))
	assert.Zero(t, h.out.count("agent1", reportHeader))
	require.NoError(t, h.engine.Receive(ctx, scoreOf(reqs[1], 4)))

	require.Equal(t, 1, h.out.count("agent1", reportHeader))
	final := h.out.last("agent1")
	assert.Equal(t, 3, strings.Count(final, "Your answer:"))
	assert.Contains(t, final, "Questions answered: 3")
	assert.Contains(t, final, "Clarity: 4.0 / 5")

	// Duplicate deliveries are stale and never produce a second report.
	require.NoError(t, h.engine.Receive(ctx, scoreOf(reqs[1], 4)))
	assert.Equal(t, 1, h.out.count("agent1", reportHeader))
	assert.Len(t, h.session(t, "agent1").Evaluations, 3)

	h.say(t, "agent1", "one more thing")
	assert.Equal(t, finishedText, h.out.last("agent1"))

	hist, err := h.engine.History(ctx, "agent1")
	require.NoError(t, err)
	assert.Len(t, hist.Entries, 3)
}

func TestNextQuestionGetsReasoningContext(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil)

	h.say(t, "agent1", "Senior Developer")
	h.say(t, "agent1", "I write python and sql every day")

	require.Len(t, h.qs.turns, 1)
	in := h.qs.turns[0]
	assert.Equal(t, 2, in.Turn)
	assert.Equal(t, []domain.QA{{Question: "Q1", Answer: "I write python and sql every day"}}, in.History)
	assert.NotEmpty(t, in.FocusSkills)
	assert.LessOrEqual(t, len(in.RecommendedTopics), 3)
	assert.NotContains(t, in.MissingSkills, "sql")
}

func TestNoTransportFinishesWithoutScores(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{QuestionsPerSession: 1}, nil)

	h.say(t, "agent1", "HR")
	h.say(t, "agent1", "I like people")

	texts := h.out.texts("agent1")
	require.GreaterOrEqual(t, len(texts), 2)
	assert.Equal(t, completeText, texts[len(texts)-2])
	assert.Equal(t, "Interview complete. No evaluations available.", texts[len(texts)-1])
	assert.True(t, h.session(t, "agent1").ReportSent)
}

func TestDispatchFailureDoesNotBlockInterview(t *testing.T) {
	t.Parallel()
	lb := &evaluation.Loopback{Err: errors.New("scorer down")}
	h := newHarness(t, Config{}, lb)

	h.say(t, "agent1", "HR")
	h.say(t, "agent1", "answer one")

	assert.Equal(t, "Q2", h.out.last("agent1"))
	s := h.session(t, "agent1")
	assert.Empty(t, s.Outstanding)
	assert.Equal(t, 1, s.QuestionIndex)
}

func TestEmptyAnswerNudges(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil)

	h.say(t, "agent1", "HR")
	h.say(t, "agent1", "   ")

	assert.Equal(t, nudgeText, h.out.last("agent1"))
	assert.Equal(t, 0, h.session(t, "agent1").QuestionIndex)
}

func TestHelpWorksInEveryState(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil)

	h.say(t, "agent1", "HELP")
	assert.Equal(t, helpText, h.out.last("agent1"))
	h.say(t, "agent1", "HR")
	h.say(t, "agent1", "help")
	assert.Equal(t, helpText, h.out.last("agent1"))
	assert.Equal(t, 0, h.session(t, "agent1").QuestionIndex)
}

func TestRestartReturnsToDefault(t *testing.T) {
	t.Parallel()
	lb := &evaluation.Loopback{}
	h := newHarness(t, Config{}, lb)
	ctx := context.Background()

	h.say(t, "agent1", "HR")
	h.say(t, "agent1", "first answer")
	h.say(t, "agent1", "Restart")

	assert.Contains(t, h.out.last("agent1"), "Interview restarted.")
	assert.Equal(t, domain.Session{}, h.session(t, "agent1"))

	hist, err := h.engine.History(ctx, "agent1")
	require.NoError(t, err)
	assert.Empty(t, hist.Entries)
	assert.Empty(t, hist.Persona)

	// A score for the abandoned interview must not leak into the new one.
	reqs := lb.Submitted()
	require.Len(t, reqs, 1)
	before := len(h.out.texts("agent1"))
	require.NoError(t, h.engine.Receive(ctx, scoreOf(reqs[0], 4)))
	assert.Empty(t, h.session(t, "agent1").Evaluations)
	assert.Len(t, h.out.texts("agent1"), before)
}

func TestStopBeforePersona(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil)

	h.say(t, "agent1", "stop")
	assert.Equal(t, stoppedText, h.out.last("agent1"))
	assert.True(t, h.session(t, "agent1").Finished)

	h.say(t, "agent1", "anything")
	assert.Equal(t, finishedText, h.out.last("agent1"))
}

func TestStopWithScoresSendsPartialReport(t *testing.T) {
	t.Parallel()
	lb := &evaluation.Loopback{}
	h := newHarness(t, Config{QuestionsPerSession: 5}, lb)
	ctx := context.Background()

	h.say(t, "agent1", "HR")
	h.say(t, "agent1", "answer one")
	require.NoError(t, h.engine.Receive(ctx, scoreOf(lb.Submitted()[0], 4)))
	h.say(t, "agent1", "stop")

	final := h.out.last("agent1")
	assert.Contains(t, final, reportHeader)
	assert.Equal(t, 1, strings.Count(final, "Your answer:"))
	s := h.session(t, "agent1")
	assert.True(t, s.Finished)
	assert.True(t, s.ReportSent)
}

func TestResponseWithoutRequestIDTakesOldest(t *testing.T) {
	t.Parallel()
	lb := &evaluation.Loopback{}
	h := newHarness(t, Config{QuestionsPerSession: 1}, lb)
	ctx := context.Background()

	h.say(t, "agent1", "HR")
	h.say(t, "agent1", "only answer")

	resp := scoreOf(lb.Submitted()[0], 2)
	resp.RequestID = ""
	require.NoError(t, h.engine.Receive(ctx, resp))
	assert.Equal(t, 1, h.out.count("agent1", reportHeader))

	// Nothing outstanding any more.
	require.NoError(t, h.engine.Receive(ctx, resp))
	assert.Equal(t, 1, h.out.count("agent1", reportHeader))
}

func TestSessionIDMetadataSeparatesSessions(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	withSID := func(sid, text string) Message {
		return Message{Sender: "agent1", Items: []Content{
			Metadata{Values: map[string]string{domain.SessionIDMetadataKey: sid}},
			Text{Text: text},
		}}
	}
	h.engine.HandleMessage(ctx, withSID("a", "HR"))
	h.engine.HandleMessage(ctx, withSID("b", "Senior Developer"))

	a, err := h.engine.Load(ctx, domain.SessionKey("a", "agent1"))
	require.NoError(t, err)
	b, err := h.engine.Load(ctx, domain.SessionKey("b", "agent1"))
	require.NoError(t, err)
	assert.Equal(t, domain.PersonaHR, a.Persona)
	assert.Equal(t, domain.PersonaSeniorDeveloper, b.Persona)
}

func TestPanicBecomesApology(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil)

	h.say(t, "agent1", "HR")
	h.qs.panic = true
	h.say(t, "agent1", "answer")

	assert.Equal(t, apologyText, h.out.last("agent1"))
	assert.Zero(t, h.engine.locks.Len())
}

func TestConcurrentScoresProduceOneReport(t *testing.T) {
	t.Parallel()
	const n = 8
	lb := &evaluation.Loopback{}
	h := newHarness(t, Config{QuestionsPerSession: n}, lb)
	ctx := context.Background()

	h.say(t, "agent1", "HR")
	for i := 0; i < n; i++ {
		h.say(t, "agent1", fmt.Sprintf("answer %d", i))
	}
	reqs := lb.Submitted()
	require.Len(t, reqs, n)

	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func(req evaluation.Request) {
			defer wg.Done()
			assert.NoError(t, h.engine.Receive(ctx, scoreOf(req, 3)))
		}(req)
	}
	wg.Wait()

	assert.Equal(t, 1, h.out.count("agent1", reportHeader))
	s := h.session(t, "agent1")
	assert.Len(t, s.Evaluations, n)
	assert.Empty(t, s.Outstanding)
	assert.LessOrEqual(t, s.QuestionIndex, n)
}

func TestLoopbackScoringEndToEnd(t *testing.T) {
	t.Parallel()
	var h *harness
	lb := &evaluation.Loopback{
		Score: func(_ context.Context, req evaluation.Request) evaluation.Response { return scoreOf(req, 5) },
		Deliver: func(ctx context.Context, resp evaluation.Response) {
			assert.NoError(t, h.engine.Receive(ctx, resp))
		},
	}
	h = newHarness(t, Config{QuestionsPerSession: 2}, lb)

	h.say(t, "agent1", "Corporate Executive")
	h.say(t, "agent1", "answer one")
	h.say(t, "agent1", "answer two")
	lb.Wait()

	assert.Equal(t, 1, h.out.count("agent1", reportHeader))
	assert.True(t, h.session(t, "agent1").ReportSent)
}

func TestDeadlineReleasesPartialReport(t *testing.T) {
	t.Parallel()
	lb := &evaluation.Loopback{}
	h := newHarness(t, Config{
		QuestionsPerSession: 2,
		ReportDeadline:      20 * time.Millisecond,
		SweepInterval:       5 * time.Millisecond,
	}, lb)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	h.say(t, "agent1", "HR")
	h.say(t, "agent1", "answer one")
	h.say(t, "agent1", "answer two")
	require.NoError(t, h.engine.Receive(context.Background(), scoreOf(lb.Submitted()[0], 4)))

	require.Eventually(t, func() bool {
		return h.out.count("agent1", reportHeader) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, strings.Count(h.out.last("agent1"), "Your answer:"))
	assert.Zero(t, h.engine.deadlines.Len())

	// The late score is merged but no second report goes out.
	require.NoError(t, h.engine.Receive(context.Background(), scoreOf(lb.Submitted()[1], 4)))
	assert.Equal(t, 1, h.out.count("agent1", reportHeader))
}

func TestSendFailureIsLogged(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil)
	h.out.err = errors.New("offline")

	h.say(t, "agent1", "HR")
	assert.Equal(t, domain.PersonaHR, h.session(t, "agent1").Persona)
}

func TestNewEngineRequiresDeps(t *testing.T) {
	t.Parallel()
	_, err := NewEngine(Config{}, Deps{})
	assert.Error(t, err)
}
