package scoring

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/interview-coach/internal/evaluation"
	"github.com/ashureev/interview-coach/internal/llm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func request() evaluation.Request {
	return evaluation.Request{
		RequestID:    "r1",
		Question:     "Tell me about a dashboard you built.",
		Answer:       "I built one in Tableau.",
		Persona:      "HR",
		Role:         "Junior Data Analyst",
		UserIdentity: "agent1",
	}
}

func replying(reply string, err error) llm.Generator {
	return llm.Func(func(context.Context, llm.Request) (string, error) { return reply, err })
}

func TestScoreParsesReply(t *testing.T) {
	t.Parallel()

	var seen llm.Request
	gen := llm.Func(func(_ context.Context, req llm.Request) (string, error) {
		seen = req
		return "Sure!\n```json\n{\"clarity\": 4, \"specificity\": \"3\", \"confidence\": 5.0, \"feedback\": \"Solid.\", \"improved_answer\": \"Better.\"}\n```", nil
	})
	resp := NewScorer(gen, nil).Score(context.Background(), request())

	assert.Equal(t, 4, resp.Clarity)
	assert.Equal(t, 3, resp.Specificity)
	assert.Equal(t, 5, resp.Confidence)
	assert.Equal(t, 4.0, resp.Overall)
	assert.Equal(t, "Solid.", resp.Feedback)
	assert.Equal(t, "Better.", resp.ImprovedAnswer)
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, "agent1", resp.UserIdentity)
	assert.InDelta(t, 0.3, float64(seen.Temperature), 1e-6)
	assert.Contains(t, seen.Prompt, "Interviewer style: HR")
}

func TestScoreClampsAndDefaults(t *testing.T) {
	t.Parallel()

	resp := NewScorer(replying(`{"clarity": 11, "confidence": -2}`, nil), nil).Score(context.Background(), request())
	assert.Equal(t, 5, resp.Clarity)
	assert.Equal(t, 2, resp.Specificity)
	assert.Equal(t, 1, resp.Confidence)
	assert.Equal(t, 2.67, resp.Overall)
	assert.Equal(t, missingFeedback, resp.Feedback)
	assert.Equal(t, request().Answer, resp.ImprovedAnswer)
}

func TestScoreFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		gen      llm.Generator
		feedback string
	}{
		{name: "transport", gen: replying("", errors.New("timeout")), feedback: TransportFeedback},
		{name: "disabled", gen: nil, feedback: TransportFeedback},
		{name: "not json", gen: replying("I think it was fine.", nil), feedback: ParseFeedback},
		{name: "bad json", gen: replying(`{"clarity": }`, nil), feedback: ParseFeedback},
		{name: "bad score", gen: replying(`{"clarity": "high"}`, nil), feedback: ParseFeedback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewScorer(tt.gen, nil).Score(context.Background(), request())
			assert.Equal(t, 3, resp.Clarity)
			assert.Equal(t, 2, resp.Specificity)
			assert.Equal(t, 3, resp.Confidence)
			assert.Equal(t, 2.67, resp.Overall)
			assert.Equal(t, tt.feedback, resp.Feedback)
			assert.True(t, strings.HasPrefix(resp.ImprovedAnswer, request().Answer))
			assert.True(t, strings.HasSuffix(resp.ImprovedAnswer, "measurable outcomes to improve this answer.)"))
		})
	}
}

type sinkFunc func(context.Context, evaluation.Response) error

func (f sinkFunc) Deliver(ctx context.Context, resp evaluation.Response) error { return f(ctx, resp) }

func TestPoolScoresAndDelivers(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	delivered := make(chan evaluation.Response, 10)
	failures := 1
	sink := sinkFunc(func(_ context.Context, resp evaluation.Response) error {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return errors.New("sink unavailable")
		}
		delivered <- resp
		return nil
	})

	pool := NewPool(NewScorer(replying(`{"clarity":4,"specificity":4,"confidence":4}`, nil), nil), sink, PoolConfig{Workers: 2, QueueSize: 4}, nil)
	pool.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- pool.Run(ctx) }()

	for _, id := range []string{"a", "b", "c"} {
		req := request()
		req.RequestID = id
		require.NoError(t, pool.Submit(context.Background(), req))
	}

	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case resp := <-delivered:
			got[resp.RequestID] = true
			assert.Equal(t, 4.0, resp.Overall)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
	assert.Len(t, got, 3)

	cancel()
	require.NoError(t, <-runErr)
	assert.ErrorIs(t, pool.Submit(context.Background(), request()), ErrStopped)
}

func TestPoolSubmitDoesNotBlockWhenFull(t *testing.T) {
	t.Parallel()

	pool := NewPool(NewScorer(nil, nil), sinkFunc(func(context.Context, evaluation.Response) error { return nil }), PoolConfig{Workers: 1, QueueSize: 1}, nil)
	require.NoError(t, pool.Submit(context.Background(), request()))
	assert.ErrorIs(t, pool.Submit(context.Background(), request()), ErrQueueFull)
}
