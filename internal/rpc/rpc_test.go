package rpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ashureev/interview-coach/internal/evaluation"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	got  []evaluation.Request
	fail error
}

func (r *recordingSubmitter) Submit(_ context.Context, req evaluation.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.got = append(r.got, req)
	return nil
}

type recordingReceiver struct {
	mu  sync.Mutex
	got []evaluation.Response
}

func (r *recordingReceiver) Receive(_ context.Context, resp evaluation.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, resp)
	return nil
}

func startServer(t *testing.T, register func(*grpc.Server), opts ...grpc.ServerOption) grpc.DialOption {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(opts...)
	register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func TestEvaluatorRoundTrip(t *testing.T) {
	t.Parallel()

	sub := &recordingSubmitter{}
	dialer := startServer(t, func(s *grpc.Server) { RegisterEvaluator(s, sub, nil) })

	client, err := NewEvaluatorClient(DefaultClientConfig("passthrough:///bufnet"), nil, dialer)
	if err != nil {
		t.Fatalf("NewEvaluatorClient: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}

	req := evaluation.Request{RequestID: "r1", Question: "q", Answer: "a", Persona: "HR", UserIdentity: "agent1"}
	if err := client.Submit(ctx, req); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.got) != 1 || sub.got[0] != req {
		t.Fatalf("unexpected submissions %+v", sub.got)
	}
}

func TestEvaluatorRejectsInvalidAndBusy(t *testing.T) {
	t.Parallel()

	sub := &recordingSubmitter{}
	dialer := startServer(t, func(s *grpc.Server) { RegisterEvaluator(s, sub, nil) })
	client, err := NewEvaluatorClient(DefaultClientConfig("passthrough:///bufnet"), nil, dialer)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Submit(ctx, evaluation.Request{RequestID: "r1"}); err == nil {
		t.Fatal("expected invalid request to fail")
	}

	sub.mu.Lock()
	sub.fail = errors.New("queue full")
	sub.mu.Unlock()
	if err := client.Submit(ctx, evaluation.Request{RequestID: "r2", Question: "q", Answer: "a", UserIdentity: "u"}); err == nil {
		t.Fatal("expected busy scorer to fail")
	}
}

func TestSinkRoundTrip(t *testing.T) {
	t.Parallel()

	recv := &recordingReceiver{}
	var sink *Sink
	dialer := startServer(t, func(s *grpc.Server) { sink = RegisterSink(s, recv, nil) })
	client, err := NewSinkClient(DefaultClientConfig("passthrough:///bufnet"), nil, dialer)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := evaluation.Response{RequestID: "r1", UserIdentity: "agent1", Clarity: 4, Specificity: 3, Confidence: 5, Overall: 4, Feedback: "good"}
	if err := client.Deliver(ctx, resp); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	sink.Wait()

	recv.mu.Lock()
	defer recv.mu.Unlock()
	if len(recv.got) != 1 || recv.got[0] != resp {
		t.Fatalf("unexpected deliveries %+v", recv.got)
	}
}

func TestDialRequiresAddress(t *testing.T) {
	t.Parallel()

	if _, err := NewEvaluatorClient(ClientConfig{}, nil); err == nil {
		t.Fatal("expected error for empty address")
	}
}

// gatedReceiver blocks every delivery until release is closed and reports
// the context state it saw once unblocked.
type gatedReceiver struct {
	release chan struct{}
	seen    chan error
}

func (g *gatedReceiver) Receive(ctx context.Context, _ evaluation.Response) error {
	<-g.release
	g.seen <- ctx.Err()
	return nil
}

func TestSinkAcksBeforeProcessing(t *testing.T) {
	t.Parallel()

	recv := &gatedReceiver{release: make(chan struct{}), seen: make(chan error, 1)}
	var sink *Sink
	dialer := startServer(t, func(s *grpc.Server) { sink = RegisterSink(s, recv, nil) })
	client, err := NewSinkClient(DefaultClientConfig("passthrough:///bufnet"), nil, dialer)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	resp := evaluation.Response{RequestID: "r1", UserIdentity: "agent1", Clarity: 3, Specificity: 3, Confidence: 3}
	if err := client.Deliver(ctx, resp); err != nil {
		t.Fatalf("Deliver must not wait for processing: %v", err)
	}
	// The caller is gone before the receiver runs.
	cancel()
	close(recv.release)
	sink.Wait()

	if err := <-recv.seen; err != nil {
		t.Fatalf("receiver saw a cancelled context: %v", err)
	}
}

func TestClientSendsRequestIDMetadata(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		ids []string
	)
	capture := grpc.UnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		mu.Lock()
		ids = append(ids, md.Get(RequestIDHeader)...)
		mu.Unlock()
		return handler(ctx, req)
	})

	sub := &recordingSubmitter{}
	dialer := startServer(t, func(s *grpc.Server) { RegisterEvaluator(s, sub, nil) }, capture)
	client, err := NewEvaluatorClient(DefaultClientConfig("passthrough:///bufnet"), nil, dialer)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Submit(ctx, evaluation.Request{RequestID: "r7", Question: "q", Answer: "a", UserIdentity: "u"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ids) != 1 || ids[0] != "r7" {
		t.Fatalf("expected request id header r7, got %v", ids)
	}
}

func TestStructWirePreservesScores(t *testing.T) {
	t.Parallel()

	in := evaluation.Response{RequestID: "r1", UserIdentity: "u", Clarity: 5, Specificity: 1, Confidence: 4, Overall: 3.33, Feedback: "ok"}
	s, err := toStruct(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Fields["overall_score"].GetNumberValue(); got != 3.33 {
		t.Fatalf("unexpected overall field %v", got)
	}
	var out evaluation.Response
	if err := fromStruct(s, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("wire changed the response: %+v", out)
	}
}
