package rpc

import (
	"context"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ashureev/interview-coach/internal/evaluation"
)

// Submitter accepts scoring requests on the scorer side.
type Submitter interface {
	Submit(ctx context.Context, req evaluation.Request) error
}

// Receiver accepts scores on the interview server side.
type Receiver interface {
	Receive(ctx context.Context, resp evaluation.Response) error
}

// RegisterEvaluator exposes s as coach.v1.Evaluator on srv.
func RegisterEvaluator(srv grpc.ServiceRegistrar, s Submitter, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	srv.RegisterService(&evaluatorServiceDesc, &evaluatorServer{impl: s, logger: logger})
}

// RegisterSink exposes r as coach.v1.EvaluationSink on srv.
func RegisterSink(srv grpc.ServiceRegistrar, r Receiver, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{impl: r, logger: logger}
	srv.RegisterService(&sinkServiceDesc, s)
	return s
}

type evaluatorHandler interface {
	submit(ctx context.Context, req *evaluation.Request) (*Ack, error)
}

type sinkHandler interface {
	deliver(ctx context.Context, resp *evaluation.Response) (*Ack, error)
}

type evaluatorServer struct {
	impl   Submitter
	logger *slog.Logger
}

func (s *evaluatorServer) submit(ctx context.Context, req *evaluation.Request) (*Ack, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.impl.Submit(ctx, *req); err != nil {
		s.logger.Warn("submit rejected", "request_id", req.RequestID, "error", err)
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	}
	return &Ack{Accepted: true, RequestID: req.RequestID}, nil
}

// Sink is the coach.v1.EvaluationSink service. A valid delivery is
// acknowledged at once and handed to the Receiver on its own goroutine,
// detached from the caller's deadline.
type Sink struct {
	impl   Receiver
	logger *slog.Logger
	wg     sync.WaitGroup
}

func (s *Sink) deliver(ctx context.Context, resp *evaluation.Response) (*Ack, error) {
	if err := resp.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	r := *resp
	logger := s.logger.With("request_id", r.RequestID, "user_id", r.UserIdentity)
	if hdr := requestIDFromContext(ctx); hdr != "" && hdr != r.RequestID {
		logger.Warn("request id header does not match payload", "header", hdr)
	}

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.impl.Receive(bg, r); err != nil {
			logger.Error("delivery failed", "error", err)
		}
	}()
	return &Ack{Accepted: true, RequestID: r.RequestID}, nil
}

// Wait blocks until every acknowledged delivery has been processed.
func (s *Sink) Wait() {
	s.wg.Wait()
}

func requestIDFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(RequestIDHeader); len(v) > 0 {
		return v[0]
	}
	return ""
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, msg any) (any, error) {
		var req evaluation.Request
		if err := fromStruct(msg.(*structpb.Struct), &req); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		ack, err := srv.(evaluatorHandler).submit(ctx, &req)
		if err != nil {
			return nil, err
		}
		return toStruct(ack)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: SubmitMethod}, call)
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, msg any) (any, error) {
		var resp evaluation.Response
		if err := fromStruct(msg.(*structpb.Struct), &resp); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		ack, err := srv.(sinkHandler).deliver(ctx, &resp)
		if err != nil {
			return nil, err
		}
		return toStruct(ack)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: DeliverMethod}, call)
}

var evaluatorServiceDesc = grpc.ServiceDesc{
	ServiceName: evaluatorService,
	HandlerType: (*evaluatorHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coach/v1/evaluator",
}

var sinkServiceDesc = grpc.ServiceDesc{
	ServiceName: sinkService,
	HandlerType: (*sinkHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coach/v1/evaluator",
}
