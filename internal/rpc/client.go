package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ashureev/interview-coach/internal/evaluation"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errRejected                 = errors.New("call was not accepted")
)

// ClientConfig holds connection settings shared by both clients.
type ClientConfig struct {
	Address          string
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultClientConfig returns default keepalive settings for addr.
func DefaultClientConfig(addr string) ClientConfig {
	return ClientConfig{
		Address:          addr,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

type conn struct {
	cc     *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

func dial(cfg ClientConfig, logger *slog.Logger, extra ...grpc.DialOption) (*conn, error) {
	if cfg.Address == "" {
		return nil, errors.New("rpc address is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, extra...)

	// No network I/O happens until the first call or WaitReady.
	cc, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", cfg.Address, err)
	}
	return &conn{cc: cc, addr: cfg.Address, logger: logger}, nil
}

// WaitReady blocks until the connection is ready or ctx ends.
func (c *conn) WaitReady(ctx context.Context) error {
	if err := waitForReady(ctx, c.cc); err != nil {
		return fmt.Errorf("%s not ready: %w", c.addr, err)
	}
	return nil
}

func waitForReady(ctx context.Context, cc *grpc.ClientConn) error {
	for {
		state := cc.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			cc.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !cc.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the connection.
func (c *conn) Close() {
	if c.cc != nil {
		if err := c.cc.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "address", c.addr, "error", err)
		}
	}
}

func (c *conn) unary(ctx context.Context, method string, in any, requestID string) error {
	req, err := toStruct(in)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, RequestIDHeader, requestID)
	}
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, method, req, out); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	var ack Ack
	if err := fromStruct(out, &ack); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if !ack.Accepted {
		return fmt.Errorf("%s %s: %w", method, requestID, errRejected)
	}
	return nil
}

// EvaluatorClient submits scoring requests. It implements
// evaluation.Transport.
type EvaluatorClient struct {
	*conn
}

// NewEvaluatorClient creates a client for the scorer at cfg.Address.
func NewEvaluatorClient(cfg ClientConfig, logger *slog.Logger, extra ...grpc.DialOption) (*EvaluatorClient, error) {
	c, err := dial(cfg, logger, extra...)
	if err != nil {
		return nil, err
	}
	return &EvaluatorClient{conn: c}, nil
}

// Submit sends req. The scorer acknowledges before scoring.
func (c *EvaluatorClient) Submit(ctx context.Context, req evaluation.Request) error {
	return c.unary(ctx, SubmitMethod, &req, req.RequestID)
}

// SinkClient delivers scores back to the interview server.
type SinkClient struct {
	*conn
}

// NewSinkClient creates a client for the sink at cfg.Address.
func NewSinkClient(cfg ClientConfig, logger *slog.Logger, extra ...grpc.DialOption) (*SinkClient, error) {
	c, err := dial(cfg, logger, extra...)
	if err != nil {
		return nil, err
	}
	return &SinkClient{conn: c}, nil
}

// Deliver sends resp.
func (c *SinkClient) Deliver(ctx context.Context, resp evaluation.Response) error {
	return c.unary(ctx, DeliverMethod, &resp, resp.RequestID)
}
