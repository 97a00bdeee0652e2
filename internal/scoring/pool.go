package scoring

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashureev/interview-coach/internal/evaluation"
)

// ErrQueueFull is returned by Submit when the backlog is at capacity.
var ErrQueueFull = errors.New("scoring queue is full")

// ErrStopped is returned by Submit after the pool has stopped.
var ErrStopped = errors.New("scoring pool stopped")

// Deliverer returns scores to the interview server.
type Deliverer interface {
	Deliver(ctx context.Context, resp evaluation.Response) error
}

// PoolConfig sizes a Pool.
type PoolConfig struct {
	Workers        int
	QueueSize      int
	DeliverTimeout time.Duration
	DeliverRetries int
}

// Pool scores requests on a fixed set of workers so Submit returns at once.
type Pool struct {
	scorer  *Scorer
	sink    Deliverer
	cfg     PoolConfig
	queue   chan evaluation.Request
	done    chan struct{}
	logger  *slog.Logger
	backoff time.Duration
}

// NewPool builds a Pool. Run must be called to start the workers.
func NewPool(scorer *Scorer, sink Deliverer, cfg PoolConfig, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 5 * time.Second
	}
	if cfg.DeliverRetries <= 0 {
		cfg.DeliverRetries = 3
	}
	return &Pool{
		scorer:  scorer,
		sink:    sink,
		cfg:     cfg,
		queue:   make(chan evaluation.Request, cfg.QueueSize),
		done:    make(chan struct{}),
		logger:  logger,
		backoff: 200 * time.Millisecond,
	}
}

// Submit enqueues req without blocking.
func (p *Pool) Submit(_ context.Context, req evaluation.Request) error {
	select {
	case <-p.done:
		return ErrStopped
	default:
	}
	select {
	case p.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run processes the queue until ctx is cancelled. Queued requests that were
// not started are dropped.
func (p *Pool) Run(ctx context.Context) error {
	defer close(p.done)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case req := <-p.queue:
					p.handle(ctx, req)
				}
			}
		})
	}
	return g.Wait()
}

func (p *Pool) handle(ctx context.Context, req evaluation.Request) {
	start := time.Now()
	resp := p.scorer.Score(ctx, req)
	p.logger.Info("answer scored",
		"request_id", req.RequestID,
		"user_id", req.UserIdentity,
		"overall", resp.Overall,
		"clarity", resp.Clarity,
		"specificity", resp.Specificity,
		"confidence", resp.Confidence,
		"duration", time.Since(start))

	var err error
	for attempt := 0; attempt < p.cfg.DeliverRetries; attempt++ {
		dctx, cancel := context.WithTimeout(ctx, p.cfg.DeliverTimeout)
		err = p.sink.Deliver(dctx, resp)
		cancel()
		if err == nil {
			return
		}
		if attempt == p.cfg.DeliverRetries-1 {
			break
		}
		delay := p.backoff * time.Duration(1<<attempt)
		p.logger.Warn("score delivery failed",
			"request_id", req.RequestID,
			"attempt", attempt+1,
			"error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	p.logger.Error("dropping score after retries", "request_id", req.RequestID, "error", err)
}
