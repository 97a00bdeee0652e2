package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/interview-coach/internal/domain"
	"github.com/ashureev/interview-coach/internal/metrics"
	"github.com/ashureev/interview-coach/internal/store"
)

// ErrDisabled is returned by Dispatch when no scorer transport is configured.
var ErrDisabled = errors.New("evaluation dispatch disabled")

// Transport delivers scoring requests to the scorer.
type Transport interface {
	Submit(ctx context.Context, req Request) error
}

const (
	pendingPrefix  = "eval_pending:"
	identityPrefix = "eval_session:"
)

// PendingKey is the store key of a per-request correlation.
func PendingKey(requestID string) string { return pendingPrefix + requestID }

// IdentityKey is the store key of the single-slot identity correlation.
func IdentityKey(userIdentity string) string { return identityPrefix + userIdentity }

// Pending is the correlation written before a request is sent.
type Pending struct {
	SessionKey   string    `json:"session_key"`
	UserIdentity string    `json:"user_identity"`
	CreatedAt    time.Time `json:"created_at"`
}

// DispatchInput describes one answer to score.
type DispatchInput struct {
	UserIdentity string
	SessionKey   string
	Question     string
	Answer       string
	Persona      domain.Persona
	Role         domain.Role
}

// Path names how a response was correlated.
type Path string

// Correlation paths, most specific first.
const (
	PathRequestID Path = "request_id"
	PathIdentity  Path = "identity"
	PathDefault   Path = "default"
)

// Resolution is the outcome of correlating a response.
type Resolution struct {
	SessionKey   string
	UserIdentity string
	Path         Path
}

// Dispatcher owns the correlation records and the send path.
type Dispatcher struct {
	kv        store.KV
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger
	newID     func() string
}

// NewDispatcher builds a Dispatcher. A nil transport disables dispatch.
func NewDispatcher(kv store.KV, transport Transport, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		kv:        kv,
		transport: transport,
		timeout:   timeout,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// Dispatch records the correlation and sends the request. It returns the
// request id on success. On failure the per-request correlation is removed
// and the error is returned for the caller to log and ignore.
func (d *Dispatcher) Dispatch(ctx context.Context, in DispatchInput) (string, error) {
	if d.transport == nil {
		metrics.Dispatches.WithLabelValues("disabled").Inc()
		return "", ErrDisabled
	}

	id := d.newID()
	pending := Pending{SessionKey: in.SessionKey, UserIdentity: in.UserIdentity, CreatedAt: time.Now().UTC()}
	if err := store.SetJSON(ctx, d.kv, PendingKey(id), pending); err != nil {
		metrics.Dispatches.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("record pending evaluation: %w", err)
	}
	if err := store.SetJSON(ctx, d.kv, IdentityKey(in.UserIdentity), in.SessionKey); err != nil {
		d.logger.Warn("failed to record identity correlation",
			"user_id", in.UserIdentity,
			"session_key", in.SessionKey,
			"error", err)
	}

	req := Request{
		RequestID:    id,
		Question:     in.Question,
		Answer:       in.Answer,
		Persona:      string(in.Persona),
		Role:         string(in.Role),
		UserIdentity: in.UserIdentity,
	}
	if err := req.Validate(); err != nil {
		d.rollback(ctx, id)
		metrics.Dispatches.WithLabelValues("failed").Inc()
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.transport.Submit(sendCtx, req); err != nil {
		d.rollback(ctx, id)
		metrics.Dispatches.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("submit evaluation %s: %w", id, err)
	}

	metrics.Dispatches.WithLabelValues("sent").Inc()
	d.logger.Debug("evaluation dispatched",
		"request_id", id,
		"user_id", in.UserIdentity,
		"session_key", in.SessionKey)
	return id, nil
}

func (d *Dispatcher) rollback(ctx context.Context, id string) {
	if err := d.kv.Delete(ctx, PendingKey(id)); err != nil {
		d.logger.Warn("failed to roll back pending evaluation", "request_id", id, "error", err)
	}
}

// Resolve maps a response to its session key. The per-request record is
// tried first, then the identity slot, then the sender's default key.
// Resolve does not consume the record; call Settle once the score is stored.
func (d *Dispatcher) Resolve(ctx context.Context, resp Response) Resolution {
	if resp.RequestID != "" {
		var p Pending
		found, err := store.GetJSON(ctx, d.kv, PendingKey(resp.RequestID), &p)
		if err != nil {
			d.logger.Warn("failed to read pending evaluation", "request_id", resp.RequestID, "error", err)
		}
		if found && p.SessionKey != "" {
			metrics.Correlations.WithLabelValues(string(PathRequestID)).Inc()
			identity := p.UserIdentity
			if identity == "" {
				identity = resp.UserIdentity
			}
			return Resolution{SessionKey: p.SessionKey, UserIdentity: identity, Path: PathRequestID}
		}
	}

	var key string
	found, err := store.GetJSON(ctx, d.kv, IdentityKey(resp.UserIdentity), &key)
	if err != nil {
		d.logger.Warn("failed to read identity correlation", "user_id", resp.UserIdentity, "error", err)
	}
	if found && key != "" {
		metrics.Correlations.WithLabelValues(string(PathIdentity)).Inc()
		return Resolution{SessionKey: key, UserIdentity: resp.UserIdentity, Path: PathIdentity}
	}

	key = domain.SenderSessionKey(resp.UserIdentity)
	d.logger.Warn("no correlation for evaluation response, using default session key",
		"request_id", resp.RequestID,
		"user_id", resp.UserIdentity,
		"session_key", key)
	metrics.Correlations.WithLabelValues(string(PathDefault)).Inc()
	return Resolution{SessionKey: key, UserIdentity: resp.UserIdentity, Path: PathDefault}
}

// Settle drops the per-request correlation of a handled response.
func (d *Dispatcher) Settle(ctx context.Context, requestID string) {
	if requestID == "" {
		return
	}
	if err := d.kv.Delete(ctx, PendingKey(requestID)); err != nil {
		d.logger.Warn("failed to clear pending evaluation", "request_id", requestID, "error", err)
	}
}
