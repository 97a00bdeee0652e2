package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/interview-coach/internal/api"
	"github.com/ashureev/interview-coach/internal/identity"
	"github.com/ashureev/interview-coach/internal/interview"
	"github.com/ashureev/interview-coach/internal/metrics"
)

const defaultMaxRequestBodySize = 64 << 10

// MessageHandler consumes inbound messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg interview.Message)
}

// HandlerConfig tunes the chat endpoints.
type HandlerConfig struct {
	MaxRequestBodySize int64
	AllowedOrigins     []string
	PingInterval       time.Duration
}

// Handler serves the chat endpoints.
type Handler struct {
	engine     MessageHandler
	outbox     *Outbox
	limiter    *Limiter
	transcript *Transcript
	cfg        HandlerConfig
	logger     *slog.Logger
	work       *serial
}

// NewHandler wires the chat endpoints. limiter and transcript may be nil.
func NewHandler(engine MessageHandler, outbox *Outbox, limiter *Limiter, transcript *Transcript, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:     engine,
		outbox:     outbox,
		limiter:    limiter,
		transcript: transcript,
		cfg:        cfg,
		logger:     logger,
		work:       newSerial(),
	}
}

// Wait blocks until every accepted HTTP envelope has been processed.
func (h *Handler) Wait() {
	h.work.Wait()
}

// RegisterRoutes mounts the chat endpoints. Routes expect identity.Middleware
// upstream.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.HandleWebSocket)
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.HandleChat)
		r.Get("/outbox", h.HandleOutbox)
	})
}

type chatResponse struct {
	Ack      Ack        `json:"ack"`
	Messages []Outgoing `json:"messages"`
}

type outboxResponse struct {
	Messages []Outgoing `json:"messages"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// HandleChat acknowledges a single envelope and processes it in the
// background. The response carries the ack and whatever was already queued
// for the sender; replies to this envelope are fetched from /api/outbox.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	sender := identity.SenderFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	if !h.limiter.Allow(sender) {
		metrics.ChatRequests.WithLabelValues("http", "rate_limited").Inc()
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		metrics.ChatRequests.WithLabelValues("http", "invalid").Inc()
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.accept(&env, sender, sessionID, "chat_http", chiMiddleware.GetReqID(r.Context()))
	if err != nil {
		metrics.ChatRequests.WithLabelValues("http", "invalid").Inc()
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	bg := context.WithoutCancel(r.Context())
	h.work.Go(msg.Sender, func() { h.engine.HandleMessage(bg, msg) })
	metrics.ChatRequests.WithLabelValues("http", "accepted").Inc()

	api.JSON(w, http.StatusOK, chatResponse{
		Ack:      NewAck(msg.ID),
		Messages: nonNil(h.outbox.Drain(msg.Sender)),
	})
}

// HandleOutbox drains queued messages for the caller.
func (h *Handler) HandleOutbox(w http.ResponseWriter, r *http.Request) {
	sender := identity.SenderFromContext(r.Context())
	api.JSON(w, http.StatusOK, outboxResponse{Messages: nonNil(h.outbox.Drain(sender))})
}

// HandleWebSocket upgrades the connection and exchanges envelopes until
// either side closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sender := identity.SenderFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	logger := h.logger.With("user_id", sender, "session_id", sessionID)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.AllowedOrigins,
	})
	if err != nil {
		logger.Error("failed to accept websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			logger.Debug("failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(h.cfg.MaxRequestBodySize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := h.outbox.Subscribe(sender)
	defer unsubscribe()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		h.writeLoop(ctx, ws, updates, logger)
	}()

	logger.Info("chat websocket connected")
	h.readLoop(ctx, ws, sender, sessionID, logger)
	cancel()
	<-writerDone
	logger.Info("chat websocket closed")
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, sender, sessionID string, logger *slog.Logger) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				logger.Debug("websocket closed by peer")
			} else {
				logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			metrics.ChatRequests.WithLabelValues("ws", "invalid").Inc()
			h.wsWrite(ctx, ws, errorMessage{Type: "error", Error: "invalid envelope"}, logger)
			continue
		}

		if !h.limiter.Allow(sender) {
			metrics.ChatRequests.WithLabelValues("ws", "rate_limited").Inc()
			h.wsWrite(ctx, ws, errorMessage{Type: "error", Error: "rate limit exceeded"}, logger)
			continue
		}

		msg, err := h.accept(&env, sender, sessionID, "chat_ws", "")
		if err != nil {
			metrics.ChatRequests.WithLabelValues("ws", "invalid").Inc()
			h.wsWrite(ctx, ws, errorMessage{Type: "error", Error: err.Error()}, logger)
			continue
		}

		h.wsWrite(ctx, ws, NewAck(msg.ID), logger)
		metrics.ChatRequests.WithLabelValues("ws", "accepted").Inc()
		// The turn outlives the socket if the peer goes away mid-answer.
		h.engine.HandleMessage(context.WithoutCancel(ctx), msg)
	}
}

func (h *Handler) writeLoop(ctx context.Context, ws *websocket.Conn, updates <-chan Outgoing, logger *slog.Logger) {
	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-updates:
			if !h.wsWrite(ctx, ws, m, logger) {
				return
			}
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}

func (h *Handler) wsWrite(ctx context.Context, ws *websocket.Conn, v any, logger *slog.Logger) bool {
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, ws, v); err != nil {
		if ctx.Err() == nil {
			logger.Debug("websocket write error", "error", err)
		}
		return false
	}
	return true
}

// accept validates env, records it in the transcript and converts it.
func (h *Handler) accept(env *Envelope, sender, sessionID, channel, requestID string) (interview.Message, error) {
	if err := env.Validate(); err != nil {
		return interview.Message{}, err
	}
	msg, err := env.ToMessage(sender, sessionID)
	if err != nil {
		return interview.Message{}, err
	}

	for _, it := range env.Content {
		meta := map[string]any{"msg_id": msg.ID}
		if requestID != "" {
			meta["request_id"] = requestID
		}
		h.transcript.Log(TranscriptEvent{
			UserID:     msg.Sender,
			SessionKey: msg.SessionKey(),
			Channel:    channel,
			Direction:  "inbound",
			EventType:  it.Type,
			ContentRaw: it.Text,
			Meta:       meta,
		})
	}
	h.logger.Debug("chat envelope accepted",
		"user_id", msg.Sender,
		"msg_id", msg.ID,
		"session_key", msg.SessionKey(),
		"items", len(msg.Items))
	return msg, nil
}

func nonNil(ms []Outgoing) []Outgoing {
	if ms == nil {
		return []Outgoing{}
	}
	return ms
}
