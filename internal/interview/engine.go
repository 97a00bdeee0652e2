// Package interview runs the per-session interview state machine.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ashureev/interview-coach/internal/domain"
	"github.com/ashureev/interview-coach/internal/evaluation"
	"github.com/ashureev/interview-coach/internal/knowledge"
	"github.com/ashureev/interview-coach/internal/metrics"
	"github.com/ashureev/interview-coach/internal/question"
	"github.com/ashureev/interview-coach/internal/report"
	"github.com/ashureev/interview-coach/internal/store"
)

// Outbound delivers text to a user.
type Outbound interface {
	Send(ctx context.Context, to, text string) error
}

// Questions produces interview questions. Implementations never fail.
type Questions interface {
	OpeningQuestion(ctx context.Context, role domain.Role, persona domain.Persona, focusSkills []string) string
	NextQuestion(ctx context.Context, in question.NextInput) string
}

// Dispatcher sends answers for scoring and correlates the results.
type Dispatcher interface {
	Dispatch(ctx context.Context, in evaluation.DispatchInput) (string, error)
	Resolve(ctx context.Context, resp evaluation.Response) evaluation.Resolution
	Settle(ctx context.Context, requestID string)
}

// Config tunes the engine.
type Config struct {
	QuestionsPerSession int
	ReportDeadline      time.Duration
	TopicLimit          int

	// SweepInterval is how often report deadlines are checked.
	SweepInterval time.Duration
	// SessionTTL prunes session state idle for longer; zero keeps it forever.
	SessionTTL time.Duration
}

// Deps are the engine's collaborators.
type Deps struct {
	Store      store.KV
	Reasoner   *knowledge.Reasoner
	Questions  Questions
	Dispatcher Dispatcher
	History    HistoryStore
	Out        Outbound
	Logger     *slog.Logger
}

// Engine owns session state transitions. All mutations of a session key
// happen under that key's lock.
type Engine struct {
	cfg        Config
	kv         store.KV
	reasoner   *knowledge.Reasoner
	questions  Questions
	dispatcher Dispatcher
	history    HistoryStore
	out        Outbound
	logger     *slog.Logger
	locks      *KeyLocks
	deadlines  *Deadlines
	now        func() time.Time
}

// NewEngine validates deps and builds an Engine.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("interview: store is required")
	case deps.Reasoner == nil:
		return nil, errors.New("interview: reasoner is required")
	case deps.Questions == nil:
		return nil, errors.New("interview: question source is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("interview: dispatcher is required")
	case deps.Out == nil:
		return nil, errors.New("interview: outbound is required")
	}
	if cfg.QuestionsPerSession <= 0 {
		cfg.QuestionsPerSession = 5
	}
	if cfg.ReportDeadline <= 0 {
		cfg.ReportDeadline = 2 * time.Minute
	}
	if cfg.TopicLimit <= 0 {
		cfg.TopicLimit = 3
	}
	if deps.History == nil {
		deps.History = NewMemoryHistory()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		kv:         deps.Store,
		reasoner:   deps.Reasoner,
		questions:  deps.Questions,
		dispatcher: deps.Dispatcher,
		history:    deps.History,
		out:        deps.Out,
		logger:     deps.Logger,
		locks:      NewKeyLocks(),
		deadlines:  NewDeadlines(),
		now:        time.Now,
	}, nil
}

// Load returns the session stored under key, or the default session.
func (e *Engine) Load(ctx context.Context, key string) (domain.Session, error) {
	var s domain.Session
	if _, err := store.GetJSON(ctx, e.kv, key, &s); err != nil {
		return domain.Session{}, fmt.Errorf("load session %s: %w", key, err)
	}
	return s, nil
}

func (e *Engine) save(ctx context.Context, key string, s *domain.Session) error {
	if err := store.SetJSON(ctx, e.kv, key, s); err != nil {
		return fmt.Errorf("save session %s: %w", key, err)
	}
	return nil
}

// HandleMessage processes one inbound envelope. Every path ends with at
// least one message sent to the sender; failures become an apology.
// Cancellation of ctx does not interrupt a turn once it has started.
func (e *Engine) HandleMessage(ctx context.Context, msg Message) {
	ctx = context.WithoutCancel(ctx)
	key := msg.SessionKey()
	logger := e.logger.With("session_key", key, "user_id", msg.Sender, "msg_id", msg.ID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling message", "panic", r, "stack", string(debug.Stack()))
			e.send(ctx, msg.Sender, apologyText)
		}
	}()

	if err := e.handleMessage(ctx, key, msg, logger); err != nil {
		logger.Error("failed to handle message", "error", err)
		e.send(ctx, msg.Sender, apologyText)
	}
}

func (e *Engine) handleMessage(ctx context.Context, key string, msg Message, logger *slog.Logger) error {
	unlock := e.locks.Lock(key)
	defer unlock()

	sess, err := e.Load(ctx, key)
	if err != nil {
		return err
	}

	var text *Text
	var starts, ends int
	for _, item := range msg.Items {
		switch c := item.(type) {
		case Text:
			metrics.MessagesHandled.WithLabelValues("text").Inc()
			if text == nil {
				t := c
				text = &t
			}
		case SessionStart:
			metrics.MessagesHandled.WithLabelValues("start_session").Inc()
			starts++
		case SessionEnd:
			metrics.MessagesHandled.WithLabelValues("end_session").Inc()
			ends++
		case Metadata:
			metrics.MessagesHandled.WithLabelValues("metadata").Inc()
		default:
			logger.Warn("ignoring unknown content item", "type", fmt.Sprintf("%T", item))
		}
	}

	if text != nil {
		if err := e.handleText(ctx, key, msg.Sender, &sess, text.Text, logger); err != nil {
			return err
		}
	} else if starts > 0 {
		if err := e.handleStart(ctx, key, msg.Sender, &sess, logger); err != nil {
			return err
		}
	}
	for i := 0; i < ends; i++ {
		logger.Info("chat session ended")
	}
	return nil
}

func (e *Engine) handleStart(ctx context.Context, key, sender string, sess *domain.Session, logger *slog.Logger) error {
	if !sess.IsPristine() {
		logger.Info("ignoring session start, already mid-session")
		return nil
	}
	*sess = domain.Session{}
	if err := e.save(ctx, key, sess); err != nil {
		return err
	}
	e.resetHistory(ctx, sender, logger)
	e.send(ctx, sender, welcomeText(domain.DefaultRole()))
	return nil
}

func (e *Engine) handleText(ctx context.Context, key, sender string, sess *domain.Session, raw string, logger *slog.Logger) error {
	answer := strings.TrimSpace(raw)
	switch strings.ToLower(answer) {
	case cmdHelp:
		e.send(ctx, sender, helpText)
		return nil
	case cmdStop:
		return e.stop(ctx, key, sender, sess, logger)
	case cmdRestart:
		return e.restart(ctx, key, sender, sess, logger)
	}

	if sess.Finished {
		e.send(ctx, sender, finishedText)
		return nil
	}

	if sess.Role == "" {
		sess.Role = domain.DefaultRole()
		sess.Persona = ""
		sess.ResetInterview()
		e.logHistory(ctx, sender, logger, func(h *History) { h.Role = sess.Role })
		if err := e.save(ctx, key, sess); err != nil {
			return err
		}
		logger.Info("role assigned", "role", sess.Role)
	}

	if sess.Persona == "" {
		return e.selectPersona(ctx, key, sender, sess, answer, logger)
	}

	if answer == "" {
		e.send(ctx, sender, nudgeText)
		return nil
	}
	return e.answer(ctx, key, sender, sess, answer, logger)
}

func (e *Engine) stop(ctx context.Context, key, sender string, sess *domain.Session, logger *slog.Logger) error {
	sess.Finished = true
	var text string
	if len(sess.Evaluations) > 0 {
		text = report.Build(sess)
		if report.Ready(sess) {
			sess.ReportSent = true
		}
	} else {
		text = stoppedText
	}
	if sess.AwaitingScores() && !sess.ReportSent {
		e.deadlines.Arm(key, sender, e.now().Add(e.cfg.ReportDeadline))
	}
	if err := e.save(ctx, key, sess); err != nil {
		return err
	}
	logger.Info("interview stopped", "evaluations", len(sess.Evaluations), "outstanding", len(sess.Outstanding))
	if len(sess.Evaluations) > 0 {
		metrics.ReportsEmitted.WithLabelValues("stop").Inc()
	}
	e.send(ctx, sender, text)
	return nil
}

func (e *Engine) restart(ctx context.Context, key, sender string, sess *domain.Session, logger *slog.Logger) error {
	*sess = domain.Session{}
	e.deadlines.Disarm(key)
	if err := e.save(ctx, key, sess); err != nil {
		return err
	}
	e.resetHistory(ctx, sender, logger)
	logger.Info("interview restarted")
	e.send(ctx, sender, restartText(domain.DefaultRole()))
	return nil
}

func (e *Engine) selectPersona(ctx context.Context, key, sender string, sess *domain.Session, text string, logger *slog.Logger) error {
	persona, ok := domain.NormalizePersona(text)
	if !ok {
		if isGreeting(text) {
			e.send(ctx, sender, greetingMenuText(sess.Role))
		} else {
			e.send(ctx, sender, noiseMenuText())
		}
		return nil
	}

	sess.Persona = persona
	sess.ResetInterview()
	e.logHistory(ctx, sender, logger, func(h *History) { h.Persona = persona })
	e.deadlines.Disarm(key)
	logger.Info("persona selected", "persona", persona)
	e.send(ctx, sender, introText(persona, e.cfg.QuestionsPerSession))

	// The selection and the opening question are stored together.
	first := e.questions.OpeningQuestion(ctx, sess.Role, persona, e.reasoner.FocusSkills(persona))
	sess.Questions = append(sess.Questions, first)
	if err := e.save(ctx, key, sess); err != nil {
		return err
	}
	e.send(ctx, sender, first)
	return nil
}

func (e *Engine) answer(ctx context.Context, key, sender string, sess *domain.Session, answer string, logger *slog.Logger) error {
	current, ok := sess.CurrentQuestion()
	if !ok {
		current = fallbackPrompt
	}
	sess.Answers = append(sess.Answers, answer)
	sess.ConversationHistory = append(sess.ConversationHistory, domain.QA{Question: current, Answer: answer})

	for _, skill := range e.reasoner.DetectSkills(answer) {
		if err := e.reasoner.AddCandidateSkill(sender, skill, answer); err != nil {
			logger.Warn("failed to record skill mention", "skill", skill, "error", err)
		}
	}

	// Nothing is stored until the turn is complete, so a failed turn leaves
	// the answer unrecorded and the question still open.
	id, err := e.dispatcher.Dispatch(ctx, evaluation.DispatchInput{
		UserIdentity: sender,
		SessionKey:   key,
		Question:     current,
		Answer:       answer,
		Persona:      sess.Persona,
		Role:         sess.Role,
	})
	switch {
	case errors.Is(err, evaluation.ErrDisabled):
		logger.Debug("evaluation dispatch disabled, continuing without score")
	case err != nil:
		logger.Warn("evaluation dispatch failed, continuing without score", "error", err)
	default:
		sess.AddOutstanding(id)
	}

	sess.QuestionIndex++
	if sess.QuestionIndex >= e.cfg.QuestionsPerSession {
		return e.finish(ctx, key, sender, sess, logger)
	}

	gaps := e.reasoner.AnalyzeSkillGaps(sender, sess.Role)
	var topics []string
	for _, t := range e.reasoner.TopicsForPersona(sess.Persona, e.cfg.TopicLimit) {
		topics = append(topics, t.Name)
	}
	next := e.questions.NextQuestion(ctx, question.NextInput{
		Role:              sess.Role,
		Persona:           sess.Persona,
		History:           sess.ConversationHistory,
		Turn:              sess.QuestionIndex + 1,
		FocusSkills:       e.reasoner.FocusSkills(sess.Persona),
		RecommendedTopics: topics,
		MissingSkills:     gaps.Missing,
	})
	sess.Questions = append(sess.Questions, next)
	if err := e.save(ctx, key, sess); err != nil {
		return err
	}
	e.send(ctx, sender, next)
	return nil
}

func (e *Engine) finish(ctx context.Context, key, sender string, sess *domain.Session, logger *slog.Logger) error {
	sess.Finished = true

	var final string
	if !sess.AwaitingScores() {
		// Nothing in flight; the report cannot be released by a late score.
		final = report.Build(sess)
		sess.ReportSent = true
	} else {
		e.deadlines.Arm(key, sender, e.now().Add(e.cfg.ReportDeadline))
	}
	if err := e.save(ctx, key, sess); err != nil {
		return err
	}
	logger.Info("interview finished", "answers", len(sess.Answers), "outstanding", len(sess.Outstanding))
	e.send(ctx, sender, completeText)
	if final != "" {
		metrics.ReportsEmitted.WithLabelValues("barrier").Inc()
		e.send(ctx, sender, final)
	}
	return nil
}

// HandleEvaluation merges a score into its session and releases the final
// report once the last outstanding score is in.
// The caller's deadline only bounds delivery, not processing.
func (e *Engine) HandleEvaluation(ctx context.Context, resp evaluation.Response) error {
	ctx = context.WithoutCancel(ctx)
	res := e.dispatcher.Resolve(ctx, resp)
	logger := e.logger.With("session_key", res.SessionKey, "user_id", res.UserIdentity, "request_id", resp.RequestID)

	unlock := e.locks.Lock(res.SessionKey)
	defer unlock()

	sess, err := e.Load(ctx, res.SessionKey)
	if err != nil {
		return err
	}

	var expected bool
	requestID := resp.RequestID
	if requestID != "" {
		expected = sess.TakeOutstanding(requestID)
	} else {
		requestID, expected = sess.TakeOldestOutstanding()
	}
	if !expected {
		metrics.Correlations.WithLabelValues("stale").Inc()
		logger.Info("dropping stale evaluation response", "path", res.Path)
		e.dispatcher.Settle(ctx, resp.RequestID)
		return nil
	}

	rec := resp.Record()
	sess.Evaluations = append(sess.Evaluations, rec)
	e.logHistory(ctx, res.UserIdentity, logger, func(h *History) {
		h.Entries = append(h.Entries, HistoryEntry{
			Question:    rec.Question,
			Answer:      rec.Answer,
			Clarity:     rec.Clarity,
			Specificity: rec.Specificity,
			Confidence:  rec.Confidence,
			Overall:     rec.Overall,
			Timestamp:   e.now().UTC(),
		})
	})

	var final string
	if report.Ready(&sess) {
		final = report.Build(&sess)
		sess.ReportSent = true
		e.deadlines.Disarm(res.SessionKey)
	}
	if err := e.save(ctx, res.SessionKey, &sess); err != nil {
		return err
	}
	e.dispatcher.Settle(ctx, requestID)
	logger.Info("evaluation recorded",
		"overall", rec.Overall,
		"evaluations", len(sess.Evaluations),
		"outstanding", len(sess.Outstanding))

	if final != "" {
		metrics.ReportsEmitted.WithLabelValues("barrier").Inc()
		e.send(ctx, res.UserIdentity, final)
	}
	return nil
}

// Receive implements the sink side of the evaluation transport.
func (e *Engine) Receive(ctx context.Context, resp evaluation.Response) error {
	return e.HandleEvaluation(ctx, resp)
}

// expire emits the best-effort report for a session whose deadline passed.
func (e *Engine) expire(ctx context.Context, key, recipient string) {
	unlock := e.locks.Lock(key)
	defer unlock()

	logger := e.logger.With("session_key", key, "user_id", recipient)
	sess, err := e.Load(ctx, key)
	if err != nil {
		logger.Error("report deadline: failed to load session", "error", err)
		return
	}
	if !sess.Finished || sess.ReportSent {
		return
	}
	text := report.Build(&sess)
	sess.ReportSent = true
	if err := e.save(ctx, key, &sess); err != nil {
		logger.Error("report deadline: failed to save session", "error", err)
		return
	}
	logger.Warn("report deadline passed, sending best-effort report",
		"evaluations", len(sess.Evaluations),
		"outstanding", len(sess.Outstanding))
	metrics.ReportsEmitted.WithLabelValues("deadline").Inc()
	e.send(ctx, recipient, text)
}

// History is keyed by sender and shared by all of a sender's sessions, so it
// has its own lock.
func (e *Engine) logHistory(ctx context.Context, user string, logger *slog.Logger, fn func(*History)) {
	unlock := e.locks.Lock(HistoryKey(user))
	defer unlock()
	if err := updateHistory(ctx, e.history, user, e.now().UTC(), fn); err != nil {
		logger.Warn("failed to update history", "error", err)
	}
}

func (e *Engine) resetHistory(ctx context.Context, user string, logger *slog.Logger) {
	unlock := e.locks.Lock(HistoryKey(user))
	defer unlock()
	if err := e.history.Reset(ctx, user); err != nil {
		logger.Warn("failed to reset history", "error", err)
	}
}

func (e *Engine) send(ctx context.Context, to, text string) {
	if err := e.out.Send(ctx, to, text); err != nil {
		e.logger.Warn("failed to send message", "user_id", to, "error", err)
	}
}

// History returns the recorded history for user.
func (e *Engine) History(ctx context.Context, user string) (History, error) {
	return e.history.Get(ctx, user)
}

func isGreeting(text string) bool {
	lower := strings.ToLower(text)
	for _, g := range greetingWords {
		if strings.Contains(lower, g) {
			return true
		}
	}
	return false
}
