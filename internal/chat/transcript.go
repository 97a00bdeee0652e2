package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// TranscriptConfig controls NDJSON transcript logging.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// TranscriptEvent is one line of a transcript file.
type TranscriptEvent struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionKey string         `json:"session_key,omitempty"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Content    string         `json:"content,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Transcript writes events asynchronously to <dir>/<sender>.ndjson.
// A nil *Transcript discards everything.
type Transcript struct {
	dir    string
	events chan TranscriptEvent
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
	files     map[string]*os.File
}

// NewTranscript starts the writer. It returns nil when logging is disabled.
func NewTranscript(cfg TranscriptConfig, logger *slog.Logger) (*Transcript, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("transcript dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transcript{
		dir:    cfg.Dir,
		events: make(chan TranscriptEvent, cfg.QueueSize),
		done:   make(chan struct{}),
		logger: logger,
		files:  make(map[string]*os.File),
	}
	go t.loop()
	return t, nil
}

// Log queues ev. When the queue is full the event is dropped.
func (t *Transcript) Log(ev TranscriptEvent) {
	if t == nil {
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.Content == "" && ev.ContentRaw != "" {
		ev.Content = cleanForReadability(ev.ContentRaw)
	}
	select {
	case t.events <- ev:
	default:
		t.logger.Warn("transcript queue full, dropping event", "user_id", ev.UserID, "event_type", ev.EventType)
	}
}

// Close flushes queued events and closes every file.
func (t *Transcript) Close() error {
	if t == nil {
		return nil
	}
	t.closeOnce.Do(func() { close(t.events) })
	<-t.done
	return nil
}

func (t *Transcript) loop() {
	defer close(t.done)
	for ev := range t.events {
		if err := t.write(ev); err != nil {
			t.logger.Warn("failed to write transcript event", "user_id", ev.UserID, "error", err)
		}
	}
	for path, f := range t.files {
		if err := f.Close(); err != nil {
			t.logger.Debug("failed to close transcript file", "path", path, "error", err)
		}
	}
}

func (t *Transcript) write(ev TranscriptEvent) error {
	path := filepath.Join(t.dir, safeName(ev.UserID)+".ndjson")

	f, ok := t.files[path]
	if !ok {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return err
		}
		t.files[path] = f
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func safeName(s string) string {
	s = unsafeName.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "unknown"
	}
	return s
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// cleanForReadability strips ANSI sequences and control characters.
func cleanForReadability(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// LogOutgoing records a message sent to a user. It matches the Outbox
// onSend hook.
func (t *Transcript) LogOutgoing(m Outgoing) {
	t.Log(TranscriptEvent{
		Timestamp:  m.Timestamp.Format(time.RFC3339Nano),
		UserID:     m.To,
		Channel:    "outbox",
		Direction:  "outbound",
		EventType:  "coach_message",
		ContentRaw: m.Text,
		Meta:       map[string]any{"event_id": m.EventID, "msg_id": m.MsgID},
	})
}
