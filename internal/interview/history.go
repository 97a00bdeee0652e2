package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/interview-coach/internal/domain"
	"github.com/ashureev/interview-coach/internal/store"
)

// HistoryEntry is one scored answer in a user's history.
type HistoryEntry struct {
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	Clarity     int       `json:"clarity"`
	Specificity int       `json:"specificity"`
	Confidence  int       `json:"confidence"`
	Overall     float64   `json:"overall_score"`
	Timestamp   time.Time `json:"timestamp"`
}

// History is the per-user record of selections and scores.
type History struct {
	Role      domain.Role    `json:"role,omitempty"`
	Persona   domain.Persona `json:"persona,omitempty"`
	Entries   []HistoryEntry `json:"interview_history,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HistoryStore persists History by user key. Get on an unknown key returns
// the zero History.
type HistoryStore interface {
	Get(ctx context.Context, key string) (History, error)
	Set(ctx context.Context, key string, h History) error
	Reset(ctx context.Context, key string) error
}

// MemoryHistory is a process-local HistoryStore.
type MemoryHistory struct {
	mu   sync.RWMutex
	data map[string]History
}

// NewMemoryHistory returns an empty MemoryHistory.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{data: make(map[string]History)}
}

// Get returns the history for key.
func (m *MemoryHistory) Get(_ context.Context, key string) (History, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.data[key]
	h.Entries = append([]HistoryEntry(nil), h.Entries...)
	return h, nil
}

// Set replaces the history for key.
func (m *MemoryHistory) Set(_ context.Context, key string, h History) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.Entries = append([]HistoryEntry(nil), h.Entries...)
	m.data[key] = h
	return nil
}

// Reset clears the history for key.
func (m *MemoryHistory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// KVHistory stores History as JSON under "history:<key>".
type KVHistory struct {
	kv store.KV
}

// NewKVHistory returns a HistoryStore backed by kv.
func NewKVHistory(kv store.KV) *KVHistory {
	return &KVHistory{kv: kv}
}

// HistoryKey is the storage key for a user's history.
func HistoryKey(key string) string { return "history:" + key }

// Get loads the history for key.
func (h *KVHistory) Get(ctx context.Context, key string) (History, error) {
	var out History
	if _, err := store.GetJSON(ctx, h.kv, HistoryKey(key), &out); err != nil {
		return History{}, fmt.Errorf("load history: %w", err)
	}
	return out, nil
}

// Set stores the history for key.
func (h *KVHistory) Set(ctx context.Context, key string, hist History) error {
	if err := store.SetJSON(ctx, h.kv, HistoryKey(key), hist); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Reset deletes the history for key.
func (h *KVHistory) Reset(ctx context.Context, key string) error {
	if err := h.kv.Delete(ctx, HistoryKey(key)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("reset history: %w", err)
	}
	return nil
}

// updateHistory applies fn to the stored history for key.
func updateHistory(ctx context.Context, hs HistoryStore, key string, now time.Time, fn func(*History)) error {
	h, err := hs.Get(ctx, key)
	if err != nil {
		return err
	}
	fn(&h)
	h.UpdatedAt = now
	return hs.Set(ctx, key, h)
}
