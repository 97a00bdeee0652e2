package interview

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/interview-coach/internal/evaluation"
	"github.com/ashureev/interview-coach/internal/store"
)

const (
	defaultSweepInterval = time.Second
	pruneEvery           = 5 * time.Minute
)

// Deadlines tracks finished sessions still waiting on scores.
type Deadlines struct {
	mu      sync.Mutex
	pending map[string]deadline
}

type deadline struct {
	at        time.Time
	recipient string
}

// NewDeadlines returns an empty deadline table.
func NewDeadlines() *Deadlines {
	return &Deadlines{pending: make(map[string]deadline)}
}

// Arm sets the report deadline for key. Re-arming keeps the earlier time.
func (d *Deadlines) Arm(key, recipient string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.pending[key]; ok && cur.at.Before(at) {
		return
	}
	d.pending[key] = deadline{at: at, recipient: recipient}
}

// Disarm forgets the deadline for key.
func (d *Deadlines) Disarm(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, key)
}

// Len returns the number of armed deadlines.
func (d *Deadlines) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

type expired struct {
	key       string
	recipient string
	at        time.Time
}

// due removes and returns every deadline at or before now, oldest first.
func (d *Deadlines) due(now time.Time) []expired {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []expired
	for key, dl := range d.pending {
		if !dl.at.After(now) {
			out = append(out, expired{key: key, recipient: dl.recipient, at: dl.at})
			delete(d.pending, key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

// Run drives report deadlines and, when the store can list keys and a
// session TTL is configured, prunes idle session state. It blocks until
// ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lister, _ := e.kv.(store.Lister)
	lastPrune := e.now()
	e.logger.Info("interview worker started",
		"interval", interval,
		"report_deadline", e.cfg.ReportDeadline,
		"session_ttl", e.cfg.SessionTTL)

	for {
		select {
		case <-ticker.C:
			for _, x := range e.deadlines.due(e.now()) {
				e.expire(ctx, x.key, x.recipient)
			}
			if lister != nil && e.cfg.SessionTTL > 0 && e.now().Sub(lastPrune) >= pruneEvery {
				lastPrune = e.now()
				e.prune(ctx, lister)
			}
		case <-ctx.Done():
			e.logger.Info("interview worker shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

// StatePrefixes are the key prefixes of state owned by a session. They are
// pruned together.
var StatePrefixes = []string{
	"session:",
	"history:",
	evaluation.PendingKey(""),
	evaluation.IdentityKey(""),
}

// PruneState deletes session state not updated within ttl. It keeps going
// past a failing prefix and returns the first error.
func PruneState(ctx context.Context, lister store.Lister, ttl time.Duration) (int64, error) {
	var (
		total    int64
		firstErr error
	)
	for _, prefix := range StatePrefixes {
		n, err := lister.Prune(ctx, prefix, ttl)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("prune %q: %w", prefix, err)
			}
			continue
		}
		total += n
	}
	return total, firstErr
}

func (e *Engine) prune(ctx context.Context, lister store.Lister) {
	total, err := PruneState(ctx, lister, e.cfg.SessionTTL)
	if err != nil {
		e.logger.Error("prune failed", "error", err)
	}
	if total > 0 {
		e.logger.Info("pruned idle session state", "keys", total, "ttl", e.cfg.SessionTTL)
	}
}
