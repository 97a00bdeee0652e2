package chat

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultQueueSize     = 100
	subscriberBufferSize = 32
)

// Outbox routes outgoing messages to live subscribers, queueing them per
// sender while nobody is connected. Each sender has its own bounded queue
// so one user's burst cannot evict another user's messages.
type Outbox struct {
	mu      sync.Mutex
	queues  map[string]*list.List
	subs    map[string]map[int64]chan Outgoing
	maxSize int
	eventID int64
	subID   int64
	onSend  func(Outgoing)
	logger  *slog.Logger
}

// NewOutbox returns an outbox that keeps up to maxSize queued messages per
// sender. onSend, when set, observes every message.
func NewOutbox(maxSize int, onSend func(Outgoing), logger *slog.Logger) *Outbox {
	if maxSize <= 0 {
		maxSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{
		queues:  make(map[string]*list.List),
		subs:    make(map[string]map[int64]chan Outgoing),
		maxSize: maxSize,
		onSend:  onSend,
		logger:  logger,
	}
}

// Send implements interview.Outbound.
func (o *Outbox) Send(_ context.Context, to, text string) error {
	o.mu.Lock()
	o.eventID++
	msg := Outgoing{
		Type:      "message",
		MsgID:     uuid.NewString(),
		EventID:   o.eventID,
		To:        to,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}

	delivered := false
	for id, ch := range o.subs[to] {
		select {
		case ch <- msg:
			delivered = true
		default:
			o.logger.Warn("outbox subscriber is full, dropping live copy", "user_id", to, "sub_id", id)
		}
	}
	if !delivered {
		o.enqueueLocked(msg)
	}
	o.mu.Unlock()

	if o.onSend != nil {
		o.onSend(msg)
	}
	return nil
}

func (o *Outbox) enqueueLocked(msg Outgoing) {
	l, ok := o.queues[msg.To]
	if !ok {
		l = list.New()
		o.queues[msg.To] = l
	}
	l.PushBack(msg)
	for l.Len() > o.maxSize {
		l.Remove(l.Front())
	}
}

// Drain removes and returns every queued message for sender, oldest first.
func (o *Outbox) Drain(sender string) []Outgoing {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.drainLocked(sender)
}

func (o *Outbox) drainLocked(sender string) []Outgoing {
	l, ok := o.queues[sender]
	if !ok {
		return nil
	}
	out := make([]Outgoing, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Outgoing))
	}
	delete(o.queues, sender)
	return out
}

// Subscribe registers a live receiver for sender. Queued messages are
// replayed first. The returned cancel must be called when the receiver
// goes away.
func (o *Outbox) Subscribe(sender string) (<-chan Outgoing, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	missed := o.drainLocked(sender)
	size := subscriberBufferSize
	if len(missed) > size {
		size = len(missed)
	}
	ch := make(chan Outgoing, size)
	for _, m := range missed {
		ch <- m
	}

	o.subID++
	id := o.subID
	if _, ok := o.subs[sender]; !ok {
		o.subs[sender] = make(map[int64]chan Outgoing)
	}
	o.subs[sender][id] = ch
	o.logger.Info("outbox subscriber registered", "user_id", sender, "sub_id", id, "replayed", len(missed))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if subs, ok := o.subs[sender]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(o.subs, sender)
				}
			}
			o.logger.Info("outbox subscriber unregistered", "user_id", sender, "sub_id", id)
		})
	}
}

// Queued returns the number of queued messages for sender.
func (o *Outbox) Queued(sender string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if l, ok := o.queues[sender]; ok {
		return l.Len()
	}
	return 0
}
