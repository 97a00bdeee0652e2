package evaluation

import (
	"context"
	"sync"
)

// Loopback is an in-process Transport. Each submitted request is scored by
// Score on its own goroutine and the result handed to Deliver.
type Loopback struct {
	Score   func(ctx context.Context, req Request) Response
	Deliver func(ctx context.Context, resp Response)

	// Err, when set, is returned by Submit and nothing is scored.
	Err error

	mu        sync.Mutex
	submitted []Request
	wg        sync.WaitGroup
}

// Submit records req and scores it asynchronously.
func (l *Loopback) Submit(ctx context.Context, req Request) error {
	l.mu.Lock()
	err := l.Err
	if err == nil {
		l.submitted = append(l.submitted, req)
	}
	l.mu.Unlock()
	if err != nil {
		return err
	}
	if l.Score == nil || l.Deliver == nil {
		return nil
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		bg := context.WithoutCancel(ctx)
		l.Deliver(bg, l.Score(bg, req))
	}()
	return nil
}

// Submitted returns every accepted request in order.
func (l *Loopback) Submitted() []Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Request, len(l.submitted))
	copy(out, l.submitted)
	return out
}

// SetErr changes the error returned by Submit.
func (l *Loopback) SetErr(err error) {
	l.mu.Lock()
	l.Err = err
	l.mu.Unlock()
}

// Wait blocks until every in-flight delivery has returned.
func (l *Loopback) Wait() {
	l.wg.Wait()
}
