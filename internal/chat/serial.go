package chat

import "sync"

// serial runs submitted work in the background, one job at a time per key,
// in submission order.
type serial struct {
	mu   sync.Mutex
	tail map[string]chan struct{}
	wg   sync.WaitGroup
}

func newSerial() *serial {
	return &serial{tail: make(map[string]chan struct{})}
}

// Go queues fn behind every job already queued for key.
func (s *serial) Go(key string, fn func()) {
	done := make(chan struct{})
	s.mu.Lock()
	prev := s.tail[key]
	s.tail[key] = done
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			close(done)
			s.mu.Lock()
			if s.tail[key] == done {
				delete(s.tail, key)
			}
			s.mu.Unlock()
		}()
		if prev != nil {
			<-prev
		}
		fn()
	}()
}

// Wait blocks until every queued job has finished.
func (s *serial) Wait() {
	s.wg.Wait()
}

func (s *serial) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tail)
}
