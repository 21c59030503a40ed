package chat

import "sync"

// Stream carries completion increments from one turn to an output sink.
// It is finite and single use: Tokens is closed when the turn ends. After
// Stop, further increments are dropped without blocking the producer.
type Stream struct {
	tokens chan string
	stop   chan struct{}

	stopOnce sync.Once
	mu       sync.Mutex
	closed   bool
}

func NewStream(buffer int) *Stream {
	return &Stream{
		tokens: make(chan string, buffer),
		stop:   make(chan struct{}),
	}
}

func (s *Stream) Tokens() <-chan string {
	return s.tokens
}

// Stop ends consumption. It does not cancel the upstream call.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Stream) Stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Stream) send(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || token == "" {
		return
	}
	select {
	case s.tokens <- token:
	case <-s.stop:
	}
}

func (s *Stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.tokens)
	}
}
