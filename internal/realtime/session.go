package realtime

import (
	"context"
	"sync"

	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

// Subscriber is one consumer of a session. C is closed when the subscriber is
// cancelled or the session is closed.
type Subscriber struct {
	C <-chan string

	out chan string
}

// Session is a multicast, best-effort stream of encoded events. Emission never blocks
// on a slow subscriber: a full buffer drops the event for that subscriber.
type Session struct {
	ID string

	log        *logger.Logger
	bufferSize int

	// emitSlot serializes publishers; holding it is what "serialized emission" means.
	emitSlot chan struct{}

	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
}

func newSession(id string, bufferSize int, log *logger.Logger) *Session {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Session{
		ID:         id,
		log:        log,
		bufferSize: bufferSize,
		emitSlot:   make(chan struct{}, 1),
		subs:       make(map[*Subscriber]struct{}),
	}
}

// Subscribe attaches a new consumer. Subscribing to a closed session yields an
// already-closed subscriber.
func (s *Session) Subscribe() *Subscriber {
	out := make(chan string, s.bufferSize)
	sub := &Subscriber{C: out, out: out}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(out)
		return sub
	}
	s.subs[sub] = struct{}{}
	return sub
}

// Cancel detaches sub and closes its channel. It reports how many subscribers remain.
func (s *Session) Cancel(sub *Subscriber) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		close(sub.out)
	}
	return len(s.subs)
}

func (s *Session) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close terminates the session and every subscriber. Later emissions report
// EmitTerminated.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for sub := range s.subs {
		close(sub.out)
	}
	s.subs = map[*Subscriber]struct{}{}
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// TryEmit delivers msg only if no other publisher is mid-emission.
func (s *Session) TryEmit(msg string) EmitResult {
	select {
	case s.emitSlot <- struct{}{}:
	default:
		return EmitNonSerialized
	}
	defer func() { <-s.emitSlot }()
	return s.deliver(msg)
}

// Emit waits for its turn to publish, or until ctx ends.
func (s *Session) Emit(ctx context.Context, msg string) EmitResult {
	if ctx.Err() != nil {
		return EmitCancelled
	}
	select {
	case s.emitSlot <- struct{}{}:
	case <-ctx.Done():
		return EmitCancelled
	}
	defer func() { <-s.emitSlot }()
	if ctx.Err() != nil {
		return EmitCancelled
	}
	return s.deliver(msg)
}

func (s *Session) deliver(msg string) EmitResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return EmitTerminated
	}
	if len(s.subs) == 0 {
		return EmitZeroSubscriber
	}
	delivered := 0
	for sub := range s.subs {
		select {
		case sub.out <- msg:
			delivered++
		default:
		}
	}
	if delivered < len(s.subs) {
		return EmitOverflow
	}
	return EmitOK
}
