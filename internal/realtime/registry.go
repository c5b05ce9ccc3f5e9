package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
)

// Emitter delivers an encoded event to a session by id.
type Emitter interface {
	Emit(ctx context.Context, sessionID string, payload string) EmitResult
}

// releasedTTL bounds how long a torn-down session id keeps failing emits with
// EmitTerminated before it is forgotten.
const releasedTTL = 10 * time.Minute

// Registry owns every live session of this process.
type Registry struct {
	log        *logger.Logger
	bufferSize int
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	released map[string]time.Time
}

func NewRegistry(log *logger.Logger, bufferSize int) *Registry {
	return &Registry{
		log:        log.With("component", "SessionRegistry"),
		bufferSize: bufferSize,
		now:        time.Now,
		sessions:   make(map[string]*Session),
		released:   make(map[string]time.Time),
	}
}

// GetOrCreate returns the session for id, creating it if needed. Concurrent callers
// with the same id always receive the same *Session.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := newSession(id, r.bufferSize, r.log)
	r.sessions[id] = s
	delete(r.released, id)
	r.log.Debug("Session created", "session_id", id, "sessions", len(r.sessions))
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Release cancels sub and, when it was the session's last subscriber, removes and
// closes the session. It is the disconnect hook of a streaming connection.
func (r *Registry) Release(id string, sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	if s.Cancel(sub) > 0 {
		return
	}
	delete(r.sessions, id)
	r.markReleasedLocked(id)
	s.Close()
	r.log.Debug("Session released", "session_id", id, "sessions", len(r.sessions))
}

// Remove closes and forgets the session regardless of subscribers.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	if ok {
		r.markReleasedLocked(id)
	}
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Released reports whether id belonged to a session of this process that has since
// been torn down.
func (r *Registry) Released(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.released[id]
	if !ok {
		return false
	}
	if r.now().Sub(at) > releasedTTL {
		delete(r.released, id)
		return false
	}
	return true
}

func (r *Registry) markReleasedLocked(id string) {
	now := r.now()
	for k, at := range r.released {
		if now.Sub(at) > releasedTTL {
			delete(r.released, k)
		}
	}
	r.released[id] = now
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Emit implements Emitter against local sessions only. A session torn down by Release,
// Remove or Close reports EmitTerminated; an id never seen reports EmitZeroSubscriber.
func (r *Registry) Emit(ctx context.Context, sessionID string, payload string) EmitResult {
	s, ok := r.Get(sessionID)
	if !ok {
		if r.Released(sessionID) {
			return EmitTerminated
		}
		return EmitZeroSubscriber
	}
	return s.Emit(ctx, payload)
}

// Close terminates every session, for shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	for id := range sessions {
		r.markReleasedLocked(id)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

type triggerKey struct{}

// WithTrigger attaches the input that caused the events emitted under ctx, so a
// failed delivery can be logged against it wherever it is classified.
func WithTrigger(ctx context.Context, input string) context.Context {
	return context.WithValue(ctx, triggerKey{}, input)
}

func TriggerFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(triggerKey{}).(string)
	return s
}

// LogEmitFailure records a failed delivery with the fragment that was dropped and the
// input that triggered it.
func LogEmitFailure(log *logger.Logger, res EmitResult, sessionID, fragment, trigger string) {
	if !res.IsFailure() {
		return
	}
	kv := []interface{}{
		"reason", res.String(),
		"session_id", sessionID,
		"fragment", logger.Fragment(fragment, 120),
		"input", logger.Fragment(trigger, 200),
	}
	switch res {
	case EmitZeroSubscriber, EmitCancelled:
		log.Warn("Session emit failed", kv...)
	default:
		log.Error("Session emit failed", kv...)
	}
}
