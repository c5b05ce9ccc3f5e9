package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
	"github.com/yungbote/pdfrag-backend/internal/realtime"
)

type memBus struct {
	mu      sync.Mutex
	fail    bool
	handler func(Envelope)
	sent    []Envelope
}

func (b *memBus) Publish(ctx context.Context, env Envelope) error {
	b.mu.Lock()
	if b.fail {
		b.mu.Unlock()
		return errors.New("bus down")
	}
	b.sent = append(b.sent, env)
	h := b.handler
	b.mu.Unlock()
	if h != nil {
		h(env)
	}
	return nil
}

func (b *memBus) StartForwarder(ctx context.Context, onMsg func(Envelope)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = onMsg
	return nil
}

func (b *memBus) Close() error { return nil }

func TestEmitterRoutesRemoteSessionThroughBus(t *testing.T) {
	b := &memBus{}
	// owner holds the subscriber; origin runs the query without it.
	owner := realtime.NewRegistry(logger.Nop(), 4)
	sub := owner.GetOrCreate("s").Subscribe()
	if err := NewEmitter(logger.Nop(), b, owner).Forward(context.Background()); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	origin := NewEmitter(logger.Nop(), b, realtime.NewRegistry(logger.Nop(), 4))

	ctx := realtime.WithTrigger(context.Background(), "query")
	if res := origin.Emit(ctx, "s", "payload"); res != realtime.EmitOK {
		t.Fatalf("emit: want=%s got=%s", realtime.EmitOK, res)
	}
	select {
	case got := <-sub.C:
		if got != "payload" {
			t.Fatalf("payload: want=payload got=%s", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for forwarded event")
	}
	if len(b.sent) != 1 || b.sent[0].SessionID != "s" || b.sent[0].Input != "query" {
		t.Fatalf("bus envelopes: got=%+v", b.sent)
	}
}

func TestEmitterDeliversLocalSessionWithoutBus(t *testing.T) {
	reg := realtime.NewRegistry(logger.Nop(), 4)
	sub := reg.GetOrCreate("s").Subscribe()
	b := &memBus{}
	em := NewEmitter(logger.Nop(), b, reg)

	if res := em.Emit(context.Background(), "s", "payload"); res != realtime.EmitOK {
		t.Fatalf("emit: want=%s got=%s", realtime.EmitOK, res)
	}
	if got := <-sub.C; got != "payload" {
		t.Fatalf("payload: want=payload got=%s", got)
	}
	if len(b.sent) != 0 {
		t.Fatalf("bus envelopes: want=0 got=%d", len(b.sent))
	}
}

func TestEmitterReportsLocalSessionFailures(t *testing.T) {
	reg := realtime.NewRegistry(logger.Nop(), 4)
	sub := reg.GetOrCreate("s").Subscribe()
	b := &memBus{}
	em := NewEmitter(logger.Nop(), b, reg)

	reg.GetOrCreate("s").Cancel(sub)
	if res := em.Emit(context.Background(), "s", "x"); res != realtime.EmitZeroSubscriber {
		t.Fatalf("no subscriber: want=%s got=%s", realtime.EmitZeroSubscriber, res)
	}

	reg.Remove("s")
	if res := em.Emit(context.Background(), "s", "x"); res != realtime.EmitTerminated {
		t.Fatalf("released: want=%s got=%s", realtime.EmitTerminated, res)
	}
	if len(b.sent) != 0 {
		t.Fatalf("bus envelopes: want=0 got=%d", len(b.sent))
	}
}

func TestEmitterFallsBackToLocalWhenBusFails(t *testing.T) {
	reg := realtime.NewRegistry(logger.Nop(), 4)
	em := NewEmitter(logger.Nop(), &memBus{fail: true}, reg)
	if res := em.Emit(context.Background(), "missing", "x"); res != realtime.EmitZeroSubscriber {
		t.Fatalf("fallback: want=%s got=%s", realtime.EmitZeroSubscriber, res)
	}
}
