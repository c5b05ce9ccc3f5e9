package bus

import (
	"context"

	"github.com/yungbote/pdfrag-backend/internal/platform/logger"
	"github.com/yungbote/pdfrag-backend/internal/realtime"
)

// Emitter publishes events to every instance; each instance's forwarder delivers
// them to whichever local session holds the subscriber.
type Emitter struct {
	log   *logger.Logger
	bus   Bus
	local *realtime.Registry
}

func NewEmitter(log *logger.Logger, b Bus, local *realtime.Registry) *Emitter {
	return &Emitter{log: log.With("component", "BusEmitter"), bus: b, local: local}
}

// Emit delivers straight to a session this instance holds, and reports EmitTerminated
// for one it has torn down. Any other session id goes on the bus and reports EmitOK
// once published; the forwarding instance classifies final delivery. If the bus is
// down the event goes to local sessions.
func (e *Emitter) Emit(ctx context.Context, sessionID string, payload string) realtime.EmitResult {
	if ctx.Err() != nil {
		return realtime.EmitCancelled
	}
	if _, ok := e.local.Get(sessionID); ok {
		return e.local.Emit(ctx, sessionID, payload)
	}
	if e.local.Released(sessionID) {
		return realtime.EmitTerminated
	}
	env := Envelope{SessionID: sessionID, Payload: payload, Input: realtime.TriggerFrom(ctx)}
	if err := e.bus.Publish(ctx, env); err != nil {
		e.log.Warn("Bus publish failed, delivering locally", "session_id", sessionID, "error", err)
		return e.local.Emit(ctx, sessionID, payload)
	}
	return realtime.EmitOK
}

// Forward starts delivering bus envelopes into the local registry.
func (e *Emitter) Forward(ctx context.Context) error {
	return e.bus.StartForwarder(ctx, func(env Envelope) {
		res := e.local.Emit(ctx, env.SessionID, env.Payload)
		switch res {
		case realtime.EmitOK:
		case realtime.EmitZeroSubscriber:
			// another instance owns this session
			e.log.Debug("No local subscriber for forwarded event", "session_id", env.SessionID)
		default:
			realtime.LogEmitFailure(e.log, res, env.SessionID, env.Payload, env.Input)
		}
	})
}
