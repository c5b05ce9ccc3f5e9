package ctxutil

import "context"

type traceDataKey struct{}

// TraceData identifies the request (and, for session endpoints, the session) a piece
// of work belongs to.
type TraceData struct {
	TraceID   string
	RequestID string
	SessionID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(Default(ctx), traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	td, _ := ctx.Value(traceDataKey{}).(*TraceData)
	return td
}

// LogFields returns the non-empty trace identifiers as logger key/value pairs.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	var kv []interface{}
	if td.TraceID != "" {
		kv = append(kv, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		kv = append(kv, "request_id", td.RequestID)
	}
	if td.SessionID != "" {
		kv = append(kv, "session_id", td.SessionID)
	}
	return kv
}

func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// Detached keeps the values of ctx but not its cancellation.
func Detached(ctx context.Context) context.Context {
	return context.WithoutCancel(Default(ctx))
}
