package bus

import "context"

// Envelope is an encoded client event addressed to a session, as carried between
// instances.
type Envelope struct {
	SessionID string `json:"sessionId"`
	Payload   string `json:"payload"`
	// Input is the query that produced the event, for failure logs on the
	// delivering instance.
	Input string `json:"input,omitempty"`
}

type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	StartForwarder(ctx context.Context, onMsg func(env Envelope)) error
	Close() error
}
