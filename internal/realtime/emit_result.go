package realtime

// EmitResult classifies one delivery attempt on a session.
type EmitResult int

const (
	EmitOK EmitResult = iota
	// EmitOverflow: a subscriber's buffer was full and the event was dropped for it.
	EmitOverflow
	// EmitNonSerialized: another emitter held the session and the caller would not wait.
	EmitNonSerialized
	// EmitZeroSubscriber: nobody was listening, or the session does not exist.
	EmitZeroSubscriber
	// EmitTerminated: the session was closed.
	EmitTerminated
	// EmitCancelled: the emitting context ended before delivery.
	EmitCancelled
)

func (r EmitResult) String() string {
	switch r {
	case EmitOK:
		return "ok"
	case EmitOverflow:
		return "overflow"
	case EmitNonSerialized:
		return "non_serialized"
	case EmitZeroSubscriber:
		return "zero_subscriber"
	case EmitTerminated:
		return "terminated"
	case EmitCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (r EmitResult) IsFailure() bool { return r != EmitOK }
