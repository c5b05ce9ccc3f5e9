package documents

import "errors"

// Status is the per-chunk ingestion state. Values are the persisted wire names.
type Status string

const (
	StatusPageSeparated     Status = "PAGE_SEPARATE_FINISHED"
	StatusEmbeddingRetrying Status = "RETRY_OAI_INVOCATION"
	StatusEmbeddingInvoked  Status = "FINISH_OAI_INVOCATION"
	StatusDbInserted        Status = "FINISH_DB_INSERTION"
	StatusCompleted         Status = "COMPLETED"
	StatusDbInsertionFailed Status = "FAILED_DB_INSERTION"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// predecessors lists, for each target, the states a record may move out of.
// PageSeparated is only ever written on create.
var predecessors = map[Status][]Status{
	StatusPageSeparated:     {},
	StatusEmbeddingRetrying: {StatusPageSeparated, StatusEmbeddingRetrying},
	StatusEmbeddingInvoked:  {StatusPageSeparated, StatusEmbeddingRetrying},
	StatusDbInserted:        {StatusEmbeddingInvoked},
	StatusCompleted:         {StatusDbInserted},
	StatusDbInsertionFailed: {StatusPageSeparated, StatusEmbeddingRetrying, StatusEmbeddingInvoked, StatusDbInserted},
}

func (s Status) Valid() bool {
	_, ok := predecessors[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDbInsertionFailed
}

// AllowedPredecessors returns the states from which a record may be moved to s.
func (s Status) AllowedPredecessors() []Status {
	p := predecessors[s]
	out := make([]Status, len(p))
	copy(out, p)
	return out
}

// CanTransition reports whether from -> to is a forward move. Writing the current
// state again is not a transition; callers treat it as a no-op.
func CanTransition(from, to Status) bool {
	for _, p := range predecessors[to] {
		if p == from {
			return true
		}
	}
	return false
}

func AllStatuses() []Status {
	return []Status{
		StatusPageSeparated,
		StatusEmbeddingRetrying,
		StatusEmbeddingInvoked,
		StatusDbInserted,
		StatusCompleted,
		StatusDbInsertionFailed,
	}
}
