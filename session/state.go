package session

// allowedTransitions encodes the per-session state machine:
//
//	idle --start--> streaming
//	streaming --done(success)--> completed
//	streaming --done(error)--> error
//	streaming --cancel--> cancelled
//	completed/error/cancelled --start--> streaming  (follow-up turn)
//
// Transitions are total: anything not listed is a no-op, never a fault,
// so operations on already-terminal sessions are safe to repeat.
var allowedTransitions = map[Status][]Status{
	StatusIdle:      {StatusStreaming},
	StatusStreaming: {StatusCompleted, StatusError, StatusCancelled},
	StatusCompleted: {StatusStreaming},
	StatusError:     {StatusStreaming},
	StatusCancelled: {StatusStreaming},
}

// canTransition reports whether moving from one status to another is a
// real state change. Same-status moves are treated as idempotent no-ops
// by the caller.
func canTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
