package toolset

import (
	"sync"

	"mtehis/internal/model"
)

// Status of an evaluation session.
type Status string

const (
	StatusNotStarted Status = "not started"
	StatusProcessing Status = "processing"
	StatusFinished   Status = "finished"
)

// Session tracks one evaluation run of a toolset's detector. A session is
// owned by exactly one Handle; it moves not started -> processing ->
// finished and is never reused: a later evaluation gets a fresh session.
//
// There is no failed state. A fault during the run leaves the session
// finished with a nil result so the toolset is never stuck processing.
type Session struct {
	mu        sync.RWMutex
	status    Status
	iteration int
	result    *model.EvaluationResult
}

// SessionSnapshot is a point-in-time view of a session for polling.
type SessionSnapshot struct {
	Status    Status                  `json:"status"`
	Iteration int                     `json:"iteration"`
	Result    *model.EvaluationResult `json:"result,omitempty"`
}

func newSession() *Session {
	return &Session{status: StatusNotStarted}
}

// begin transitions not started -> processing. Called only by
// Handle.BeginEvaluation while holding the handle lock.
func (s *Session) begin() {
	s.mu.Lock()
	s.status = StatusProcessing
	s.mu.Unlock()
}

// advance records training progress. Reads through Snapshot never block on
// the running evaluation; they only contend on this short critical section.
func (s *Session) advance(iteration int) {
	s.mu.Lock()
	if iteration > s.iteration {
		s.iteration = iteration
	}
	s.mu.Unlock()
}

// finish transitions processing -> finished. result is nil when the
// underlying fit/evaluate call faulted.
func (s *Session) finish(result *model.EvaluationResult) {
	s.mu.Lock()
	s.status = StatusFinished
	s.result = result
	s.mu.Unlock()
}

// Status returns the current session status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Snapshot returns a consistent view of status, iteration and result.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionSnapshot{
		Status:    s.status,
		Iteration: s.iteration,
		Result:    s.result,
	}
}
