package network

import (
	"sync"

	"github.com/bardlex/kristforge/internal/krist"
)

// submitState coordinates the at-most-one-in-flight submission discipline
// between the solution feeder and the event loop. The id starts at 1 and
// increments on every clear, so a reply carrying an older id can never be
// mistaken for the reply to the current submission.
type submitState struct {
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	solution *krist.Solution
	id       int64
}

func newSubmitState() *submitState {
	s := &submitState{id: 1}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Set stores a solution, blocking until the slot is empty. It returns false
// if the state was closed while waiting.
func (s *submitState) Set(solution krist.Solution) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.solution != nil && !s.closed {
		s.cond.Wait()
	}

	if s.closed {
		return false
	}

	sol := solution
	s.solution = &sol
	return true
}

// Get returns the outstanding solution, if any, without blocking
func (s *submitState) Get() (krist.Solution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.solution == nil {
		return krist.Solution{}, false
	}
	return *s.solution, true
}

// Clear empties the slot and increments the id, waking blocked Set callers.
// Clearing an empty slot still advances the id.
func (s *submitState) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.solution = nil
	s.id++
	s.cond.Broadcast()
}

// ID returns the id the next broadcast submission will carry
func (s *submitState) ID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Close permanently unblocks Set callers during shutdown
func (s *submitState) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.cond.Broadcast()
}
