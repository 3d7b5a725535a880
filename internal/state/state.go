// Package state implements the shared mining state that synchronizes the
// network runner with the miner threads. The runner writes the current
// target and drains the solution queue; miners read the target and push
// solutions. All blocking accessors observe the stop flag so shutdown is
// cooperative.
package state

import (
	"sync"
	"sync/atomic"

	"github.com/bardlex/kristforge/internal/krist"
)

// Shared is the mining state shared between the network runner and every
// miner goroutine. The zero value is not usable; construct with New.
type Shared struct {
	address string

	// hashesCompleted counts every nonce evaluated across all miners.
	hashesCompleted atomic.Int64

	stopped  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}

	targetMu   sync.Mutex
	targetCond *sync.Cond
	target     *krist.Target

	solutionMu   sync.Mutex
	solutionCond *sync.Cond
	solutions    []krist.Solution
}

// New creates a shared state for the given mining address
func New(address string) (*Shared, error) {
	if err := krist.ValidateAddress(address); err != nil {
		return nil, err
	}

	s := &Shared{address: address, done: make(chan struct{})}
	s.targetCond = sync.NewCond(&s.targetMu)
	s.solutionCond = sync.NewCond(&s.solutionMu)
	return s, nil
}

// Address returns the Krist address being mined for
func (s *Shared) Address() string {
	return s.address
}

// GetTarget blocks until a target is set and returns a copy of it. It
// returns ok=false if the state was stopped while waiting.
func (s *Shared) GetTarget() (krist.Target, bool) {
	s.targetMu.Lock()
	defer s.targetMu.Unlock()

	for s.target == nil && !s.stopped.Load() {
		s.targetCond.Wait()
	}

	if s.target == nil {
		return krist.Target{}, false
	}
	return *s.target, true
}

// GetTargetNow returns the current target without blocking
func (s *Shared) GetTargetNow() (krist.Target, bool) {
	s.targetMu.Lock()
	defer s.targetMu.Unlock()

	if s.target == nil {
		return krist.Target{}, false
	}
	return *s.target, true
}

// SetTarget replaces the current target if it differs from the new one,
// waking any blocked GetTarget callers. Changing the target also clears
// the solution queue so no stale nonce is ever submitted. Re-setting an
// identical target is a no-op.
func (s *Shared) SetTarget(target krist.Target) {
	s.targetMu.Lock()
	defer s.targetMu.Unlock()

	if s.target == nil || *s.target != target {
		t := target
		s.target = &t
		s.targetCond.Broadcast()

		s.ClearSolutions()
	}
}

// UnsetTarget clears the current target, if any, and the solution queue
func (s *Shared) UnsetTarget() {
	s.targetMu.Lock()
	defer s.targetMu.Unlock()

	if s.target != nil {
		s.target = nil
		s.targetCond.Broadcast()

		s.ClearSolutions()
	}
}

// ClearSolutions drains the solution queue and wakes all queue waiters
func (s *Shared) ClearSolutions() {
	s.solutionMu.Lock()
	defer s.solutionMu.Unlock()

	s.solutions = nil
	s.solutionCond.Broadcast()
}

// PushSolution appends a solution to the queue and wakes one waiter
func (s *Shared) PushSolution(solution krist.Solution) {
	s.solutionMu.Lock()
	defer s.solutionMu.Unlock()

	s.solutions = append(s.solutions, solution)
	s.solutionCond.Signal()
}

// PopSolution blocks until a solution is available and returns the oldest
// one. It returns ok=false if the state was stopped while waiting.
func (s *Shared) PopSolution() (krist.Solution, bool) {
	s.solutionMu.Lock()
	defer s.solutionMu.Unlock()

	for len(s.solutions) == 0 && !s.stopped.Load() {
		s.solutionCond.Wait()
	}

	if len(s.solutions) == 0 {
		return krist.Solution{}, false
	}

	solution := s.solutions[0]
	s.solutions = s.solutions[1:]
	return solution, true
}

// PopSolutionNow returns the oldest queued solution without blocking
func (s *Shared) PopSolutionNow() (krist.Solution, bool) {
	s.solutionMu.Lock()
	defer s.solutionMu.Unlock()

	if len(s.solutions) == 0 {
		return krist.Solution{}, false
	}

	solution := s.solutions[0]
	s.solutions = s.solutions[1:]
	return solution, true
}

// Stop sets the stopped flag and wakes every blocked caller so they can
// observe it and exit
func (s *Shared) Stop() {
	s.stopped.Store(true)
	s.stopOnce.Do(func() { close(s.done) })

	s.targetMu.Lock()
	s.targetCond.Broadcast()
	s.targetMu.Unlock()

	s.solutionMu.Lock()
	s.solutionCond.Broadcast()
	s.solutionMu.Unlock()
}

// Done returns a channel closed when the state is stopped, for use in
// select loops
func (s *Shared) Done() <-chan struct{} {
	return s.done
}

// IsStopped reads the stopped flag
func (s *Shared) IsStopped() bool {
	return s.stopped.Load()
}

// AddHashes adds to the completed-hash counter
func (s *Shared) AddHashes(n int64) {
	s.hashesCompleted.Add(n)
}

// HashesCompleted returns the total number of hashes evaluated so far
func (s *Shared) HashesCompleted() int64 {
	return s.hashesCompleted.Load()
}
