package state

import (
	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/zkballot/phase"
	"go.vocdoni.io/zkballot/types"
)

// EventListener receives the state changes once they are committed to the
// database. Events for a block are delivered in order, followed by Commit.
// Mutations are serialized, so there are no two sequences happening in
// parallel.
type EventListener interface {
	OnCandidate(c *Candidate)
	OnWindow(w phase.Window)
	OnRegister(voter common.Address)
	OnVote(nullifierHash *types.BigInt, candidateID uint32, height uint64)
	Commit(height uint64) error
}

// AddEventListener adds a new event listener, to receive method calls on
// state events as documented in EventListener.
func (s *State) AddEventListener(l EventListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.eventListeners = append(s.eventListeners, l)
}

// CleanEventListeners removes all event listeners.
func (s *State) CleanEventListeners() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.eventListeners = nil
}

// Commit notifies the listeners that the block at height is complete.
func (s *State) Commit(height uint64) error {
	var firstErr error
	s.forEachListener(func(l EventListener) {
		if err := l.Commit(height); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

func (s *State) forEachListener(fn func(EventListener)) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	for _, l := range s.eventListeners {
		fn(l)
	}
}
