package state

import "fmt"

var (
	ErrNotRegistered     = fmt.Errorf("identity not registered")
	ErrAlreadyRegistered = fmt.Errorf("identity already registered")
	ErrNullifierNotFound = fmt.Errorf("nullifier not found")
	ErrNullifierUsed     = fmt.Errorf("nullifier already used")
	ErrUnknownCandidate  = fmt.Errorf("unknown candidate")
	ErrInvalidValue      = fmt.Errorf("value is not a canonical field element")
	ErrElectionExists    = fmt.Errorf("election already initialized")
	ErrElectionNotFound  = fmt.Errorf("election not initialized")
)
