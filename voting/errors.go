package voting

import (
	"fmt"

	"go.vocdoni.io/zkballot/phase"
)

// Every error returned by the Orchestrator wraps exactly one of these.
var (
	ErrPhase               = fmt.Errorf("operation not allowed in the current phase")
	ErrAlreadyRegistered   = fmt.Errorf("voter already registered")
	ErrAlreadyVoted        = fmt.Errorf("vote already cast")
	ErrInvalidProof        = fmt.Errorf("invalid proof")
	ErrMalformedSignals    = fmt.Errorf("malformed public signals")
	ErrInvalidWindow       = phase.ErrInvalidWindow
	ErrUnauthorized        = fmt.Errorf("caller is not the election admin")
	ErrUnknownCandidate    = fmt.Errorf("unknown candidate")
	ErrMalformedCommitment = fmt.Errorf("malformed commitment")
	ErrInvalidCandidate    = fmt.Errorf("invalid candidate")
)
