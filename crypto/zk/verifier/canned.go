package verifier

import (
	"encoding/json"
	"sync"
)

// Canned accepts only the (proof, public signals) pairs registered with Accept.
// It is meant for tests and local development networks.
type Canned struct {
	mu       sync.RWMutex
	accepted map[string]struct{}
}

// NewCanned returns an empty Canned verifier, which rejects everything.
func NewCanned() *Canned {
	return &Canned{accepted: make(map[string]struct{})}
}

// Accept registers a pair that Verify will accept.
func (c *Canned) Accept(proof *Proof, pubSignals []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted[cannedKey(proof, pubSignals)] = struct{}{}
}

// Verify implements ProofVerifier.
func (c *Canned) Verify(proof *Proof, pubSignals []string) bool {
	if proof == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.accepted[cannedKey(proof, pubSignals)]
	return ok
}

func cannedKey(proof *Proof, pubSignals []string) string {
	data, _ := json.Marshal(struct {
		P *Proof   `json:"p"`
		S []string `json:"s"`
	}{proof, pubSignals})
	return string(data)
}
