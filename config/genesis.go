package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.vocdoni.io/zkballot/phase"
)

// Genesis is the initial setup of an election: its candidates and phase
// window. It follows the layout of the candidates.json deployment file.
type Genesis struct {
	ElectionID    string             `json:"electionId,omitempty"`
	Candidates    []GenesisCandidate `json:"candidates"`
	VotingPeriods *GenesisPeriods    `json:"votingPeriods,omitempty"`
}

// GenesisCandidate is a candidate entry of the genesis file.
type GenesisCandidate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GenesisPeriods holds the phase boundaries as RFC 3339 dates.
type GenesisPeriods struct {
	RegistrationStart string `json:"registrationStart"`
	RegistrationEnd   string `json:"registrationEnd"`
	VotingStart       string `json:"votingStart"`
	VotingEnd         string `json:"votingEnd"`
}

// Window parses the periods into a phase window.
func (p *GenesisPeriods) Window() (phase.Window, error) {
	var w phase.Window
	var err error
	for _, f := range []struct {
		dst  *time.Time
		name string
		val  string
	}{
		{&w.RegistrationStart, "registrationStart", p.RegistrationStart},
		{&w.RegistrationEnd, "registrationEnd", p.RegistrationEnd},
		{&w.VotingStart, "votingStart", p.VotingStart},
		{&w.VotingEnd, "votingEnd", p.VotingEnd},
	} {
		if *f.dst, err = time.Parse(time.RFC3339, strings.TrimSpace(f.val)); err != nil {
			return phase.Window{}, fmt.Errorf("invalid %s: %w", f.name, err)
		}
	}
	w = w.Truncate()
	if err := w.Validate(); err != nil {
		return phase.Window{}, err
	}
	return w, nil
}

// ParseGenesis decodes and validates a genesis document. A missing election
// id is generated.
func ParseGenesis(data []byte) (*Genesis, error) {
	g := &Genesis{}
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("cannot decode genesis: %w", err)
	}
	if g.ElectionID == "" {
		g.ElectionID = uuid.NewString()
	}
	for i, c := range g.Candidates {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("candidate %d has no name", i)
		}
	}
	if g.VotingPeriods != nil {
		if _, err := g.VotingPeriods.Window(); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// LoadGenesis reads a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGenesis(data)
}
