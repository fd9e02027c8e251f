package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"go.vocdoni.io/zkballot/db"
	"go.vocdoni.io/zkballot/phase"
)

const candidatesJSON = `{
  "candidates": [
    {"name": "Alice", "description": "first"},
    {"name": "Bob", "description": "second"}
  ],
  "votingPeriods": {
    "registrationStart": "2024-01-01T00:00:00Z",
    "registrationEnd": "2024-01-02T00:00:00Z",
    "votingStart": "2024-01-02T00:00:00Z",
    "votingEnd": "2024-01-03T12:30:00+02:00"
  }
}`

func TestLoadGenesis(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), DefaultGenesisFile)
	c.Assert(os.WriteFile(path, []byte(candidatesJSON), 0o600), qt.IsNil)

	g, err := LoadGenesis(path)
	c.Assert(err, qt.IsNil)
	_, err = uuid.Parse(g.ElectionID)
	c.Assert(err, qt.IsNil)
	c.Assert(g.Candidates, qt.DeepEquals, []GenesisCandidate{
		{Name: "Alice", Description: "first"},
		{Name: "Bob", Description: "second"},
	})

	w, err := g.VotingPeriods.Window()
	c.Assert(err, qt.IsNil)
	c.Assert(w.RegistrationStart.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), qt.IsTrue)
	c.Assert(w.VotingEnd.Equal(time.Date(2024, 1, 3, 10, 30, 0, 0, time.UTC)), qt.IsTrue)

	_, err = LoadGenesis(filepath.Join(t.TempDir(), "missing.json"))
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestParseGenesisErrors(t *testing.T) {
	c := qt.New(t)

	g, err := ParseGenesis([]byte(`{"electionId":"fixed","candidates":[]}`))
	c.Assert(err, qt.IsNil)
	c.Assert(g.ElectionID, qt.Equals, "fixed")
	c.Assert(g.VotingPeriods, qt.IsNil)

	_, err = ParseGenesis([]byte(`{"candidates":[{"name":" "}]}`))
	c.Assert(err, qt.ErrorMatches, "candidate 0 has no name")

	_, err = ParseGenesis([]byte(`{"candidates":[],"votingPeriods":{"registrationStart":"yesterday"}}`))
	c.Assert(err, qt.ErrorMatches, "invalid registrationStart.*")

	_, err = ParseGenesis([]byte(`{"candidates":[],"votingPeriods":{
		"registrationStart":"2024-01-02T00:00:00Z","registrationEnd":"2024-01-01T00:00:00Z",
		"votingStart":"2024-01-03T00:00:00Z","votingEnd":"2024-01-04T00:00:00Z"}}`))
	c.Assert(err, qt.ErrorIs, phase.ErrInvalidWindow)

	_, err = ParseGenesis([]byte(`{`))
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestConfigValidate(t *testing.T) {
	c := qt.New(t)
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.Admin = "0x00000000000000000000000000000000000000aa"
	cfg.VerificationKey = "vkey.json"
	c.Assert(cfg.Validate(), qt.IsNil)
	c.Assert(cfg.AdminAddress(), qt.Equals, common.Address{19: 0xaa})

	bad := *cfg
	bad.Admin = "nope"
	c.Assert(bad.Validate(), qt.Not(qt.IsNil))

	bad = *cfg
	bad.Verifier = "plonk"
	c.Assert(bad.Validate(), qt.Not(qt.IsNil))

	bad = *cfg
	bad.VerificationKey = ""
	c.Assert(bad.Validate(), qt.Not(qt.IsNil))

	bad = *cfg
	bad.Verifier = VerifierCanned
	bad.VerificationKey = ""
	bad.DataDir = ""
	bad.DBType = db.TypeMemory
	c.Assert(bad.Validate(), qt.IsNil)
}
