package state

import (
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/zkballot/db"
	"go.vocdoni.io/zkballot/db/metadb"
	"go.vocdoni.io/zkballot/phase"
	"go.vocdoni.io/zkballot/types"
)

func newTestState(t *testing.T) *State {
	s, err := New(metadb.NewTest(t))
	qt.Assert(t, err, qt.IsNil)
	return s
}

func TestCandidates(t *testing.T) {
	c := qt.New(t)
	s := newTestState(t)

	list, err := s.Candidates()
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 0)

	for i, name := range []string{"Alice", "Bob", "Carol"} {
		id, err := s.AddCandidate(name, "d"+name)
		c.Assert(err, qt.IsNil)
		c.Assert(id, qt.Equals, uint32(i))
	}
	count, err := s.CandidateCount()
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint32(3))

	list, err = s.Candidates()
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.DeepEquals, []*Candidate{
		{ID: 0, Name: "Alice", Description: "dAlice"},
		{ID: 1, Name: "Bob", Description: "dBob"},
		{ID: 2, Name: "Carol", Description: "dCarol"},
	})

	cand, err := s.Candidate(1)
	c.Assert(err, qt.IsNil)
	c.Assert(cand.Name, qt.Equals, "Bob")

	_, err = s.Candidate(3)
	c.Assert(err, qt.ErrorIs, ErrUnknownCandidate)
}

func TestCandidatesOrderedBeyondOneByte(t *testing.T) {
	c := qt.New(t)
	s := newTestState(t)
	for i := 0; i < 300; i++ {
		_, err := s.AddCandidate(fmt.Sprintf("c%d", i), "")
		c.Assert(err, qt.IsNil)
	}
	list, err := s.Candidates()
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 300)
	for i, cand := range list {
		c.Assert(cand.ID, qt.Equals, uint32(i))
	}
}

func TestCommitments(t *testing.T) {
	c := qt.New(t)
	s := newTestState(t)
	alice := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	_, err := s.Commitment(alice)
	c.Assert(err, qt.ErrorIs, ErrNotRegistered)

	c.Assert(s.RegisterCommitment(alice, types.NewInt(1234)), qt.IsNil)
	err = s.RegisterCommitment(alice, types.NewInt(5678))
	c.Assert(err, qt.ErrorIs, ErrAlreadyRegistered)

	got, err := s.Commitment(alice)
	c.Assert(err, qt.IsNil)
	c.Assert(got.String(), qt.Equals, "1234")

	// the cached copy cannot be mutated by callers
	got.SetUint64(1)
	got, err = s.Commitment(alice)
	c.Assert(err, qt.IsNil)
	c.Assert(got.String(), qt.Equals, "1234")

	// zero is a valid commitment, distinguishable from absent
	c.Assert(s.RegisterCommitment(bob, types.NewInt(0)), qt.IsNil)
	got, err = s.Commitment(bob)
	c.Assert(err, qt.IsNil)
	c.Assert(got.String(), qt.Equals, "0")

	c.Assert(s.RegisterCommitment(common.Address{1}, types.FieldModulus()), qt.ErrorIs, ErrInvalidValue)
	c.Assert(s.RegisterCommitment(common.Address{1}, types.NewInt(-1)), qt.ErrorIs, ErrInvalidValue)

	n, err := s.CountRegistrations()
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, uint64(2))
}

func TestApplyVote(t *testing.T) {
	c := qt.New(t)
	s := newTestState(t)
	_, err := s.AddCandidate("Alice", "d")
	c.Assert(err, qt.IsNil)
	_, err = s.AddCandidate("Bob", "d")
	c.Assert(err, qt.IsNil)

	now := time.Unix(1_700_000_400, 0)
	n := types.NewInt(987654321)

	exists, err := s.NullifierExists(n)
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsFalse)
	_, err = s.Nullifier(n)
	c.Assert(err, qt.ErrorIs, ErrNullifierNotFound)

	c.Assert(s.ApplyVote(n, 0, 7, now), qt.IsNil)

	exists, err = s.NullifierExists(n)
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsTrue)
	info, err := s.Nullifier(n)
	c.Assert(err, qt.IsNil)
	c.Assert(info.Height, qt.Equals, uint64(7))
	c.Assert(info.Time.Equal(now), qt.IsTrue)

	// replay leaves everything untouched
	c.Assert(s.ApplyVote(n, 1, 8, now), qt.ErrorIs, ErrNullifierUsed)

	// unknown candidate does not consume the nullifier
	other := types.NewInt(55)
	c.Assert(s.ApplyVote(other, 2, 8, now), qt.ErrorIs, ErrUnknownCandidate)
	exists, err = s.NullifierExists(other)
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsFalse)

	// non canonical values are rejected
	alias := new(types.BigInt).Add(types.FieldModulus(), n)
	c.Assert(s.ApplyVote(alias, 1, 8, now), qt.ErrorIs, ErrInvalidValue)

	c.Assert(s.ApplyVote(other, 1, 8, now), qt.IsNil)

	total, err := s.TotalVotes()
	c.Assert(err, qt.IsNil)
	c.Assert(total, qt.Equals, uint64(2))
	assertTallyMatches(c, s)
}

func TestConcurrentReads(t *testing.T) {
	c := qt.New(t)
	s := newTestState(t)
	_, err := s.AddCandidate("Alice", "d")
	c.Assert(err, qt.IsNil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if err := s.ApplyVote(types.NewInt(int64(i+1)), 0, uint64(i), time.Now()); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	for i := 0; i < 100; i++ {
		list, err := s.Candidates()
		c.Assert(err, qt.IsNil)
		total, err := s.TotalVotes()
		c.Assert(err, qt.IsNil)
		// the tally is committed together with the counter, and the
		// candidate is read before the counter
		c.Assert(list[0].VoteCount <= total, qt.IsTrue)
	}
	wg.Wait()
	assertTallyMatches(c, s)
}

func TestWindowAndElection(t *testing.T) {
	c := qt.New(t)
	s := newTestState(t)

	_, ok, err := s.Window()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)

	c.Assert(s.SetWindow(phase.NewWindow(10, 5, 20, 30)), qt.ErrorIs, phase.ErrInvalidWindow)
	w := phase.NewWindow(1_700_000_000, 1_700_000_300, 1_700_000_301, 1_700_000_900)
	c.Assert(s.SetWindow(w), qt.IsNil)
	got, ok, err := s.Window()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(got, qt.DeepEquals, w)

	_, err = s.Election()
	c.Assert(err, qt.ErrorIs, ErrElectionNotFound)
	e := &Election{ID: "e1", Admin: common.Address{9}.Bytes()}
	c.Assert(s.SetElection(e), qt.IsNil)
	c.Assert(s.SetElection(e), qt.ErrorIs, ErrElectionExists)
	gotE, err := s.Election()
	c.Assert(err, qt.IsNil)
	c.Assert(gotE, qt.DeepEquals, e)
}

func TestReopen(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	database, err := metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)
	s, err := New(database)
	c.Assert(err, qt.IsNil)

	voter := common.Address{42}
	_, err = s.AddCandidate("Alice", "d")
	c.Assert(err, qt.IsNil)
	c.Assert(s.RegisterCommitment(voter, types.NewInt(77)), qt.IsNil)
	c.Assert(s.ApplyVote(types.NewInt(3), 0, 1, time.Unix(100, 0)), qt.IsNil)
	c.Assert(s.Close(), qt.IsNil)

	database, err = metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)
	s, err = New(database)
	c.Assert(err, qt.IsNil)
	defer s.Close()

	commitment, err := s.Commitment(voter)
	c.Assert(err, qt.IsNil)
	c.Assert(commitment.String(), qt.Equals, "77")
	exists, err := s.NullifierExists(types.NewInt(3))
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsTrue)
	c.Assert(s.ApplyVote(types.NewInt(3), 0, 2, time.Unix(101, 0)), qt.ErrorIs, ErrNullifierUsed)
	id, err := s.AddCandidate("Bob", "d")
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, uint32(1))
	assertTallyMatches(c, s)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) OnCandidate(c *Candidate)        { r.add("candidate %d", c.ID) }
func (r *recorder) OnWindow(phase.Window)           { r.add("window") }
func (r *recorder) OnRegister(voter common.Address) { r.add("register %s", voter.Hex()) }
func (r *recorder) OnVote(n *types.BigInt, id uint32, h uint64) {
	r.add("vote %s %d %d", n, id, h)
}
func (r *recorder) Commit(h uint64) error { r.add("commit %d", h); return nil }

func TestEventListener(t *testing.T) {
	c := qt.New(t)
	s := newTestState(t)
	r := &recorder{}
	s.AddEventListener(r)

	_, err := s.AddCandidate("Alice", "d")
	c.Assert(err, qt.IsNil)
	c.Assert(s.RegisterCommitment(common.Address{1}, types.NewInt(5)), qt.IsNil)
	c.Assert(s.RegisterCommitment(common.Address{1}, types.NewInt(5)), qt.ErrorIs, ErrAlreadyRegistered)
	c.Assert(s.ApplyVote(types.NewInt(8), 0, 3, time.Unix(1, 0)), qt.IsNil)
	c.Assert(s.ApplyVote(types.NewInt(8), 0, 3, time.Unix(1, 0)), qt.ErrorIs, ErrNullifierUsed)
	c.Assert(s.Commit(3), qt.IsNil)

	c.Assert(r.events, qt.DeepEquals, []string{
		"candidate 0",
		"register " + common.Address{1}.Hex(),
		"vote 8 0 3",
		"commit 3",
	})

	s.CleanEventListeners()
	_, err = s.AddCandidate("Bob", "d")
	c.Assert(err, qt.IsNil)
	c.Assert(r.events, qt.HasLen, 4)
}

func assertTallyMatches(c *qt.C, s *State) {
	c.Helper()
	list, err := s.Candidates()
	c.Assert(err, qt.IsNil)
	sum := new(big.Int)
	for _, cand := range list {
		sum.Add(sum, new(big.Int).SetUint64(cand.VoteCount))
	}
	total, err := s.TotalVotes()
	c.Assert(err, qt.IsNil)
	c.Assert(sum.Uint64(), qt.Equals, total)
}
