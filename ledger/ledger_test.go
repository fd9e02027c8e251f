package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/zkballot/crypto/ethereum"
	"go.vocdoni.io/zkballot/crypto/zk/verifier"
	"go.vocdoni.io/zkballot/db"
	"go.vocdoni.io/zkballot/db/metadb"
	"go.vocdoni.io/zkballot/phase"
	"go.vocdoni.io/zkballot/state"
	"go.vocdoni.io/zkballot/transaction"
	"go.vocdoni.io/zkballot/types"
	"go.vocdoni.io/zkballot/voting"
)

const t0 = int64(1_700_000_000)

type testClock struct{ unix atomic.Int64 }

func (c *testClock) now() time.Time { return time.Unix(c.unix.Load(), 0) }
func (c *testClock) set(offset int64) { c.unix.Store(t0 + offset) }

type testLedger struct {
	*Ledger
	clock    *testClock
	admin    *ethereum.SignKeys
	verifier *verifier.Canned
	database db.Database
}

func newTestLedger(t *testing.T, database db.Database, opts Options) *testLedger {
	c := qt.New(t)
	tl := &testLedger{
		clock:    &testClock{},
		admin:    ethereum.NewSignKeys(),
		verifier: verifier.NewCanned(),
		database: database,
	}
	tl.clock.set(-100)
	c.Assert(tl.admin.AddHexKey("2a6e5a5b2b9b5ff35c33b0a3a4c3ff4f0d3a1c26e4b0a40e5e8c8cbf5bc0a1d1"), qt.IsNil)
	stores := metadb.Split(database)
	st, err := state.New(stores.State)
	c.Assert(err, qt.IsNil)
	if _, err := st.Election(); err != nil {
		c.Assert(st.SetElection(&state.Election{ID: "ledger-test", Admin: tl.admin.Address().Bytes()}), qt.IsNil)
	}
	o, err := voting.New(st, tl.verifier, tl.admin.Address())
	c.Assert(err, qt.IsNil)
	opts.Clock = tl.clock.now
	tl.Ledger, err = New(o, stores.Ledger, opts)
	c.Assert(err, qt.IsNil)
	return tl
}

func (tl *testLedger) signed(c *qt.C, tx *transaction.Tx) []byte {
	data, err := transaction.Sign(tx, tl.admin, tl.ElectionID())
	c.Assert(err, qt.IsNil)
	return data
}

func (tl *testLedger) addCandidateTx(c *qt.C, name string) []byte {
	return tl.signed(c, &transaction.Tx{
		Type:         transaction.TxAddCandidate,
		AddCandidate: &transaction.AddCandidateTx{Name: name},
	})
}

// sendAsync submits data and returns a channel with the result.
func (tl *testLedger) sendAsync(ctx context.Context, data []byte) <-chan error {
	ch := make(chan error, 1)
	go func() {
		_, err := tl.SendTx(ctx, data)
		ch <- err
	}()
	return ch
}

// waitMempool waits until the mempool holds n transactions.
func waitMempool(c *qt.C, l *Ledger, n int) {
	deadline := time.Now().Add(5 * time.Second)
	for l.MempoolSize() != n {
		if time.Now().After(deadline) {
			c.Fatalf("mempool size is %d, expected %d", l.MempoolSize(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProduceBlockOrder(t *testing.T) {
	c := qt.New(t)
	tl := newTestLedger(t, metadb.NewTest(t), Options{TxsPerBlock: 2})
	ctx := context.Background()

	names := []string{"Alice", "Bob", "Carol"}
	var results []<-chan error
	for i, name := range names {
		results = append(results, tl.sendAsync(ctx, tl.addCandidateTx(c, name)))
		waitMempool(c, tl.Ledger, i+1)
	}

	header, err := tl.ProduceBlock()
	c.Assert(err, qt.IsNil)
	c.Assert(header.Height, qt.Equals, uint64(1))
	c.Assert(header.TxCount, qt.Equals, 2)
	c.Assert(header.Time.Unix(), qt.Equals, t0-100)
	c.Assert(<-results[0], qt.IsNil)
	c.Assert(<-results[1], qt.IsNil)
	c.Assert(tl.MempoolSize(), qt.Equals, 1)

	header, err = tl.ProduceBlock()
	c.Assert(err, qt.IsNil)
	c.Assert(header.Height, qt.Equals, uint64(2))
	c.Assert(header.TxCount, qt.Equals, 1)
	c.Assert(<-results[2], qt.IsNil)
	c.Assert(tl.Height(), qt.Equals, uint64(2))

	candidates, err := tl.Orchestrator().Candidates()
	c.Assert(err, qt.IsNil)
	c.Assert(candidates, qt.HasLen, 3)
	for i, cand := range candidates {
		c.Assert(cand.Name, qt.Equals, names[i])
	}

	stored, err := tl.Block(1)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.TxCount, qt.Equals, 2)
	c.Assert(stored.TxHashes, qt.HasLen, 2)
	data, ref, err := tl.TxByHash(stored.TxHashes[1])
	c.Assert(err, qt.IsNil)
	c.Assert(*ref, qt.Equals, TxRef{Height: 1, Index: 1})
	c.Assert(data, qt.DeepEquals, tl.addCandidateTx(c, "Bob"))

	_, err = tl.Block(3)
	c.Assert(err, qt.ErrorIs, ErrBlockNotFound)
	_, err = tl.Tx(2, 1)
	c.Assert(err, qt.ErrorIs, ErrTxNotFound)
	_, _, err = tl.TxByHash([]byte{1, 2, 3})
	c.Assert(err, qt.ErrorIs, ErrTxNotFound)
}

func TestSendTxErrors(t *testing.T) {
	c := qt.New(t)
	tl := newTestLedger(t, metadb.NewTest(t), Options{})
	tl.Start(context.Background())
	defer tl.Stop()
	ctx := context.Background()

	// rejected on check, never reaches the mempool
	_, err := tl.SendTx(ctx, []byte{0x01})
	c.Assert(err, qt.ErrorIs, transaction.ErrInvalidTx)

	vote, err := transaction.Sign(&transaction.Tx{
		Type:     transaction.TxCastVote,
		CastVote: &transaction.CastVoteTx{Proof: &verifier.Proof{}, PubSignals: []string{"1", "0"}},
	}, nil, tl.ElectionID())
	c.Assert(err, qt.IsNil)
	_, err = tl.SendTx(ctx, vote)
	c.Assert(err, qt.ErrorIs, voting.ErrPhase)
	c.Assert(tl.MempoolSize(), qt.Equals, 0)
}

func TestDuplicateTx(t *testing.T) {
	c := qt.New(t)
	tl := newTestLedger(t, metadb.NewTest(t), Options{})
	ctx := context.Background()

	data := tl.addCandidateTx(c, "Alice")
	first := tl.sendAsync(ctx, data)
	waitMempool(c, tl.Ledger, 1)
	_, err := tl.SendTx(ctx, data)
	c.Assert(err, qt.ErrorIs, ErrTxExists)

	_, err = tl.ProduceBlock()
	c.Assert(err, qt.IsNil)
	c.Assert(<-first, qt.IsNil)
	_, err = tl.SendTx(ctx, data)
	c.Assert(err, qt.ErrorIs, ErrTxExists)

	// a nonce makes the same candidate a different transaction
	again := tl.signed(c, &transaction.Tx{
		Type:         transaction.TxAddCandidate,
		Nonce:        []byte{1},
		AddCandidate: &transaction.AddCandidateTx{Name: "Alice"},
	})
	second := tl.sendAsync(ctx, again)
	waitMempool(c, tl.Ledger, 1)
	_, err = tl.ProduceBlock()
	c.Assert(err, qt.IsNil)
	c.Assert(<-second, qt.IsNil)
	candidates, err := tl.Orchestrator().Candidates()
	c.Assert(err, qt.IsNil)
	c.Assert(candidates, qt.HasLen, 2)
}

func TestDeliveryFailure(t *testing.T) {
	c := qt.New(t)
	tl := newTestLedger(t, metadb.NewTest(t), Options{})
	ctx := context.Background()

	setup := []*transaction.Tx{
		{Type: transaction.TxAddCandidate, AddCandidate: &transaction.AddCandidateTx{Name: "Alice"}},
		{Type: transaction.TxSetVotingPeriod, SetVotingPeriod: transaction.NewSetVotingPeriodTx(
			phase.NewWindow(t0, t0+300, t0+301, t0+900))},
	}
	for _, tx := range setup {
		ch := tl.sendAsync(ctx, tl.signed(c, tx))
		waitMempool(c, tl.Ledger, 1)
		_, err := tl.ProduceBlock()
		c.Assert(err, qt.IsNil)
		c.Assert(<-ch, qt.IsNil)
	}

	tl.clock.set(400)
	proof := &verifier.Proof{A: []string{"1", "2"}, B: [][]string{{"3", "4"}, {"5", "6"}}, C: []string{"7", "8"}}
	signals := []string{"12345", "0"}
	tl.verifier.Accept(proof, signals)
	castVote := func(nonce byte) []byte {
		data, err := transaction.Sign(&transaction.Tx{
			Type:     transaction.TxCastVote,
			Nonce:    []byte{nonce},
			CastVote: &transaction.CastVoteTx{Proof: proof, PubSignals: signals},
		}, nil, tl.ElectionID())
		c.Assert(err, qt.IsNil)
		return data
	}

	// both pass the mempool check, only the first one is delivered
	first := tl.sendAsync(ctx, castVote(1))
	waitMempool(c, tl.Ledger, 1)
	second := tl.sendAsync(ctx, castVote(2))
	waitMempool(c, tl.Ledger, 2)

	header, err := tl.ProduceBlock()
	c.Assert(err, qt.IsNil)
	c.Assert(header.TxCount, qt.Equals, 1)
	c.Assert(<-first, qt.IsNil)
	c.Assert(<-second, qt.ErrorIs, voting.ErrAlreadyVoted)

	total, err := tl.Orchestrator().TotalVotes()
	c.Assert(err, qt.IsNil)
	c.Assert(total, qt.Equals, uint64(1))
	_, err = tl.Tx(header.Height, 1)
	c.Assert(err, qt.ErrorIs, ErrTxNotFound)
}

func TestSendTxResult(t *testing.T) {
	c := qt.New(t)
	tl := newTestLedger(t, metadb.NewTest(t), Options{BlockTimeTarget: 20 * time.Millisecond})
	tl.Start(context.Background())
	defer tl.Stop()

	var wg sync.WaitGroup
	results := make([]*TxResult, 4)
	txs := make([][]byte, len(results))
	for i := range txs {
		txs[i] = tl.addCandidateTx(c, string(rune('A'+i)))
	}
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := tl.SendTx(context.Background(), txs[i])
			c.Check(err, qt.IsNil)
			results[i] = res
		}(i)
	}
	wg.Wait()
	ids := map[uint32]bool{}
	for _, res := range results {
		c.Assert(res, qt.Not(qt.IsNil))
		c.Assert(res.Response.CandidateID, qt.Not(qt.IsNil))
		ids[*res.Response.CandidateID] = true
		data, err := tl.Tx(res.Height, res.Index)
		c.Assert(err, qt.IsNil)
		c.Assert(types.HexBytes(ethereum.HashRaw(data)), qt.DeepEquals, res.Hash)
	}
	c.Assert(ids, qt.HasLen, 4)
}

func TestSendTxContext(t *testing.T) {
	c := qt.New(t)
	tl := newTestLedger(t, metadb.NewTest(t), Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := tl.SendTx(ctx, tl.addCandidateTx(c, "Alice"))
	c.Assert(err, qt.ErrorIs, context.DeadlineExceeded)

	// the transaction is still delivered
	c.Assert(tl.MempoolSize(), qt.Equals, 1)
	header, err := tl.ProduceBlock()
	c.Assert(err, qt.IsNil)
	c.Assert(header.TxCount, qt.Equals, 1)
}

func TestStopFailsPending(t *testing.T) {
	c := qt.New(t)
	tl := newTestLedger(t, metadb.NewTest(t), Options{BlockTimeTarget: time.Hour})
	tl.Start(context.Background())
	ch := tl.sendAsync(context.Background(), tl.addCandidateTx(c, "Alice"))
	waitMempool(c, tl.Ledger, 1)
	tl.Stop()
	c.Assert(<-ch, qt.ErrorIs, ErrStopped)
	c.Assert(tl.MempoolSize(), qt.Equals, 0)

	_, err := tl.SendTx(context.Background(), tl.addCandidateTx(c, "Bob"))
	c.Assert(err, qt.ErrorIs, ErrStopped)
	c.Assert(tl.MempoolSize(), qt.Equals, 0)
}

func TestReplayedVote(t *testing.T) {
	c := qt.New(t)
	tl := newTestLedger(t, metadb.NewTest(t), Options{})
	ctx := context.Background()
	for _, tx := range []*transaction.Tx{
		{Type: transaction.TxAddCandidate, AddCandidate: &transaction.AddCandidateTx{Name: "Alice"}},
		{Type: transaction.TxSetVotingPeriod, SetVotingPeriod: transaction.NewSetVotingPeriodTx(
			phase.NewWindow(t0, t0+300, t0+301, t0+900))},
	} {
		ch := tl.sendAsync(ctx, tl.signed(c, tx))
		waitMempool(c, tl.Ledger, 1)
		_, err := tl.ProduceBlock()
		c.Assert(err, qt.IsNil)
		c.Assert(<-ch, qt.IsNil)
	}

	tl.clock.set(400)
	proof := &verifier.Proof{A: []string{"1", "2"}, B: [][]string{{"3", "4"}, {"5", "6"}}, C: []string{"7", "8"}}
	signals := []string{"777", "0"}
	tl.verifier.Accept(proof, signals)
	vote, err := transaction.Sign(&transaction.Tx{
		Type:     transaction.TxCastVote,
		CastVote: &transaction.CastVoteTx{Proof: proof, PubSignals: signals},
	}, nil, tl.ElectionID())
	c.Assert(err, qt.IsNil)
	ch := tl.sendAsync(ctx, vote)
	waitMempool(c, tl.Ledger, 1)
	_, err = tl.ProduceBlock()
	c.Assert(err, qt.IsNil)
	c.Assert(<-ch, qt.IsNil)

	// the same bytes again fail on the nullifier, not on the tx hash
	_, err = tl.SendTx(ctx, vote)
	c.Assert(err, qt.ErrorIs, voting.ErrAlreadyVoted)
	c.Assert(err, qt.Not(qt.ErrorIs), ErrTxExists)
	c.Assert(tl.MempoolSize(), qt.Equals, 0)
}

func TestReopen(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	database, err := metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)
	tl := newTestLedger(t, database, Options{})
	ch := tl.sendAsync(context.Background(), tl.addCandidateTx(c, "Alice"))
	waitMempool(c, tl.Ledger, 1)
	_, err = tl.ProduceBlock()
	c.Assert(err, qt.IsNil)
	c.Assert(<-ch, qt.IsNil)
	_, err = tl.ProduceBlock()
	c.Assert(err, qt.IsNil)
	c.Assert(database.Close(), qt.IsNil)

	database, err = metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)
	defer database.Close()
	tl = newTestLedger(t, database, Options{})
	c.Assert(tl.Height(), qt.Equals, uint64(2))
	header, err := tl.Block(1)
	c.Assert(err, qt.IsNil)
	c.Assert(header.TxCount, qt.Equals, 1)
	candidates, err := tl.Orchestrator().Candidates()
	c.Assert(err, qt.IsNil)
	c.Assert(candidates, qt.HasLen, 1)
}
