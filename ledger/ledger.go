// Package ledger runs the ballot transactions as a single node chain: a FIFO
// mempool, a block production loop and a store of the delivered transactions.
package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/enriquebris/goconcurrentqueue"
	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/zkballot/crypto/ethereum"
	"go.vocdoni.io/zkballot/db"
	"go.vocdoni.io/zkballot/log"
	"go.vocdoni.io/zkballot/transaction"
	"go.vocdoni.io/zkballot/types"
	"go.vocdoni.io/zkballot/voting"
)

const (
	DefaultTxsPerBlock     = 500
	DefaultBlockTimeTarget = time.Second * 5
	DefaultMempoolSize     = 10 << 10
)

var (
	// ErrMempoolFull is returned by SendTx when the mempool cannot take more
	// transactions.
	ErrMempoolFull = fmt.Errorf("mempool is full")
	// ErrTxExists is returned for a transaction already pending, or already
	// delivered when its checks still pass.
	ErrTxExists = fmt.Errorf("transaction already exists")
	// ErrTxNotFound is returned by the transaction queries.
	ErrTxNotFound = fmt.Errorf("transaction not found")
	// ErrBlockNotFound is returned by Block for unknown heights.
	ErrBlockNotFound = fmt.Errorf("block not found")
	// ErrStopped is returned to pending and later submitters once the ledger
	// stops.
	ErrStopped = fmt.Errorf("ledger stopped")
)

// Options configures a Ledger. Zero values take the defaults.
type Options struct {
	TxsPerBlock     int
	BlockTimeTarget time.Duration
	MempoolSize     int
	// Clock returns the current time. The time of a block is the clock value
	// when the block is produced, and it is the time seen by every transaction
	// of that block.
	Clock func() time.Time
}

// TxResult is returned to the submitter of a delivered transaction.
type TxResult struct {
	Hash     types.HexBytes                   `json:"hash"`
	Height   uint64                           `json:"height"`
	Index    int                              `json:"index"`
	Response *transaction.TransactionResponse `json:"response,omitempty"`
}

type delivery struct {
	result *TxResult
	err    error
}

type pendingTx struct {
	data []byte
	hash []byte
	done chan delivery
}

// Ledger is a single node ledger. Transactions are checked on submission and
// delivered in submission order by the block loop.
type Ledger struct {
	handler      *transaction.TransactionHandler
	orchestrator *voting.Orchestrator
	mempool      *goconcurrentqueue.FixedFIFO
	blockStore   db.Database
	height       atomic.Uint64
	clock        func() time.Time

	txsPerBlock     int
	blockTimeTarget time.Duration

	pendingMu sync.Mutex
	pending   map[string]*pendingTx
	stopped   bool

	// produceMu serializes block production
	produceMu sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	onBlock func(*BlockHeader)
}

// New returns a Ledger delivering to o and storing blocks in blockStore. The
// height is restored from blockStore.
func New(o *voting.Orchestrator, blockStore db.Database, opts Options) (*Ledger, error) {
	handler, err := transaction.NewTransactionHandler(o)
	if err != nil {
		return nil, err
	}
	if opts.TxsPerBlock <= 0 {
		opts.TxsPerBlock = DefaultTxsPerBlock
	}
	if opts.BlockTimeTarget <= 0 {
		opts.BlockTimeTarget = DefaultBlockTimeTarget
	}
	if opts.MempoolSize <= 0 {
		opts.MempoolSize = DefaultMempoolSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	l := &Ledger{
		handler:         handler,
		orchestrator:    o,
		mempool:         goconcurrentqueue.NewFixedFIFO(opts.MempoolSize),
		blockStore:      blockStore,
		clock:           opts.Clock,
		txsPerBlock:     opts.TxsPerBlock,
		blockTimeTarget: opts.BlockTimeTarget,
		pending:         make(map[string]*pendingTx),
	}
	height, err := storedHeight(blockStore)
	if err != nil {
		return nil, err
	}
	l.height.Store(height)
	return l, nil
}

// OnBlock sets a function called after every committed block. It must be
// set before Start.
func (l *Ledger) OnBlock(fn func(*BlockHeader)) {
	l.onBlock = fn
}

// Orchestrator returns the orchestrator transactions are delivered to.
func (l *Ledger) Orchestrator() *voting.Orchestrator {
	return l.orchestrator
}

// ElectionID returns the id signed transactions are bound to.
func (l *Ledger) ElectionID() string {
	return l.handler.ElectionID()
}

// Now returns the current ledger time.
func (l *Ledger) Now() time.Time {
	return l.clock()
}

// Start runs the block production loop until ctx is done or Stop is called.
func (l *Ledger) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.blockTimeTarget)
		defer ticker.Stop()
		log.Infow("ledger started", "height", l.Height(), "blockTime", l.blockTimeTarget.String())
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := l.ProduceBlock(); err != nil {
					log.Errorw(err, "cannot produce block")
				}
			}
		}
	}()
}

// Stop stops the block loop, waits for it and fails every pending
// transaction with ErrStopped. Later submissions fail with ErrStopped.
func (l *Ledger) Stop() {
	l.pendingMu.Lock()
	l.stopped = true
	l.pendingMu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	l.produceMu.Lock()
	defer l.produceMu.Unlock()
	for {
		item, err := l.mempool.Dequeue()
		if err != nil {
			break
		}
		l.finish(item.(*pendingTx), delivery{err: ErrStopped})
	}
}

// SendTx checks the transaction and waits until it is delivered in a block.
// A delivery failure is returned as is, so the voting sentinels can be
// matched with errors.Is. If ctx is done first, the transaction stays in the
// mempool and ctx.Err() is returned.
func (l *Ledger) SendTx(ctx context.Context, data []byte) (*TxResult, error) {
	ptx, err := l.addTx(data)
	if err != nil {
		return nil, err
	}
	select {
	case d := <-ptx.done:
		return d.result, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Ledger) addTx(data []byte) (*pendingTx, error) {
	hash := ethereum.HashRaw(data)
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	if l.stopped {
		return nil, ErrStopped
	}
	if _, ok := l.pending[string(hash)]; ok {
		return nil, fmt.Errorf("%w: %x is pending", ErrTxExists, hash)
	}
	// a replayed vote fails here with its nullifier error
	if _, err := l.handler.CheckTx(data, l.clock()); err != nil {
		log.Debugw("checkTx failed", "hash", fmt.Sprintf("%x", hash), "error", err.Error())
		return nil, err
	}
	if _, err := l.blockStore.Get(hashKey(hash)); err == nil {
		return nil, fmt.Errorf("%w: %x", ErrTxExists, hash)
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, err
	}
	ptx := &pendingTx{data: data, hash: hash, done: make(chan delivery, 1)}
	if err := l.mempool.Enqueue(ptx); err != nil {
		return nil, ErrMempoolFull
	}
	l.pending[string(hash)] = ptx
	return ptx, nil
}

func (l *Ledger) finish(ptx *pendingTx, d delivery) {
	l.pendingMu.Lock()
	delete(l.pending, string(ptx.hash))
	l.pendingMu.Unlock()
	ptx.done <- d
}

// ProduceBlock delivers up to TxsPerBlock transactions from the mempool and
// commits a new block. It is called by the block loop, and can be called
// directly when the loop is not running.
func (l *Ledger) ProduceBlock() (*BlockHeader, error) {
	l.produceMu.Lock()
	defer l.produceMu.Unlock()

	header := &BlockHeader{
		Height: l.height.Load() + 1,
		Time:   l.clock().Truncate(time.Second).UTC(),
	}
	wtx := l.blockStore.WriteTx()
	defer wtx.Discard()

	var delivered []delivery
	var deliveredTxs []*pendingTx
	for header.TxCount < l.txsPerBlock {
		item, err := l.mempool.Dequeue()
		if err != nil {
			break
		}
		ptx := item.(*pendingTx)
		resp, err := l.handler.DeliverTx(ptx.data, header.Height, header.Time)
		if err != nil {
			log.Warnw("deliver tx failed", "hash", fmt.Sprintf("%x", ptx.hash), "error", err.Error())
			l.finish(ptx, delivery{err: err})
			continue
		}
		ref := TxRef{Height: header.Height, Index: header.TxCount}
		deliveredTxs = append(deliveredTxs, ptx)
		if err := storeTx(wtx, ref, ptx); err != nil {
			l.failAll(deliveredTxs, err)
			return nil, err
		}
		header.TxHashes = append(header.TxHashes, ptx.hash)
		header.TxCount++
		delivered = append(delivered, delivery{result: &TxResult{
			Hash:     ptx.hash,
			Height:   ref.Height,
			Index:    ref.Index,
			Response: resp,
		}})
	}

	if err := storeHeader(wtx, header); err != nil {
		l.failAll(deliveredTxs, err)
		return nil, err
	}
	if err := wtx.Commit(); err != nil {
		err = fmt.Errorf("cannot commit to blockstore: %w", err)
		l.failAll(deliveredTxs, err)
		return nil, err
	}
	l.height.Store(header.Height)
	if err := l.orchestrator.State().Commit(header.Height); err != nil {
		log.Warnw("event listener commit failed", "height", header.Height, "error", err.Error())
	}
	for i, ptx := range deliveredTxs {
		l.finish(ptx, delivered[i])
	}
	if header.TxCount > 0 {
		log.Infow("block committed", "height", header.Height, "txs", header.TxCount)
	}
	if l.onBlock != nil {
		l.onBlock(header)
	}
	return header, nil
}

// failAll reports err to the submitters of txs. Their state changes are
// already applied, only the block record is lost.
func (l *Ledger) failAll(txs []*pendingTx, err error) {
	for _, ptx := range txs {
		l.finish(ptx, delivery{err: err})
	}
}

func storeTx(wtx db.WriteTx, ref TxRef, ptx *pendingTx) error {
	refBytes, err := encMode.Marshal(ref)
	if err != nil {
		return err
	}
	if err := wtx.Set(txKey(ref.Height, ref.Index), ptx.data); err != nil {
		return err
	}
	return wtx.Set(hashKey(ptx.hash), refBytes)
}

func storeHeader(wtx db.WriteTx, header *BlockHeader) error {
	headerBytes, err := encMode.Marshal(header)
	if err != nil {
		return err
	}
	if err := wtx.Set(headerKey(header.Height), headerBytes); err != nil {
		return err
	}
	return wtx.Set(heightKey, binary.BigEndian.AppendUint64(nil, header.Height))
}

// Height returns the height of the last committed block.
func (l *Ledger) Height() uint64 {
	return l.height.Load()
}

// MempoolSize returns the number of transactions waiting for a block.
func (l *Ledger) MempoolSize() int {
	return l.mempool.GetLen()
}

// Block returns the header of the block at height.
func (l *Ledger) Block(height uint64) (*BlockHeader, error) {
	v, err := l.blockStore.Get(headerKey(height))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, height)
	}
	if err != nil {
		return nil, err
	}
	header := &BlockHeader{}
	if err := cbor.Unmarshal(v, header); err != nil {
		return nil, err
	}
	return header, nil
}

// Tx returns the raw transaction stored at height and index.
func (l *Ledger) Tx(height uint64, index int) ([]byte, error) {
	v, err := l.blockStore.Get(txKey(height, index))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %d_%d", ErrTxNotFound, height, index)
	}
	return v, err
}

// TxByHash returns a delivered transaction and its location.
func (l *Ledger) TxByHash(hash []byte) ([]byte, *TxRef, error) {
	v, err := l.blockStore.Get(hashKey(hash))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil, fmt.Errorf("%w: %x", ErrTxNotFound, hash)
	}
	if err != nil {
		return nil, nil, err
	}
	ref := &TxRef{}
	if err := cbor.Unmarshal(v, ref); err != nil {
		return nil, nil, err
	}
	data, err := l.Tx(ref.Height, ref.Index)
	if err != nil {
		return nil, nil, err
	}
	return data, ref, nil
}
