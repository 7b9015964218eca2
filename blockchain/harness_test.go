package blockchain

import (
	"encoding/binary"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/davecgh/go-spew/spew"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/config"
	"quarrychain.org/quarry-core/consensus"
	"quarrychain.org/quarry-core/database"
	"quarrychain.org/quarry-core/database/memdb"
	"quarrychain.org/quarry-core/txscript"
	"quarrychain.org/quarry-core/wire"
)

// testHarness wires an organizer over a memory store for package tests.
type testHarness struct {
	t *testing.T

	params    consensus.Params
	db        database.Db
	fastChain *FastChain

	dispatcher *Dispatcher
	populator  *ChainStatePopulator
	validator  *Validator
	pool       *BlockPool
	organizer  *Organizer

	chainLock sync.Mutex

	key      *btcec.PrivateKey
	pkScript []byte

	genesis *chainutil.Block
}

// newTestHarness builds a started organizer over a fresh memdb seeded with
// the regression network genesis block.  The coinbase maturity is lowered
// to one block so spend scenarios stay small.
func newTestHarness(t *testing.T) *testHarness {
	return newTestHarnessWithDb(t, nil)
}

func newTestHarnessWithDb(t *testing.T, db database.Db) *testHarness {
	h := &testHarness{t: t}
	h.params = consensus.RegressionNetParams
	h.params.CoinbaseMaturity = 1

	if db == nil {
		var err error
		db, err = memdb.CreateDB()
		if err != nil {
			t.Fatalf("create memdb: %v", err)
		}
	}
	h.db = db
	h.fastChain = NewFastChain(db)

	key, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	h.key = key
	h.pkScript, err = txscript.PayToPubKeyScript(key.PubKey().SerializeCompressed())
	if err != nil {
		t.Fatalf("build pkScript: %v", err)
	}

	h.genesis = chainutil.NewBlock(h.params.GenesisBlock)
	if err := h.fastChain.Push(h.genesis); err != nil {
		t.Fatalf("push genesis: %v", err)
	}

	cfg := &config.ChainConfig{
		ReorganizationLimit: 100,
		Cores:               2,
		RelayTransactions:   true,
	}

	h.dispatcher = NewDispatcher(cfg.Cores, false)
	h.dispatcher.Start()

	h.populator = NewChainStatePopulator(h.fastChain, &h.params)
	h.validator = NewValidator(h.fastChain, h.populator, h.dispatcher,
		txscript.NewSigCache(1000), &h.params, NewMedianTime(), cfg)
	h.pool = NewBlockPool(cfg.ReorganizationLimit)
	h.organizer = NewOrganizer(&h.chainLock, h.fastChain, h.pool,
		h.validator, h.populator, cfg)
	h.organizer.Start()

	t.Cleanup(func() {
		h.organizer.Stop()
		h.dispatcher.Stop()
	})
	return h
}

// heightPayload returns a coinbase payload committing to the serialized
// block height, optionally followed by a tag byte to vary sibling blocks.
func heightPayload(height uint64, tag ...byte) []byte {
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], height)

	n := 1
	for i := 7; i > 0; i-- {
		if scratch[i] != 0 {
			n = i + 1
			break
		}
	}

	payload := append([]byte{byte(n)}, scratch[:n]...)
	return append(payload, tag...)
}

// createCoinbase builds the coinbase transaction for a block at the given
// height paying the full subsidy plus fees to the harness key.
func (h *testHarness) createCoinbase(height uint64, fees int64, tag ...byte) *wire.MsgTx {
	coinbase := wire.NewMsgTx()
	coinbase.Payload = heightPayload(height, tag...)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&wire.Hash{}, wire.MaxPrevOutIndex),
		Sequence:         wire.MaxTxInSequenceNum,
	})
	value := CalcBlockSubsidy(height, h.params.SubsidyHalvingInterval) + fees
	coinbase.AddTxOut(wire.NewTxOut(value, h.pkScript))
	return coinbase
}

// spendTx builds and signs a transaction spending output outIdx of the
// origin transaction, paying value back to the harness key.  The remainder
// is left as fee.
func (h *testHarness) spendTx(origin *wire.MsgTx, outIdx uint32, value int64) *wire.MsgTx {
	originHash := origin.TxHash()
	tx := wire.NewMsgTx()
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&originHash, outIdx),
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(value, h.pkScript))

	prevOut := origin.TxOut[outIdx]
	sigHash := txscript.CalcSignatureHash(tx, 0, prevOut.PkScript,
		prevOut.Value, txscript.SigHashAll)
	sig, err := h.key.Sign(sigHash)
	if err != nil {
		h.t.Fatalf("sign spend: %v", err)
	}
	tx.TxIn[0].Witness = wire.TxWitness{sig.Serialize()}
	return tx
}

// solveHeader grinds the nonce until the header hash satisfies its target.
func solveHeader(header *wire.BlockHeader) {
	target := CompactToBig(header.Bits)
	for {
		hash := header.BlockHash()
		if new(big.Int).SetBytes(hash[:]).Cmp(target) <= 0 {
			return
		}
		header.Nonce++
	}
}

// buildBlock assembles and mines a block on the given parent.  The tag
// varies the coinbase so sibling blocks at the same height get distinct
// hashes.
func (h *testHarness) buildBlock(parent *chainutil.Block, parentHeight uint64,
	tag byte, extraTxs ...*wire.MsgTx) *chainutil.Block {

	return h.buildBlockOnHash(*parent.Hash(),
		parent.MsgBlock().Header.Timestamp, parentHeight, tag, extraTxs...)
}

// buildBlockOnHash mines a block chaining from an arbitrary previous hash,
// which need not identify a known block.
func (h *testHarness) buildBlockOnHash(prevHash wire.Hash,
	prevTimestamp time.Time, parentHeight uint64, tag byte,
	extraTxs ...*wire.MsgTx) *chainutil.Block {

	height := parentHeight + 1
	var fees int64
	// Fees are whatever the extra transactions leave on the table; the
	// coinbase does not claim them here, it pays subsidy only, which is
	// always within bounds.
	txns := []*wire.MsgTx{h.createCoinbase(height, fees, tag)}
	txns = append(txns, extraTxs...)

	wrapped := make([]*chainutil.Tx, len(txns))
	for i, tx := range txns {
		wrapped[i] = chainutil.NewTx(tx)
	}
	merkles := BuildMerkleTreeStore(wrapped)

	header := wire.BlockHeader{
		Version:    wire.BlockVersion,
		Previous:   prevHash,
		MerkleRoot: *merkles[len(merkles)-1],
		Timestamp:  prevTimestamp.Add(10 * time.Minute),
		Bits:       h.params.PowLimitBits,
	}
	solveHeader(&header)

	msgBlock := &wire.MsgBlock{Header: header, Transactions: txns}
	return chainutil.NewBlock(msgBlock)
}

// extendTip organizes count blocks on top of the current confirmed tip and
// returns them.
func (h *testHarness) extendTip(count int) []*chainutil.Block {
	var blocks []*chainutil.Block
	parent, parentHeight := h.tip()
	for i := 0; i < count; i++ {
		block := h.buildBlock(parent, parentHeight, 0)
		if err := h.organizer.Organize(block); err != nil {
			h.t.Fatalf("organize block %d: %v", parentHeight+1, err)
		}
		blocks = append(blocks, block)
		parent = block
		parentHeight++
	}
	return blocks
}

// tip returns the confirmed tip block and height.
func (h *testHarness) tip() (*chainutil.Block, uint64) {
	sha, height, err := h.db.NewestSha()
	if err != nil {
		h.t.Fatalf("newest sha: %v", err)
	}
	block, err := h.db.FetchBlockBySha(sha)
	if err != nil {
		h.t.Fatalf("fetch tip: %v", err)
	}
	return block, height
}

// confirmedWorkFrom sums the confirmed proof from the given height to the
// tip without a short-circuit bound, for property assertions.
func (h *testHarness) confirmedWorkFrom(fromHeight uint64) *big.Int {
	_, tipHeight := h.tip()
	sum := new(big.Int)
	for height := fromHeight; height <= tipHeight; height++ {
		header, err := h.db.FetchBlockHeaderByHeight(height)
		if err != nil {
			h.t.Fatalf("fetch header %d: %v", height, err)
		}
		sum.Add(sum, CalcWork(header.Bits))
	}
	return sum
}

// reorgRecorder captures subscriber events for assertions.
type reorgRecorder struct {
	mtx    sync.Mutex
	events []reorgNotification
	signal chan struct{}
}

func newReorgRecorder() *reorgRecorder {
	return &reorgRecorder{signal: make(chan struct{}, 64)}
}

func (r *reorgRecorder) handler() ReorganizeHandler {
	return func(err error, forkHeight uint64, incoming, outgoing []*chainutil.Block) {
		r.mtx.Lock()
		r.events = append(r.events, reorgNotification{
			err:        err,
			forkHeight: forkHeight,
			incoming:   incoming,
			outgoing:   outgoing,
		})
		r.mtx.Unlock()
		r.signal <- struct{}{}
	}
}

// wait blocks until count events have arrived or the timeout elapses.
func (r *reorgRecorder) wait(t *testing.T, count int) []reorgNotification {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		r.mtx.Lock()
		n := len(r.events)
		r.mtx.Unlock()
		if n >= count {
			break
		}
		select {
		case <-r.signal:
		case <-deadline:
			r.mtx.Lock()
			dump := spew.Sdump(r.events)
			r.mtx.Unlock()
			t.Fatalf("timed out waiting for %d reorg events, have %d: %s",
				count, n, dump)
		}
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()
	events := make([]reorgNotification, len(r.events))
	copy(events, r.events)
	return events
}
