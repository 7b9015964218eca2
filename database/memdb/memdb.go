// Modified for Quarry
// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package memdb

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/database"
	"quarrychain.org/quarry-core/wire"
)

// txRecord locates a confirmed transaction and tracks per-output spenders.
type txRecord struct {
	height  uint64
	index   int
	spentBy []uint64
}

// MemDb is a concrete implementation of the database.Db interface which
// provides a memory-only database.  Since it is memory-only, it is obviously
// not persistent and is mostly useful for testing purposes.
type MemDb struct {
	database.WriteSeqLock

	// Embedded Lock protects the maps below.  It is not the write
	// bracket; writers are serialized by the chain above this layer.
	sync.RWMutex

	closed         bool
	blocksBySha    map[wire.Hash]uint64
	blocks         []*chainutil.Block
	txns           map[wire.Hash]*txRecord
	droppedTxns    map[wire.Hash]*txRecord
	flushRequested bool
}

var self = database.DriverDB{DbType: "memdb", CreateDB: CreateDB, OpenDB: OpenDB}

func init() {
	database.AddDBDriver(self)
}

// CreateDB creates a new memory-only database.
func CreateDB(args ...interface{}) (database.Db, error) {
	return newMemDb(), nil
}

// OpenDB opens a memory database; since nothing persists, this is create.
func OpenDB(args ...interface{}) (database.Db, error) {
	return newMemDb(), nil
}

func newMemDb() *MemDb {
	return &MemDb{
		blocksBySha: make(map[wire.Hash]uint64),
		txns:        make(map[wire.Hash]*txRecord),
		droppedTxns: make(map[wire.Hash]*txRecord),
	}
}

// Close cleanly shuts down the database.
func (db *MemDb) Close() error {
	db.Lock()
	defer db.Unlock()

	if db.closed {
		return errors.New("memdb already closed")
	}
	db.blocksBySha = nil
	db.blocks = nil
	db.txns = nil
	db.droppedTxns = nil
	db.closed = true
	return nil
}

// ExistsSha returns whether or not the given block hash is present in the
// database.
func (db *MemDb) ExistsSha(sha *wire.Hash) (bool, error) {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return false, errors.New("memdb closed")
	}
	_, exists := db.blocksBySha[*sha]
	return exists, nil
}

// FetchBlockBySha returns a chainutil.Block for the given hash.
func (db *MemDb) FetchBlockBySha(sha *wire.Hash) (*chainutil.Block, error) {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return nil, errors.New("memdb closed")
	}
	height, exists := db.blocksBySha[*sha]
	if !exists {
		return nil, database.ErrBlockShaMissing
	}
	return db.blocks[height], nil
}

// FetchBlockHeightBySha returns the main chain height of the given hash.
func (db *MemDb) FetchBlockHeightBySha(sha *wire.Hash) (uint64, error) {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return 0, errors.New("memdb closed")
	}
	height, exists := db.blocksBySha[*sha]
	if !exists {
		return 0, database.ErrBlockShaMissing
	}
	return height, nil
}

// FetchBlockShaByHeight returns the hash of the main chain block at the
// given height.
func (db *MemDb) FetchBlockShaByHeight(height uint64) (*wire.Hash, error) {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return nil, errors.New("memdb closed")
	}
	if height >= uint64(len(db.blocks)) {
		return nil, database.ErrBlockShaMissing
	}
	return db.blocks[height].Hash(), nil
}

// FetchBlockHeaderByHeight returns the header of the main chain block at the
// given height.
func (db *MemDb) FetchBlockHeaderByHeight(height uint64) (*wire.BlockHeader, error) {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return nil, errors.New("memdb closed")
	}
	if height >= uint64(len(db.blocks)) {
		return nil, database.ErrBlockShaMissing
	}
	header := db.blocks[height].MsgBlock().Header
	return &header, nil
}

// NewestSha returns the hash and height of the most recent block.
func (db *MemDb) NewestSha() (*wire.Hash, uint64, error) {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return nil, 0, errors.New("memdb closed")
	}
	if len(db.blocks) == 0 {
		return &wire.Hash{}, chainutil.BlockHeightUnknown, nil
	}
	tip := db.blocks[len(db.blocks)-1]
	return tip.Hash(), uint64(len(db.blocks) - 1), nil
}

// ExistsTxSha returns whether or not the given tx hash is present.
func (db *MemDb) ExistsTxSha(sha *wire.Hash) (bool, error) {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return false, errors.New("memdb closed")
	}
	_, exists := db.txns[*sha]
	return exists, nil
}

// FetchTxBySha returns transaction data for the given hash.
func (db *MemDb) FetchTxBySha(sha *wire.Hash) (*database.TxReply, error) {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return nil, errors.New("memdb closed")
	}
	rec, exists := db.txns[*sha]
	if !exists {
		return nil, database.ErrTxShaMissing
	}

	msgTx := db.blocks[rec.height].MsgBlock().Transactions[rec.index]
	spent := make([]bool, len(rec.spentBy))
	for i, by := range rec.spentBy {
		spent[i] = by != database.UnspentHeight
	}
	return &database.TxReply{
		Sha:     sha,
		Tx:      msgTx,
		Height:  rec.height,
		TxSpent: spent,
	}, nil
}

// FetchOutput resolves a confirmed output together with its confirmation
// height and spend marker.
func (db *MemDb) FetchOutput(op *wire.OutPoint) (*database.OutputReply, error) {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return nil, errors.New("memdb closed")
	}
	rec, exists := db.txns[op.Hash]
	if !exists {
		return nil, database.ErrTxShaMissing
	}

	msgTx := db.blocks[rec.height].MsgBlock().Transactions[rec.index]
	if op.Index >= uint32(len(msgTx.TxOut)) {
		return nil, fmt.Errorf("output index %d out of range for "+
			"transaction %v", op.Index, op.Hash)
	}

	return &database.OutputReply{
		TxOut:    msgTx.TxOut[op.Index],
		Height:   rec.height,
		Coinbase: rec.index == 0,
		SpentBy:  rec.spentBy[op.Index],
	}, nil
}

// InsertBlock places a known-good block at a specific height.
func (db *MemDb) InsertBlock(block *chainutil.Block, height uint64) error {
	db.Lock()
	defer db.Unlock()

	if db.closed {
		return errors.New("memdb closed")
	}
	if height != uint64(len(db.blocks)) {
		return fmt.Errorf("insert height %d out of order, next %d",
			height, len(db.blocks))
	}
	return db.connect(block, height)
}

// PushBlock appends the block to the confirmed tip.
func (db *MemDb) PushBlock(block *chainutil.Block) error {
	db.Lock()
	defer db.Unlock()

	if db.closed {
		return errors.New("memdb closed")
	}

	height := uint64(len(db.blocks))
	if height > 0 {
		prev := db.blocks[height-1].Hash()
		if !block.MsgBlock().Header.Previous.IsEqual(prev) {
			return database.ErrPrevShaMissing
		}
	}
	return db.connect(block, height)
}

// connect indexes the block at the given height.  Caller holds the lock.
func (db *MemDb) connect(block *chainutil.Block, height uint64) error {
	sha := block.Hash()
	if _, exists := db.blocksBySha[*sha]; exists {
		return database.ErrDuplicateSha
	}

	db.blocks = append(db.blocks, block)
	db.blocksBySha[*sha] = height
	block.SetHeight(height)

	for i, tx := range block.MsgBlock().Transactions {
		txSha := tx.TxHash()
		spentBy := make([]uint64, len(tx.TxOut))
		for j := range spentBy {
			spentBy[j] = database.UnspentHeight
		}
		db.txns[txSha] = &txRecord{height: height, index: i, spentBy: spentBy}

		if i == 0 {
			continue
		}
		for _, txIn := range tx.TxIn {
			if rec, ok := db.txns[txIn.PreviousOutPoint.Hash]; ok {
				idx := txIn.PreviousOutPoint.Index
				if idx < uint32(len(rec.spentBy)) {
					rec.spentBy[idx] = height
				}
			}
		}
	}
	return nil
}

// disconnect removes the current tip block from the indices.  Caller holds
// the lock.
func (db *MemDb) disconnect() (*chainutil.Block, error) {
	if len(db.blocks) == 0 {
		return nil, database.ErrBlockShaMissing
	}

	height := uint64(len(db.blocks) - 1)
	block := db.blocks[height]

	for i := len(block.MsgBlock().Transactions) - 1; i >= 0; i-- {
		tx := block.MsgBlock().Transactions[i]
		txSha := tx.TxHash()
		delete(db.txns, txSha)

		if i == 0 {
			continue
		}
		for _, txIn := range tx.TxIn {
			if rec, ok := db.txns[txIn.PreviousOutPoint.Hash]; ok {
				idx := txIn.PreviousOutPoint.Index
				if idx < uint32(len(rec.spentBy)) && rec.spentBy[idx] == height {
					rec.spentBy[idx] = database.UnspentHeight
				}
			}
		}
	}

	delete(db.blocksBySha, *block.Hash())
	db.blocks = db.blocks[:height]
	return block, nil
}

// PopAbove removes all blocks strictly above the given hash, top-first.
func (db *MemDb) PopAbove(forkSha *wire.Hash) ([]*chainutil.Block, error) {
	db.Lock()
	defer db.Unlock()

	if db.closed {
		return nil, errors.New("memdb closed")
	}
	forkHeight, exists := db.blocksBySha[*forkSha]
	if !exists {
		return nil, database.ErrBlockShaMissing
	}

	var popped []*chainutil.Block
	for uint64(len(db.blocks)) > forkHeight+1 {
		block, err := db.disconnect()
		if err != nil {
			return popped, err
		}
		popped = append(popped, block)
	}
	return popped, nil
}

// Reorganize atomically pops every block above forkSha and pushes the
// incoming blocks in their place.
func (db *MemDb) Reorganize(forkSha *wire.Hash, incoming []*chainutil.Block) ([]*chainutil.Block, error) {
	db.Lock()
	defer db.Unlock()

	if db.closed {
		return nil, errors.New("memdb closed")
	}
	forkHeight, exists := db.blocksBySha[*forkSha]
	if !exists {
		return nil, database.ErrBlockShaMissing
	}

	// Reject duplicate incoming hashes before mutating, so a failure
	// leaves the chain unchanged.  Blocks above the fork point are popped
	// first and may be pushed again.
	seen := make(map[wire.Hash]struct{}, len(incoming))
	for _, block := range incoming {
		sha := *block.Hash()
		if height, exists := db.blocksBySha[sha]; exists && height <= forkHeight {
			return nil, database.ErrDuplicateSha
		}
		if _, dup := seen[sha]; dup {
			return nil, database.ErrDuplicateSha
		}
		seen[sha] = struct{}{}
	}

	var popped []*chainutil.Block
	for uint64(len(db.blocks)) > forkHeight+1 {
		block, err := db.disconnect()
		if err != nil {
			return popped, err
		}
		popped = append(popped, block)
	}

	for _, block := range incoming {
		if err := db.connect(block, uint64(len(db.blocks))); err != nil {
			return popped, err
		}
	}
	return popped, nil
}

// BeginWrite drives the sequence lock; memdb mutators take their own lock
// per call.
func (db *MemDb) BeginWrite() {
	db.WriteSeqLock.BeginWrite()
}

// EndWrite completes the write bracket.  Flushing is a no-op for a memory
// database.
func (db *MemDb) EndWrite(flush bool) error {
	db.flushRequested = flush
	db.WriteSeqLock.EndWrite()
	return nil
}
