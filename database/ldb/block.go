// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ldb

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/database"
	"quarrychain.org/quarry-core/wire"
)

// Key layout:
//
//	b:h:<8-byte big endian height> -> serialized block
//	b:s:<32-byte sha>              -> 8-byte big endian height
//	b:tip                          -> 8-byte big endian height
//	t:<32-byte sha>                -> tx record (see tx.go)
var (
	blockHeightPrefix = []byte("b:h:")
	blockShaPrefix    = []byte("b:s:")
)

func tipKey() []byte {
	return []byte("b:tip")
}

func blockHeightKey(height uint64) []byte {
	key := make([]byte, len(blockHeightPrefix)+8)
	copy(key, blockHeightPrefix)
	binary.BigEndian.PutUint64(key[len(blockHeightPrefix):], height)
	return key
}

func blockShaKey(sha *wire.Hash) []byte {
	key := make([]byte, len(blockShaPrefix)+wire.HashSize)
	copy(key, blockShaPrefix)
	copy(key[len(blockShaPrefix):], sha[:])
	return key
}

// ExistsSha returns whether or not the given block hash is present in the
// database.
func (db *LevelDb) ExistsSha(sha *wire.Hash) (bool, error) {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	return db.lDb.Has(blockShaKey(sha), db.ro)
}

// FetchBlockBySha returns a chainutil.Block for the given hash.
func (db *LevelDb) FetchBlockBySha(sha *wire.Hash) (*chainutil.Block, error) {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	height, err := db.fetchBlockHeightBySha(sha)
	if err != nil {
		return nil, err
	}
	return db.fetchBlockByHeight(height)
}

func (db *LevelDb) fetchBlockByHeight(height uint64) (*chainutil.Block, error) {
	raw, err := db.lDb.Get(blockHeightKey(height), db.ro)
	if err == leveldb.ErrNotFound {
		return nil, database.ErrBlockShaMissing
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetch block")
	}

	block, err := chainutil.NewBlockFromBytes(raw)
	if err != nil {
		return nil, err
	}
	block.SetHeight(height)
	return block, nil
}

// FetchBlockHeightBySha returns the main chain height of the given hash.
func (db *LevelDb) FetchBlockHeightBySha(sha *wire.Hash) (uint64, error) {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	return db.fetchBlockHeightBySha(sha)
}

func (db *LevelDb) fetchBlockHeightBySha(sha *wire.Hash) (uint64, error) {
	raw, err := db.lDb.Get(blockShaKey(sha), db.ro)
	if err == leveldb.ErrNotFound {
		return 0, database.ErrBlockShaMissing
	}
	if err != nil {
		return 0, errors.Wrap(err, "fetch block height")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// FetchBlockShaByHeight returns the hash of the main chain block at the
// given height.
func (db *LevelDb) FetchBlockShaByHeight(height uint64) (*wire.Hash, error) {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	return db.fetchBlockShaByHeight(height)
}

func (db *LevelDb) fetchBlockShaByHeight(height uint64) (*wire.Hash, error) {
	block, err := db.fetchBlockByHeight(height)
	if err != nil {
		return nil, err
	}
	return block.Hash(), nil
}

// FetchBlockHeaderByHeight returns the header of the main chain block at
// the given height.
func (db *LevelDb) FetchBlockHeaderByHeight(height uint64) (*wire.BlockHeader, error) {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	block, err := db.fetchBlockByHeight(height)
	if err != nil {
		return nil, err
	}
	header := block.MsgBlock().Header
	return &header, nil
}

// NewestSha returns the hash and height of the most recent block.
func (db *LevelDb) NewestSha() (*wire.Hash, uint64, error) {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	if !db.hasBlocks {
		return &wire.Hash{}, chainutil.BlockHeightUnknown, nil
	}
	sha := db.lastBlkSha
	return &sha, db.lastBlkIdx, nil
}

// InsertBlock places a known-good block at a specific height.  The height
// must extend the current chain; it exists so parallel initial block
// download can hand blocks over in index order.
func (db *LevelDb) InsertBlock(block *chainutil.Block, height uint64) error {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	next := uint64(0)
	if db.hasBlocks {
		next = db.lastBlkIdx + 1
	}
	if height != next {
		return errors.Errorf("insert height %d out of order, next %d",
			height, next)
	}
	return db.connectBlock(block, height)
}

// PushBlock appends the block to the confirmed tip.
func (db *LevelDb) PushBlock(block *chainutil.Block) error {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	height := uint64(0)
	if db.hasBlocks {
		if !block.MsgBlock().Header.Previous.IsEqual(&db.lastBlkSha) {
			return database.ErrPrevShaMissing
		}
		height = db.lastBlkIdx + 1
	}
	return db.connectBlock(block, height)
}

// connectBlock indexes and writes the block at the given height in a single
// batch.  Caller holds dbLock.
func (db *LevelDb) connectBlock(block *chainutil.Block, height uint64) error {
	sha := block.Hash()
	if _, err := db.fetchBlockHeightBySha(sha); err == nil {
		return database.ErrDuplicateSha
	}

	batch := new(leveldb.Batch)
	overlay := newTxOverlay(db)
	if err := overlay.connectTransactions(block, height); err != nil {
		return err
	}
	overlay.commit(batch)

	raw, err := block.Bytes()
	if err != nil {
		return err
	}
	batch.Put(blockHeightKey(height), raw)

	heightVal := make([]byte, 8)
	binary.BigEndian.PutUint64(heightVal, height)
	batch.Put(blockShaKey(sha), heightVal)
	batch.Put(tipKey(), heightVal)

	if err := db.lDb.Write(batch, db.wo); err != nil {
		return errors.Wrap(err, "connect block")
	}

	block.SetHeight(height)
	db.lastBlkSha = *sha
	db.lastBlkIdx = height
	db.hasBlocks = true
	return nil
}

// PopAbove removes all blocks strictly above the given hash, returning them
// top-first.
func (db *LevelDb) PopAbove(forkSha *wire.Hash) ([]*chainutil.Block, error) {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	return db.popAbove(forkSha)
}

// popAbove disconnects every block above forkSha, one batch per block.
// Caller holds dbLock.
func (db *LevelDb) popAbove(forkSha *wire.Hash) ([]*chainutil.Block, error) {
	forkHeight, err := db.fetchBlockHeightBySha(forkSha)
	if err != nil {
		return nil, err
	}

	var popped []*chainutil.Block
	for db.hasBlocks && db.lastBlkIdx > forkHeight {
		block, err := db.fetchBlockByHeight(db.lastBlkIdx)
		if err != nil {
			return popped, err
		}

		batch := new(leveldb.Batch)
		overlay := newTxOverlay(db)
		if err := overlay.disconnectTransactions(block, db.lastBlkIdx); err != nil {
			return popped, err
		}

		overlay.commit(batch)
		batch.Delete(blockHeightKey(db.lastBlkIdx))
		batch.Delete(blockShaKey(block.Hash()))

		newTip := make([]byte, 8)
		binary.BigEndian.PutUint64(newTip, db.lastBlkIdx-1)
		batch.Put(tipKey(), newTip)

		if err := db.lDb.Write(batch, db.wo); err != nil {
			return popped, errors.Wrap(err, "pop block")
		}

		popped = append(popped, block)
		db.lastBlkIdx--
		prevSha, err := db.fetchBlockShaByHeight(db.lastBlkIdx)
		if err != nil {
			return popped, err
		}
		db.lastBlkSha = *prevSha
	}
	return popped, nil
}

// Reorganize atomically pops every block above forkSha and pushes the
// incoming blocks in their place.
func (db *LevelDb) Reorganize(forkSha *wire.Hash, incoming []*chainutil.Block) ([]*chainutil.Block, error) {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	forkHeight, err := db.fetchBlockHeightBySha(forkSha)
	if err != nil {
		return nil, err
	}

	batch := new(leveldb.Batch)
	overlay := newTxOverlay(db)

	// Disconnect the old suffix into the overlay, newest first.
	var popped []*chainutil.Block
	for height := db.lastBlkIdx; db.hasBlocks && height > forkHeight; height-- {
		block, err := db.fetchBlockByHeight(height)
		if err != nil {
			return nil, err
		}
		if err := overlay.disconnectTransactions(block, height); err != nil {
			return nil, err
		}
		batch.Delete(blockHeightKey(height))
		batch.Delete(blockShaKey(block.Hash()))
		popped = append(popped, block)
	}

	// Connect the incoming suffix in order from the fork point.
	height := forkHeight
	for _, block := range incoming {
		height++
		if err := overlay.connectTransactions(block, height); err != nil {
			return nil, err
		}

		raw, err := block.Bytes()
		if err != nil {
			return nil, err
		}
		batch.Put(blockHeightKey(height), raw)

		heightVal := make([]byte, 8)
		binary.BigEndian.PutUint64(heightVal, height)
		batch.Put(blockShaKey(block.Hash()), heightVal)
	}

	overlay.commit(batch)

	tipVal := make([]byte, 8)
	binary.BigEndian.PutUint64(tipVal, height)
	batch.Put(tipKey(), tipVal)

	if err := db.lDb.Write(batch, db.wo); err != nil {
		return nil, errors.Wrap(err, "reorganize")
	}

	for i, block := range incoming {
		block.SetHeight(forkHeight + uint64(i) + 1)
	}
	db.lastBlkIdx = height
	tipSha, err := db.fetchBlockShaByHeight(height)
	if err != nil {
		return popped, err
	}
	db.lastBlkSha = *tipSha
	return popped, nil
}
