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

var txPrefix = []byte("t:")

func txKey(sha *wire.Hash) []byte {
	key := make([]byte, len(txPrefix)+wire.HashSize)
	copy(key, txPrefix)
	copy(key[len(txPrefix):], sha[:])
	return key
}

// txRec is the stored form of a confirmed transaction: its confirmation
// height, its index within the block, and a spender height per output.
type txRec struct {
	height  uint64
	index   uint32
	spentBy []uint64
}

func serializeTxRec(rec *txRec) []byte {
	raw := make([]byte, 12+4+8*len(rec.spentBy))
	binary.BigEndian.PutUint64(raw[0:8], rec.height)
	binary.BigEndian.PutUint32(raw[8:12], rec.index)
	binary.BigEndian.PutUint32(raw[12:16], uint32(len(rec.spentBy)))
	for i, by := range rec.spentBy {
		binary.BigEndian.PutUint64(raw[16+8*i:], by)
	}
	return raw
}

func deserializeTxRec(raw []byte) (*txRec, error) {
	if len(raw) < 16 {
		return nil, errors.New("short tx record")
	}
	rec := &txRec{
		height: binary.BigEndian.Uint64(raw[0:8]),
		index:  binary.BigEndian.Uint32(raw[8:12]),
	}
	count := binary.BigEndian.Uint32(raw[12:16])
	if len(raw) != int(16+8*count) {
		return nil, errors.New("malformed tx record")
	}
	rec.spentBy = make([]uint64, count)
	for i := range rec.spentBy {
		rec.spentBy[i] = binary.BigEndian.Uint64(raw[16+8*i:])
	}
	return rec, nil
}

// txOverlay accumulates transaction index updates for a batch so that
// records written and then referenced within the same batch resolve without
// touching disk.  This mirrors the update-map discipline the block writes
// require: a pushed transaction may spend an output pushed earlier in the
// same reorganize.
type txOverlay struct {
	db      *LevelDb
	pending map[wire.Hash]*txRec
	deleted map[wire.Hash]struct{}
}

func newTxOverlay(db *LevelDb) *txOverlay {
	return &txOverlay{
		db:      db,
		pending: make(map[wire.Hash]*txRec),
		deleted: make(map[wire.Hash]struct{}),
	}
}

// fetch returns the record for sha, preferring overlay state.
func (o *txOverlay) fetch(sha *wire.Hash) (*txRec, error) {
	if _, gone := o.deleted[*sha]; gone {
		return nil, database.ErrTxShaMissing
	}
	if rec, ok := o.pending[*sha]; ok {
		return rec, nil
	}
	return o.db.fetchTxRec(sha)
}

// connectTransactions records every transaction of the block and marks the
// outputs its inputs consume as spent at the block height.
func (o *txOverlay) connectTransactions(block *chainutil.Block, height uint64) error {
	for i, tx := range block.MsgBlock().Transactions {
		txSha := tx.TxHash()
		spentBy := make([]uint64, len(tx.TxOut))
		for j := range spentBy {
			spentBy[j] = database.UnspentHeight
		}
		delete(o.deleted, txSha)
		o.pending[txSha] = &txRec{height: height, index: uint32(i), spentBy: spentBy}

		if i == 0 {
			continue
		}
		for _, txIn := range tx.TxIn {
			rec, err := o.fetch(&txIn.PreviousOutPoint.Hash)
			if err != nil {
				// The organizer validates inputs before any
				// write; an unknown prevout here is a store
				// inconsistency.
				return errors.Wrapf(err, "connect tx %v input %v",
					txSha, txIn.PreviousOutPoint)
			}
			idx := txIn.PreviousOutPoint.Index
			if idx >= uint32(len(rec.spentBy)) {
				return errors.Errorf("spend index %d out of "+
					"range for %v", idx, txIn.PreviousOutPoint.Hash)
			}
			rec.spentBy[idx] = height
			o.pending[txIn.PreviousOutPoint.Hash] = rec
		}
	}
	return nil
}

// disconnectTransactions removes the block's transactions and clears the
// spend markers its inputs set.
func (o *txOverlay) disconnectTransactions(block *chainutil.Block, height uint64) error {
	txns := block.MsgBlock().Transactions
	for i := len(txns) - 1; i >= 0; i-- {
		tx := txns[i]
		txSha := tx.TxHash()
		delete(o.pending, txSha)
		o.deleted[txSha] = struct{}{}

		if i == 0 {
			continue
		}
		for _, txIn := range tx.TxIn {
			rec, err := o.fetch(&txIn.PreviousOutPoint.Hash)
			if err != nil {
				continue
			}
			idx := txIn.PreviousOutPoint.Index
			if idx < uint32(len(rec.spentBy)) && rec.spentBy[idx] == height {
				rec.spentBy[idx] = database.UnspentHeight
				o.pending[txIn.PreviousOutPoint.Hash] = rec
			}
		}
	}
	return nil
}

// commit flushes the overlay into the batch.
func (o *txOverlay) commit(batch *leveldb.Batch) {
	for sha := range o.deleted {
		shaCopy := sha
		batch.Delete(txKey(&shaCopy))
	}
	for sha, rec := range o.pending {
		shaCopy := sha
		batch.Put(txKey(&shaCopy), serializeTxRec(rec))
	}
}

// fetchTxRec reads a transaction record from disk.
func (db *LevelDb) fetchTxRec(sha *wire.Hash) (*txRec, error) {
	raw, err := db.lDb.Get(txKey(sha), db.ro)
	if err == leveldb.ErrNotFound {
		return nil, database.ErrTxShaMissing
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetch tx record")
	}
	return deserializeTxRec(raw)
}

// ExistsTxSha returns whether or not the given tx hash is present.
func (db *LevelDb) ExistsTxSha(sha *wire.Hash) (bool, error) {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	return db.lDb.Has(txKey(sha), db.ro)
}

// FetchTxBySha returns transaction data for the given hash.
func (db *LevelDb) FetchTxBySha(sha *wire.Hash) (*database.TxReply, error) {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	rec, err := db.fetchTxRec(sha)
	if err != nil {
		return nil, err
	}

	block, err := db.fetchBlockByHeight(rec.height)
	if err != nil {
		return nil, err
	}
	if rec.index >= uint32(len(block.MsgBlock().Transactions)) {
		return nil, errors.Errorf("tx index %d out of range at height %d",
			rec.index, rec.height)
	}

	spent := make([]bool, len(rec.spentBy))
	for i, by := range rec.spentBy {
		spent[i] = by != database.UnspentHeight
	}
	return &database.TxReply{
		Sha:     sha,
		Tx:      block.MsgBlock().Transactions[rec.index],
		Height:  rec.height,
		TxSpent: spent,
	}, nil
}

// FetchOutput resolves a confirmed output together with its confirmation
// height and spend marker.
func (db *LevelDb) FetchOutput(op *wire.OutPoint) (*database.OutputReply, error) {
	db.dbLock.Lock()
	defer db.dbLock.Unlock()

	rec, err := db.fetchTxRec(&op.Hash)
	if err != nil {
		return nil, err
	}

	block, err := db.fetchBlockByHeight(rec.height)
	if err != nil {
		return nil, err
	}
	msgTx := block.MsgBlock().Transactions[rec.index]
	if op.Index >= uint32(len(msgTx.TxOut)) {
		return nil, errors.Errorf("output index %d out of range for %v",
			op.Index, op.Hash)
	}

	return &database.OutputReply{
		TxOut:    msgTx.TxOut[op.Index],
		Height:   rec.height,
		Coinbase: rec.index == 0,
		SpentBy:  rec.spentBy[op.Index],
	}, nil
}
