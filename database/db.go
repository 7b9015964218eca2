// Modified for Quarry
// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"errors"
	"math"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/wire"
)

// Errors that the various database functions may return.
var (
	ErrPrevShaMissing  = errors.New("previous sha missing from database")
	ErrTxShaMissing    = errors.New("requested transaction does not exist")
	ErrBlockShaMissing = errors.New("requested block does not exist")
	ErrDuplicateSha    = errors.New("duplicate insert attempted")
	ErrDbDoesNotExist  = errors.New("non-existent database")
	ErrDbUnknownType   = errors.New("non-existent database type")
	ErrNotImplemented  = errors.New("method has not yet been implemented")
)

// UnspentHeight marks an output that has no recorded spender.
const UnspentHeight = uint64(math.MaxUint64)

// OutputReply describes a transaction output resolved from the store,
// together with the height of the block that confirmed it and, when spent,
// the height of the spender.
type OutputReply struct {
	TxOut    *wire.TxOut
	Height   uint64
	Coinbase bool
	SpentBy  uint64
}

// Spent returns whether a spender has been recorded for the output.
func (r *OutputReply) Spent() bool {
	return r.SpentBy != UnspentHeight
}

// TxReply is used to return individual transaction information from the
// store.
type TxReply struct {
	Sha     *wire.Hash
	Tx      *wire.MsgTx
	Height  uint64
	TxSpent []bool
	Err     error
}

// Db defines the read/write surface the chain requires of a store backend.
//
// Reads used by the organizer are limited to: block existence, heights,
// headers, newest sha and outputs; writes are limited to push, pop and the
// atomic reorganize swap.
type Db interface {
	// Close cleanly shuts down the database and syncs all data.
	Close() error

	// ExistsSha returns whether or not the given block hash is present
	// in the database.
	ExistsSha(sha *wire.Hash) (bool, error)

	// FetchBlockBySha returns a chainutil Block.  The implementation may
	// cache the underlying data if desired.
	FetchBlockBySha(sha *wire.Hash) (*chainutil.Block, error)

	// FetchBlockHeightBySha returns the block height for the given hash.
	FetchBlockHeightBySha(sha *wire.Hash) (uint64, error)

	// FetchBlockShaByHeight returns a block hash based on its height in
	// the main chain.
	FetchBlockShaByHeight(height uint64) (*wire.Hash, error)

	// FetchBlockHeaderByHeight returns the header of the main chain block
	// at the given height.
	FetchBlockHeaderByHeight(height uint64) (*wire.BlockHeader, error)

	// NewestSha returns the hash and block height of the most recent
	// (end) block of the block chain.  It will return the zero hash,
	// UnspentHeight for the block height, and no error (nil) if there are
	// not any blocks in the database yet.
	NewestSha() (*wire.Hash, uint64, error)

	// ExistsTxSha returns whether or not the given tx hash is present in
	// the database.
	ExistsTxSha(sha *wire.Hash) (bool, error)

	// FetchTxBySha returns transaction data for the given hash.
	FetchTxBySha(sha *wire.Hash) (*TxReply, error)

	// FetchOutput resolves a confirmed transaction output together with
	// its confirmation height and spend marker.  ErrTxShaMissing is
	// returned when the referenced transaction is unknown.
	FetchOutput(op *wire.OutPoint) (*OutputReply, error)

	// InsertBlock places a known-good block at a specific height.  It is
	// used for parallel initial block download, not by the organizer.
	InsertBlock(block *chainutil.Block, height uint64) error

	// PushBlock appends the block to the confirmed tip.
	PushBlock(block *chainutil.Block) error

	// PopAbove removes all blocks strictly above the given hash and
	// returns them in top-first order.
	PopAbove(forkSha *wire.Hash) ([]*chainutil.Block, error)

	// Reorganize atomically pops every block strictly above forkSha and
	// pushes the incoming blocks (ordered fork point + 1 onward) in their
	// place.  The popped blocks are returned top-first.  On failure the
	// chain is left at the fork point or unchanged.
	Reorganize(forkSha *wire.Hash, incoming []*chainutil.Block) ([]*chainutil.Block, error)

	// Write bracketing.  Writers must be serialized externally; the
	// bracket drives the sequence lock visible to readers and, when
	// flush is set, forces data to stable storage on EndWrite.
	BeginWrite()
	EndWrite(flush bool) error

	// Sequence-lock read handles.  A reader obtains a sequence, refuses
	// to proceed while a write is in flight, performs its reads and then
	// confirms the sequence is still valid.
	BeginRead() uint64
	IsWriteLocked(seq uint64) bool
	IsReadValid(seq uint64) bool
}
