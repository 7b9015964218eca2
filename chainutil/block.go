// Modified for Quarry
// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainutil

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"quarrychain.org/quarry-core/wire"
)

// OutOfRangeError describes an error due to accessing an element that is out
// of range.
type OutOfRangeError string

// BlockHeightUnknown is the value returned for a block height that is
// unknown.  This is typically because the block has not been inserted into
// the main chain yet.
const BlockHeightUnknown = uint64(0xffffffffffffffff)

// Error satisfies the error interface and prints human-readable errors.
func (e OutOfRangeError) Error() string {
	return string(e)
}

// ChainState is the immutable consensus snapshot active at a particular
// height.  The concrete type lives in the blockchain package; the annotation
// below only carries it.
type ChainState interface {
	// StateHeight is the height the snapshot applies to.
	StateHeight() uint64
}

// BlockValidation is the mutable validation annotation of a candidate block.
// It is written only while the block is owned by the organizer critical
// section.
type BlockValidation struct {
	Height      uint64
	Err         error
	StartNotify time.Time
	State       ChainState
}

// Block defines a quarry block that provides easier and more efficient
// manipulation of raw blocks.  It also memoizes hashes for the block and its
// transactions on their first access so subsequent accesses don't have to
// repeat the relatively expensive hashing operations.
type Block struct {
	msgBlock        *wire.MsgBlock // Underlying MsgBlock
	serializedBlock []byte         // Serialized bytes for the block
	blockHash       *wire.Hash     // Cached block hash
	blockHeight     uint64         // Height in the main block chain
	transactions    []*Tx          // Transactions
	txnsGenerated   bool           // ALL wrapped transactions generated

	// Validation carries organizer-owned annotation state.
	Validation BlockValidation
}

// MsgBlock returns the underlying wire.MsgBlock for the Block.
func (b *Block) MsgBlock() *wire.MsgBlock {
	return b.msgBlock
}

// Bytes returns the serialized bytes for the Block.  This is equivalent to
// calling Serialize on the underlying wire.MsgBlock, however it caches the
// result so subsequent calls are more efficient.
func (b *Block) Bytes() ([]byte, error) {
	if len(b.serializedBlock) != 0 {
		return b.serializedBlock, nil
	}

	var w bytes.Buffer
	w.Grow(b.msgBlock.SerializeSize())
	err := b.msgBlock.Serialize(&w)
	if err != nil {
		return nil, err
	}

	b.serializedBlock = w.Bytes()
	return b.serializedBlock, nil
}

// Hash returns the block identifier hash for the Block.  This is equivalent
// to calling BlockHash on the underlying wire.MsgBlock, however it caches
// the result so subsequent calls are more efficient.
func (b *Block) Hash() *wire.Hash {
	if b.blockHash != nil {
		return b.blockHash
	}

	hash := b.msgBlock.BlockHash()
	b.blockHash = &hash
	return &hash
}

// Size returns the serialized size of the block.
func (b *Block) Size() int {
	return b.msgBlock.SerializeSize()
}

// Tx returns a wrapped transaction (chainutil.Tx) for the transaction at the
// specified index in the Block.  The supplied index is 0 based.
func (b *Block) Tx(txNum int) (*Tx, error) {
	numTx := uint64(len(b.msgBlock.Transactions))
	if txNum < 0 || uint64(txNum) >= numTx {
		str := fmt.Sprintf("transaction index %d is out of range - max %d",
			txNum, numTx-1)
		return nil, OutOfRangeError(str)
	}

	if len(b.transactions) == 0 {
		b.transactions = make([]*Tx, numTx)
	}

	if b.transactions[txNum] != nil {
		return b.transactions[txNum], nil
	}

	newTx := NewTx(b.msgBlock.Transactions[txNum])
	newTx.SetIndex(txNum)
	b.transactions[txNum] = newTx
	return newTx, nil
}

// Transactions returns a slice of wrapped transactions (chainutil.Tx) for
// all transactions in the Block.  This is nearly equivalent to accessing the
// raw transactions (wire.MsgTx) in the underlying wire.MsgBlock, however it
// instead provides easy access to wrapped versions of them.
func (b *Block) Transactions() []*Tx {
	if b.txnsGenerated {
		return b.transactions
	}

	if len(b.transactions) == 0 {
		b.transactions = make([]*Tx, len(b.msgBlock.Transactions))
	}

	for i, tx := range b.transactions {
		if tx == nil {
			newTx := NewTx(b.msgBlock.Transactions[i])
			newTx.SetIndex(i)
			b.transactions[i] = newTx
		}
	}

	b.txnsGenerated = true
	return b.transactions
}

// Height returns the saved height of the block in the block chain.  This
// value will be BlockHeightUnknown if it hasn't already explicitly been set.
func (b *Block) Height() uint64 {
	return b.blockHeight
}

// SetHeight sets the height of the block in the block chain.
func (b *Block) SetHeight(height uint64) {
	b.blockHeight = height
}

// NewBlock returns a new instance of a quarry block given an underlying
// wire.MsgBlock.  See Block.
func NewBlock(msgBlock *wire.MsgBlock) *Block {
	return &Block{
		msgBlock:    msgBlock,
		blockHeight: BlockHeightUnknown,
	}
}

// NewBlockFromReader returns a new instance of a quarry block given a
// Reader to deserialize the block.  See Block.
func NewBlockFromReader(r io.Reader) (*Block, error) {
	var msgBlock wire.MsgBlock
	err := msgBlock.Deserialize(r)
	if err != nil {
		return nil, err
	}

	b := Block{
		msgBlock:    &msgBlock,
		blockHeight: BlockHeightUnknown,
	}
	return &b, nil
}

// NewBlockFromBytes returns a new instance of a quarry block given the
// serialized bytes.  See Block.
func NewBlockFromBytes(serializedBlock []byte) (*Block, error) {
	br := bytes.NewReader(serializedBlock)
	b, err := NewBlockFromReader(br)
	if err != nil {
		return nil, err
	}
	b.serializedBlock = serializedBlock
	return b, nil
}

// NewBlockFromBlockAndBytes returns a new instance of a quarry block given
// an underlying wire.MsgBlock and the serialized bytes for it.  See Block.
func NewBlockFromBlockAndBytes(msgBlock *wire.MsgBlock, serializedBlock []byte) *Block {
	return &Block{
		msgBlock:        msgBlock,
		serializedBlock: serializedBlock,
		blockHeight:     BlockHeightUnknown,
	}
}
