// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"
	"time"
)

// BlockVersion is the current latest supported block version.
const BlockVersion = 2

// blockHeaderLen is a constant that represents the number of bytes for a
// serialized block header.
const blockHeaderLen = 88

// BlockHeader defines information about a block and is used in the block
// (MsgBlock) message.
type BlockHeader struct {
	// Version of the block.  This is not the same as the protocol version.
	Version int32

	// Hash of the previous block in the block chain.
	Previous Hash

	// Merkle tree reference to hash of all transactions for the block.
	MerkleRoot Hash

	// Time the block was created.  Encoded as int64 on the wire.
	Timestamp time.Time

	// Difficulty target for the block.
	Bits uint32

	// Nonce used to generate the block.
	Nonce uint64
}

// BlockHash computes the block identifier hash for the given block header.
func (h *BlockHeader) BlockHash() Hash {
	buf := bytes.NewBuffer(make([]byte, 0, blockHeaderLen))
	_ = writeBlockHeader(buf, h)

	return DoubleHashH(buf.Bytes())
}

// Deserialize decodes a block header from r into the receiver.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	return readBlockHeader(r, h)
}

// Serialize encodes a block header from the receiver to w.
func (h *BlockHeader) Serialize(w io.Writer) error {
	return writeBlockHeader(w, h)
}

// SerializeSize returns the number of bytes it would take to serialize the
// block header.
func (h *BlockHeader) SerializeSize() int {
	return blockHeaderLen
}

// NewBlockHeader returns a new BlockHeader using the provided version,
// previous block hash, merkle root hash, difficulty bits, and nonce with the
// timestamp truncated to one second precision.
func NewBlockHeader(version int32, prevHash, merkleRootHash *Hash, bits uint32,
	nonce uint64) *BlockHeader {

	return &BlockHeader{
		Version:    version,
		Previous:   *prevHash,
		MerkleRoot: *merkleRootHash,
		Timestamp:  time.Unix(time.Now().Unix(), 0),
		Bits:       bits,
		Nonce:      nonce,
	}
}

// NewEmptyBlockHeader returns a zero value header, used as a placeholder when
// a store read fails.
func NewEmptyBlockHeader() *BlockHeader {
	return &BlockHeader{Timestamp: time.Unix(0, 0)}
}

// readBlockHeader reads a block header from r.
func readBlockHeader(r io.Reader, bh *BlockHeader) error {
	return readElements(r, &bh.Version, &bh.Previous, &bh.MerkleRoot,
		&bh.Timestamp, &bh.Bits, &bh.Nonce)
}

// writeBlockHeader writes a block header to w.
func writeBlockHeader(w io.Writer, bh *BlockHeader) error {
	return writeElements(w, bh.Version, &bh.Previous, &bh.MerkleRoot,
		bh.Timestamp, bh.Bits, bh.Nonce)
}
