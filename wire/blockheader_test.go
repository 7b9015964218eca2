// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBlockHeaderHash verifies the header hash commits to every header
// field.
func TestBlockHeaderHash(t *testing.T) {
	prev := DoubleHashH([]byte("prev"))
	merkle := DoubleHashH([]byte("merkle"))
	header := BlockHeader{
		Version:    BlockVersion,
		Previous:   prev,
		MerkleRoot: merkle,
		Timestamp:  time.Unix(1572652800, 0),
		Bits:       0x207fffff,
		Nonce:      11,
	}

	base := header.BlockHash()
	assert.Equal(t, base, header.BlockHash(), "hash must be deterministic")

	mutations := []func(h *BlockHeader){
		func(h *BlockHeader) { h.Version++ },
		func(h *BlockHeader) { h.Previous[0] ^= 0xff },
		func(h *BlockHeader) { h.MerkleRoot[0] ^= 0xff },
		func(h *BlockHeader) { h.Timestamp = h.Timestamp.Add(time.Second) },
		func(h *BlockHeader) { h.Bits++ },
		func(h *BlockHeader) { h.Nonce++ },
	}
	for i, mutate := range mutations {
		mutated := header
		mutate(&mutated)
		assert.NotEqual(t, base, mutated.BlockHash(), "mutation %d", i)
	}
}

// TestBlockRoundTrip serializes a block with a transaction and reads it
// back.
func TestBlockRoundTrip(t *testing.T) {
	prevOut := DoubleHashH([]byte("outpoint"))
	tx := NewMsgTx()
	tx.Payload = []byte{0x01, 0x02}
	tx.AddTxIn(&TxIn{
		PreviousOutPoint: *NewOutPoint(&prevOut, 1),
		Witness:          TxWitness{{0xaa, 0xbb}},
		Sequence:         MaxTxInSequenceNum,
	})
	tx.AddTxOut(NewTxOut(5000, []byte{0x51, 0x52}))

	block := &MsgBlock{
		Header: BlockHeader{
			Version:    BlockVersion,
			Previous:   DoubleHashH([]byte("prev")),
			MerkleRoot: tx.TxHash(),
			Timestamp:  time.Unix(1572652800, 0),
			Bits:       0x207fffff,
			Nonce:      3,
		},
		Transactions: []*MsgTx{tx},
	}

	var buf bytes.Buffer
	require.NoError(t, block.Serialize(&buf))
	assert.Equal(t, block.SerializeSize(), buf.Len())

	var decoded MsgBlock
	require.NoError(t, decoded.Deserialize(&buf))
	assert.Equal(t, block.BlockHash(), decoded.BlockHash())
	require.Len(t, decoded.Transactions, 1)
	assert.Equal(t, tx.TxHash(), decoded.Transactions[0].TxHash())
	assert.Equal(t, tx.SerializeSize(), decoded.Transactions[0].SerializeSize())
}
