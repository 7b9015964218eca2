package blockchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/wire"
)

// TestCheckBlockSanity runs the stateless phase over a valid block and a
// set of corruptions of it.
func TestCheckBlockSanity(t *testing.T) {
	h := newTestHarness(t)

	block := h.buildBlock(h.genesis, 0, 0)
	require.NoError(t, h.validator.Check(block))

	t.Run("bad merkle root", func(t *testing.T) {
		msg := block.MsgBlock()
		corrupted := *msg
		corrupted.Header.MerkleRoot = wire.DoubleHashH([]byte("bogus"))
		solveTestHeader(t, &corrupted.Header)

		err := h.validator.Check(chainutil.NewBlock(&corrupted))
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrBadMerkleRoot), "got %v", err)
	})

	t.Run("no transactions", func(t *testing.T) {
		msg := block.MsgBlock()
		corrupted := *msg
		corrupted.Transactions = nil
		solveTestHeader(t, &corrupted.Header)

		err := h.validator.Check(chainutil.NewBlock(&corrupted))
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrNoTransactions), "got %v", err)
	})

	t.Run("timestamp too far in the future", func(t *testing.T) {
		msg := block.MsgBlock()
		corrupted := *msg
		corrupted.Header.Timestamp = time.Unix(
			time.Now().Add(3*time.Hour).Unix(), 0)
		solveTestHeader(t, &corrupted.Header)

		err := h.validator.Check(chainutil.NewBlock(&corrupted))
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrTimeTooNew), "got %v", err)
	})

	t.Run("unsolved proof of work", func(t *testing.T) {
		msg := block.MsgBlock()
		corrupted := *msg
		// A target far below the regression limit that the solved
		// nonce cannot plausibly satisfy.
		corrupted.Header.Bits = 0x1d00ffff

		err := h.validator.Check(chainutil.NewBlock(&corrupted))
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrHighHash), "got %v", err)
	})
}

// solveTestHeader re-mines a mutated header so proof of work does not mask
// the rule under test.
func solveTestHeader(t *testing.T, header *wire.BlockHeader) {
	t.Helper()
	solveHeader(header)
}

// TestCheckTransactionSanity exercises the per-transaction context-free
// rules.
func TestCheckTransactionSanity(t *testing.T) {
	h := newTestHarness(t)

	blocks := h.extendTip(2)
	origin := blocks[0].MsgBlock().Transactions[0]

	valid := h.spendTx(origin, 0, origin.TxOut[0].Value-1000)
	require.NoError(t, CheckTransactionSanity(chainutil.NewTx(valid)))

	t.Run("no inputs", func(t *testing.T) {
		tx := wire.NewMsgTx()
		tx.AddTxOut(wire.NewTxOut(1, h.pkScript))
		err := CheckTransactionSanity(chainutil.NewTx(tx))
		assert.True(t, IsErrorCode(err, ErrNoTxInputs), "got %v", err)
	})

	t.Run("negative output", func(t *testing.T) {
		tx := h.spendTx(origin, 0, 1000)
		tx.TxOut[0].Value = -1
		err := CheckTransactionSanity(chainutil.NewTx(tx))
		assert.True(t, IsErrorCode(err, ErrBadTxOutValue), "got %v", err)
	})

	t.Run("duplicate inputs", func(t *testing.T) {
		tx := h.spendTx(origin, 0, 1000)
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: tx.TxIn[0].PreviousOutPoint,
			Sequence:         wire.MaxTxInSequenceNum,
		})
		err := CheckTransactionSanity(chainutil.NewTx(tx))
		assert.True(t, IsErrorCode(err, ErrDuplicateTxInputs), "got %v", err)
	})

	t.Run("null outpoint on non-coinbase", func(t *testing.T) {
		tx := wire.NewMsgTx()
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: *wire.NewOutPoint(&wire.Hash{},
				wire.MaxPrevOutIndex),
			Sequence: wire.MaxTxInSequenceNum,
		})
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: valid.TxIn[0].PreviousOutPoint,
			Sequence:         wire.MaxTxInSequenceNum,
		})
		tx.AddTxOut(wire.NewTxOut(1, h.pkScript))
		err := CheckTransactionSanity(chainutil.NewTx(tx))
		assert.True(t, IsErrorCode(err, ErrBadTxInput), "got %v", err)
	})
}

// TestExtractCoinbaseHeight round-trips serialized heights through the
// coinbase payload.
func TestExtractCoinbaseHeight(t *testing.T) {
	tests := []uint64{0, 1, 255, 256, 70000, 1 << 33}

	for _, height := range tests {
		coinbase := wire.NewMsgTx()
		coinbase.Payload = heightPayload(height)
		coinbase.AddTxIn(&wire.TxIn{
			PreviousOutPoint: *wire.NewOutPoint(&wire.Hash{},
				wire.MaxPrevOutIndex),
			Sequence: wire.MaxTxInSequenceNum,
		})

		got, err := ExtractCoinbaseHeight(chainutil.NewTx(coinbase))
		require.NoError(t, err, "height %d", height)
		assert.Equal(t, height, got)
	}

	empty := wire.NewMsgTx()
	_, err := ExtractCoinbaseHeight(chainutil.NewTx(empty))
	assert.True(t, IsErrorCode(err, ErrMissingCoinbaseHeight), "got %v", err)
}

// TestAcceptRejectsWrongCoinbaseHeight verifies the accept phase checks
// the coinbase height commitment against the branch top height.
func TestAcceptRejectsWrongCoinbaseHeight(t *testing.T) {
	h := newTestHarness(t)

	parent, parentHeight := h.tip()

	// A block claiming the wrong height in its coinbase.
	coinbase := h.createCoinbase(parentHeight+5, 0)
	wrapped := []*chainutil.Tx{chainutil.NewTx(coinbase)}
	merkles := BuildMerkleTreeStore(wrapped)
	header := wire.BlockHeader{
		Version:    wire.BlockVersion,
		Previous:   *parent.Hash(),
		MerkleRoot: *merkles[len(merkles)-1],
		Timestamp:  parent.MsgBlock().Header.Timestamp.Add(10 * time.Minute),
		Bits:       h.params.PowLimitBits,
	}
	solveHeader(&header)
	block := chainutil.NewBlock(&wire.MsgBlock{
		Header:       header,
		Transactions: []*wire.MsgTx{coinbase},
	})

	err := h.organizer.Organize(block)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrBadCoinbaseHeight), "got %v", err)
}
