package ldb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/database"
	"quarrychain.org/quarry-core/wire"
)

func buildTestBlock(prev *wire.Hash, height uint64, tag byte, extra ...*wire.MsgTx) *chainutil.Block {
	coinbase := wire.NewMsgTx()
	coinbase.Payload = []byte{0x01, byte(height), tag}
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&wire.Hash{}, wire.MaxPrevOutIndex),
		Sequence:         wire.MaxTxInSequenceNum,
	})
	coinbase.AddTxOut(wire.NewTxOut(50e8, []byte{tag, 0x01}))

	txns := append([]*wire.MsgTx{coinbase}, extra...)
	merkle := coinbase.TxHash()
	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    2,
			Previous:   *prev,
			MerkleRoot: merkle,
			Timestamp:  time.Unix(1572652800+int64(height)*600, 0),
			Bits:       0x207fffff,
		},
		Transactions: txns,
	}
	return chainutil.NewBlock(block)
}

func openTestDb(t *testing.T) (database.Db, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "blocks")
	db, err := CreateDB(path)
	require.NoError(t, err)
	return db, path
}

// TestLevelDbRoundTrip pushes blocks, closes the database and reopens it,
// verifying the tip and indices survive.
func TestLevelDbRoundTrip(t *testing.T) {
	db, path := openTestDb(t)

	var blocks []*chainutil.Block
	prev := &wire.Hash{}
	for height := uint64(0); height < 3; height++ {
		block := buildTestBlock(prev, height, 0)
		require.NoError(t, db.PushBlock(block))
		blocks = append(blocks, block)
		prev = block.Hash()
	}
	require.NoError(t, db.Close())

	db, err := OpenDB(path)
	require.NoError(t, err)
	defer db.Close()

	sha, height, err := db.NewestSha()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), height)
	assert.Equal(t, blocks[2].Hash(), sha)

	for i, block := range blocks {
		fetched, err := db.FetchBlockBySha(block.Hash())
		require.NoError(t, err)
		assert.Equal(t, block.Hash(), fetched.Hash())
		assert.Equal(t, uint64(i), fetched.Height())

		header, err := db.FetchBlockHeaderByHeight(uint64(i))
		require.NoError(t, err)
		assert.Equal(t, block.MsgBlock().Header.BlockHash(),
			header.BlockHash())
	}
}

// TestLevelDbReorganize swaps the confirmed suffix atomically and checks
// both block and transaction indices after the swap.
func TestLevelDbReorganize(t *testing.T) {
	db, _ := openTestDb(t)
	defer db.Close()

	var blocks []*chainutil.Block
	prev := &wire.Hash{}
	for height := uint64(0); height < 4; height++ {
		block := buildTestBlock(prev, height, 0)
		require.NoError(t, db.PushBlock(block))
		blocks = append(blocks, block)
		prev = block.Hash()
	}

	fork := blocks[1]
	var branch []*chainutil.Block
	prev = fork.Hash()
	for i := 0; i < 3; i++ {
		block := buildTestBlock(prev, uint64(2+i), 5)
		branch = append(branch, block)
		prev = block.Hash()
	}

	outgoing, err := db.Reorganize(fork.Hash(), branch)
	require.NoError(t, err)
	require.Len(t, outgoing, 2)
	assert.Equal(t, blocks[3].Hash(), outgoing[0].Hash())
	assert.Equal(t, blocks[2].Hash(), outgoing[1].Hash())

	_, height, err := db.NewestSha()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), height)

	for i, block := range branch {
		gotHeight, err := db.FetchBlockHeightBySha(block.Hash())
		require.NoError(t, err)
		assert.Equal(t, uint64(2+i), gotHeight)

		coinbaseHash := block.MsgBlock().Transactions[0].TxHash()
		reply, err := db.FetchTxBySha(&coinbaseHash)
		require.NoError(t, err)
		assert.Equal(t, uint64(2+i), reply.Height)
	}

	exists, err := db.ExistsSha(blocks[3].Hash())
	require.NoError(t, err)
	assert.False(t, exists)

	oldTxHash := blocks[3].MsgBlock().Transactions[0].TxHash()
	_, err = db.FetchTxBySha(&oldTxHash)
	assert.Equal(t, database.ErrTxShaMissing, err)
}

// TestLevelDbSpendOverlay verifies a reorganize whose incoming block
// spends a confirmed output below the fork point records the spender
// height through the overlay.
func TestLevelDbSpendOverlay(t *testing.T) {
	db, _ := openTestDb(t)
	defer db.Close()

	var blocks []*chainutil.Block
	prev := &wire.Hash{}
	for height := uint64(0); height < 2; height++ {
		block := buildTestBlock(prev, height, 0)
		require.NoError(t, db.PushBlock(block))
		blocks = append(blocks, block)
		prev = block.Hash()
	}

	// Branch block 2 creates a coinbase; branch block 3 spends block 1's
	// coinbase.
	origin := blocks[1].MsgBlock().Transactions[0]
	originHash := origin.TxHash()
	spend := wire.NewMsgTx()
	spend.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&originHash, 0),
		Witness:          wire.TxWitness{{0x01}},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	spend.AddTxOut(wire.NewTxOut(40e8, []byte{0x03}))

	b2 := buildTestBlock(blocks[1].Hash(), 2, 5)
	b3 := buildTestBlock(b2.Hash(), 3, 5, spend)

	_, err := db.Reorganize(blocks[1].Hash(), []*chainutil.Block{b2, b3})
	require.NoError(t, err)

	reply, err := db.FetchOutput(wire.NewOutPoint(&originHash, 0))
	require.NoError(t, err)
	assert.True(t, reply.Spent())
	assert.Equal(t, uint64(3), reply.SpentBy)
}
