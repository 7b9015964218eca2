package blockchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/wire"
)

// TestBlockPoolGetPath walks a three-deep side chain out of the forest and
// expects a branch ordered fork point to candidate.
func TestBlockPoolGetPath(t *testing.T) {
	h := newTestHarness(t)

	b1 := h.buildBlock(h.genesis, 0, 1)
	b2 := h.buildBlock(b1, 1, 1)
	b3 := h.buildBlock(b2, 2, 1)

	pool := NewBlockPool(100)
	pool.Add(b1)
	pool.Add(b2)

	branch := pool.GetPath(b3)
	require.Equal(t, 2+1, branch.Size())
	assert.Equal(t, *h.genesis.Hash(), *branch.ForkHash())

	blocks := branch.Blocks()
	assert.Equal(t, b1.Hash(), blocks[0].Hash())
	assert.Equal(t, b2.Hash(), blocks[1].Hash())
	assert.Equal(t, b3.Hash(), blocks[2].Hash())
}

// TestBlockPoolGetPathPooledCandidate returns an empty branch when the
// candidate itself is already pooled, which the organizer reports as a
// duplicate.
func TestBlockPoolGetPathPooledCandidate(t *testing.T) {
	h := newTestHarness(t)

	b1 := h.buildBlock(h.genesis, 0, 1)
	pool := NewBlockPool(100)
	pool.Add(b1)

	branch := pool.GetPath(b1)
	assert.True(t, branch.Empty())
}

// TestBlockPoolAddRemove verifies idempotent insertion and removal.
func TestBlockPoolAddRemove(t *testing.T) {
	h := newTestHarness(t)

	b1 := h.buildBlock(h.genesis, 0, 1)
	pool := NewBlockPool(100)

	pool.Add(b1)
	pool.Add(b1)
	assert.Equal(t, 1, pool.Size())
	assert.True(t, pool.KnownBlock(b1.Hash()))

	pool.Remove([]*chainutil.Block{b1})
	assert.Zero(t, pool.Size())
	assert.False(t, pool.KnownBlock(b1.Hash()))
}

// TestBlockPoolPrune verifies eviction by height span below the confirmed
// tip: entries at or under tip minus the limit go, everything newer stays.
func TestBlockPoolPrune(t *testing.T) {
	h := newTestHarness(t)

	shallow := h.buildBlock(h.genesis, 0, 1)
	deep := h.buildBlock(h.genesis, 0, 2)

	pool := NewBlockPool(10)

	shallow.Validation.Height = 95
	deep.Validation.Height = 90
	pool.Add(shallow)
	pool.Add(deep)

	pool.Prune(100)
	assert.True(t, pool.KnownBlock(shallow.Hash()))
	assert.False(t, pool.KnownBlock(deep.Hash()))

	// Below the limit nothing can be out of span.
	pool.Prune(5)
	assert.Equal(t, 1, pool.Size())
}

// TestBlockPoolFilter verifies pooled block hashes are stripped from an
// inventory while foreign and non-block entries pass through.
func TestBlockPoolFilter(t *testing.T) {
	h := newTestHarness(t)

	pooled := h.buildBlock(h.genesis, 0, 1)
	other := h.buildBlock(h.genesis, 0, 2)

	pool := NewBlockPool(100)
	pool.Add(pooled)

	txHash := wire.DoubleHashH([]byte("tx"))
	inv := []*wire.InvVect{
		wire.NewInvVect(wire.InvTypeBlock, pooled.Hash()),
		wire.NewInvVect(wire.InvTypeBlock, other.Hash()),
		wire.NewInvVect(wire.InvTypeTx, &txHash),
	}

	filtered := pool.Filter(inv)
	require.Len(t, filtered, 2)
	assert.Equal(t, *other.Hash(), filtered[0].Hash)
	assert.Equal(t, txHash, filtered[1].Hash)
}

// TestBlockPoolRecordHeights stamps walked branch heights back onto the
// forest so pruning can see them.
func TestBlockPoolRecordHeights(t *testing.T) {
	h := newTestHarness(t)

	b1 := h.buildBlock(h.genesis, 0, 1)
	b2 := h.buildBlock(b1, 1, 1)

	pool := NewBlockPool(10)
	pool.Add(b1)
	pool.Add(b2)

	branch := pool.GetPath(h.buildBlock(b2, 2, 1))
	branch.SetHeight(0)
	pool.RecordHeights(branch)

	// b1 sits at branch height 1; pruning at tip 11 with limit 10
	// evicts it but keeps b2 at height 2.
	pool.Prune(11)
	assert.False(t, pool.KnownBlock(b1.Hash()))
	assert.True(t, pool.KnownBlock(b2.Hash()))
}
