package blockchain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBranchPush verifies the chaining contract: blocks append only when
// they extend the fork point or the current top.
func TestBranchPush(t *testing.T) {
	h := newTestHarness(t)

	b1 := h.buildBlock(h.genesis, 0, 0)
	b2 := h.buildBlock(b1, 1, 0)
	stranger := h.buildBlock(h.genesis, 0, 3)

	branch := NewBranch(*h.genesis.Hash())
	assert.True(t, branch.Empty())

	// A block that does not chain from the fork point is refused.
	assert.False(t, branch.Push(b2))

	require.True(t, branch.Push(b1))
	assert.False(t, branch.Empty())
	assert.Equal(t, b1.Hash(), branch.Top().Hash())

	// A sibling of the current top does not chain from it.
	assert.False(t, branch.Push(stranger))

	require.True(t, branch.Push(b2))
	assert.Equal(t, b2.Hash(), branch.Top().Hash())
	assert.Equal(t, 2, branch.Size())
}

// TestBranchHeights verifies fork point resolution and the derived top
// height.
func TestBranchHeights(t *testing.T) {
	h := newTestHarness(t)

	b1 := h.buildBlock(h.genesis, 0, 0)
	b2 := h.buildBlock(b1, 1, 0)

	branch := NewBranch(*h.genesis.Hash())
	require.True(t, branch.Push(b1))
	require.True(t, branch.Push(b2))

	branch.SetHeight(7)
	assert.Equal(t, uint64(7), branch.Height())
	assert.Equal(t, uint64(9), branch.TopHeight())

	fork := branch.ForkPoint()
	assert.Equal(t, *h.genesis.Hash(), fork.Hash)
	assert.Equal(t, uint64(7), fork.Height)
}

// TestBranchWork verifies the work sum is the per-block proof summed with
// full precision.
func TestBranchWork(t *testing.T) {
	h := newTestHarness(t)

	b1 := h.buildBlock(h.genesis, 0, 0)
	b2 := h.buildBlock(b1, 1, 0)

	branch := NewBranch(*h.genesis.Hash())
	require.True(t, branch.Push(b1))

	single := CalcWork(b1.MsgBlock().Header.Bits)
	assert.Zero(t, branch.Work().Cmp(single))

	require.True(t, branch.Push(b2))
	double := new(big.Int).Add(single, CalcWork(b2.MsgBlock().Header.Bits))
	assert.Zero(t, branch.Work().Cmp(double))
}
