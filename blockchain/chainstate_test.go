package blockchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarrychain.org/quarry-core/txscript"
)

// TestPopulateBranchSnapshot builds a snapshot for a branch top and checks
// height, flags, required work and median time past.
func TestPopulateBranchSnapshot(t *testing.T) {
	h := newTestHarness(t)
	h.extendTip(3)

	parent, parentHeight := h.tip()
	candidate := h.buildBlock(parent, parentHeight, 0)

	branch := NewBranch(*parent.Hash())
	require.True(t, branch.Push(candidate))
	branch.SetHeight(parentHeight)

	state, err := h.populator.Populate(branch)
	require.NoError(t, err)

	assert.Equal(t, parentHeight+1, state.StateHeight())
	assert.Equal(t, h.params.PowLimitBits, state.WorkRequired())
	assert.Equal(t, int32(serializedHeightVersion), state.MinVersion())

	// Regression params activate every script fork from genesis.
	flags := state.Flags()
	assert.NotZero(t, flags&txscript.ScriptVerifyDERSignatures)
	assert.NotZero(t, flags&txscript.ScriptVerifyCheckLockTimeVerify)
	assert.NotZero(t, flags&txscript.ScriptVerifyCheckSequenceVerify)

	// The median of the previous blocks is strictly below the candidate
	// timestamp with monotonically increasing test timestamps.
	assert.True(t, state.MedianTimePast().Before(
		candidate.MsgBlock().Header.Timestamp))
}

// TestPopulatePoolPromotion verifies the hot path: a second populate at an
// unchanged tip returns the cached snapshot, and a tip change invalidates
// it.
func TestPopulatePoolPromotion(t *testing.T) {
	h := newTestHarness(t)
	h.extendTip(2)

	first, err := h.populator.PopulatePool()
	require.NoError(t, err)

	second, err := h.populator.PopulatePool()
	require.NoError(t, err)
	assert.Same(t, first, second)

	h.extendTip(1)
	third, err := h.populator.PopulatePool()
	require.NoError(t, err)
	assert.False(t, first == third, "tip change must invalidate the snapshot")
	assert.Equal(t, first.StateHeight()+1, third.StateHeight())
}

// TestMedianTimePastWindow verifies the median is taken over the eleven
// blocks ending at the parent.
func TestMedianTimePastWindow(t *testing.T) {
	h := newTestHarness(t)
	blocks := h.extendTip(12)

	state, err := h.populator.PopulatePool()
	require.NoError(t, err)

	// With 10-minute spacing over blocks 2..12 the median is block 7.
	expected := blocks[6].MsgBlock().Header.Timestamp
	assert.Equal(t, expected.Unix(), state.MedianTimePast().Unix())
}
