package blockchain

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarrychain.org/quarry-core/wire"
)

// TestFastChainReadRetries holds the write sequence lock briefly and
// verifies a reader retries to a consistent result instead of failing.
func TestFastChainReadRetries(t *testing.T) {
	h := newTestHarness(t)

	h.db.BeginWrite()
	released := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = h.db.EndWrite(false)
		close(released)
	}()

	exists, err := h.fastChain.GetBlockExists(h.genesis.Hash())
	require.NoError(t, err)
	assert.True(t, exists)
	<-released
}

// TestGetBranchWorkShortCircuit verifies the confirmed work scan stops as
// soon as the running sum exceeds the maximum instead of walking to the
// tip.
func TestGetBranchWorkShortCircuit(t *testing.T) {
	h := newTestHarness(t)
	h.extendTip(5)

	unit := CalcWork(h.params.PowLimitBits)

	// Maximum of two units: the scan from height 1 stops after the
	// third block pushes the sum past it.
	maximum := new(big.Int).Mul(unit, big.NewInt(2))
	sum, err := h.fastChain.GetBranchWork(maximum, 1)
	require.NoError(t, err)

	expected := new(big.Int).Mul(unit, big.NewInt(3))
	assert.Zero(t, sum.Cmp(expected))

	// A maximum above the whole suffix walks it all.
	maximum = new(big.Int).Mul(unit, big.NewInt(50))
	sum, err = h.fastChain.GetBranchWork(maximum, 1)
	require.NoError(t, err)
	expected = new(big.Int).Mul(unit, big.NewInt(5))
	assert.Zero(t, sum.Cmp(expected))
}

// TestGetOutputForkRelative verifies spend markers are interpreted
// relative to the fork height: an output spent above the fork is available
// to a competing branch, one spent at or below it is not.
func TestGetOutputForkRelative(t *testing.T) {
	h := newTestHarness(t)

	blocks := h.extendTip(2)
	origin := blocks[0].MsgBlock().Transactions[0]
	originHash := origin.TxHash()
	op := wire.NewOutPoint(&originHash, 0)

	// Spend the height-1 coinbase at height 3.
	spend := h.spendTx(origin, 0, origin.TxOut[0].Value-1000)
	parent, parentHeight := h.tip()
	block := h.buildBlock(parent, parentHeight, 0, spend)
	require.NoError(t, h.organizer.Organize(block))

	// A branch forking at height 2 does not see the height-3 spend.
	_, found, err := h.fastChain.GetOutput(op, 2)
	require.NoError(t, err)
	assert.True(t, found)

	// A branch building on the tip does.
	_, found, err = h.fastChain.GetOutput(op, 3)
	require.NoError(t, err)
	assert.False(t, found)

	// An output confirmed above the fork height is unavailable.
	laterCoinbase := blocks[1].MsgBlock().Transactions[0]
	laterHash := laterCoinbase.TxHash()
	_, found, err = h.fastChain.GetOutput(wire.NewOutPoint(&laterHash, 0), 1)
	require.NoError(t, err)
	assert.False(t, found)
}
