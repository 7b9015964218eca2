package blockchain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/database"
	"quarrychain.org/quarry-core/database/memdb"
	"quarrychain.org/quarry-core/wire"
)

// TestOrganizeExtendTip exercises the simple extension path: a valid block
// chaining from the confirmed tip commits, advances the tip, and notifies
// subscribers with an empty outgoing set.
func TestOrganizeExtendTip(t *testing.T) {
	h := newTestHarness(t)
	recorder := newReorgRecorder()
	h.organizer.SubscribeReorganize(recorder.handler())

	preWork := h.confirmedWorkFrom(0)

	block := h.buildBlock(h.genesis, 0, 0)
	require.NoError(t, h.organizer.Organize(block))

	tip, tipHeight := h.tip()
	assert.Equal(t, uint64(1), tipHeight)
	assert.Equal(t, block.Hash(), tip.Hash())

	// Confirmed work strictly increases on every successful organize.
	assert.Equal(t, 1, h.confirmedWorkFrom(0).Cmp(preWork))

	events := recorder.wait(t, 1)
	require.Len(t, events, 1)
	assert.NoError(t, events[0].err)
	assert.Equal(t, uint64(0), events[0].forkHeight)
	require.Len(t, events[0].incoming, 1)
	assert.Equal(t, block.Hash(), events[0].incoming[0].Hash())
	assert.Empty(t, events[0].outgoing)
}

// TestOrganizeDuplicate resubmits a committed block and expects a
// duplicate rejection without any subscriber notification.
func TestOrganizeDuplicate(t *testing.T) {
	h := newTestHarness(t)

	blocks := h.extendTip(1)

	recorder := newReorgRecorder()
	h.organizer.SubscribeReorganize(recorder.handler())

	err := h.organizer.Organize(blocks[0])
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrDuplicateBlock), "got %v", err)

	recorder.mtx.Lock()
	assert.Empty(t, recorder.events)
	recorder.mtx.Unlock()
}

// TestOrganizeOrphan submits a block whose parent is unknown and expects
// an orphan rejection with the pool left untouched.
func TestOrganizeOrphan(t *testing.T) {
	h := newTestHarness(t)

	unknownParent := wire.DoubleHashH([]byte("unknown parent"))
	fake := h.buildBlockOnHash(unknownParent,
		h.genesis.MsgBlock().Header.Timestamp, 41, 7)

	err := h.organizer.Organize(fake)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrOrphanBlock), "got %v", err)
	assert.Zero(t, h.pool.Size())
}

// TestOrganizeSideBranchInsufficientWork builds a confirmed chain of three
// blocks and submits an equal-work sibling of the tip.  The sibling must be
// rejected with insufficient work (strict greater-than rule; ties keep the
// incumbent) and retained in the pool.
func TestOrganizeSideBranchInsufficientWork(t *testing.T) {
	h := newTestHarness(t)

	blocks := h.extendTip(3)
	_, tipHeight := h.tip()
	require.Equal(t, uint64(3), tipHeight)

	// Sibling of the confirmed tip: same parent, same bits, so exactly
	// equal work against the competing confirmed suffix.
	sibling := h.buildBlock(blocks[1], 2, 9)
	err := h.organizer.Organize(sibling)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrInsufficientWork), "got %v", err)

	// The confirmed chain is unchanged and the side block is pooled for
	// a later extension.
	_, tipHeight = h.tip()
	assert.Equal(t, uint64(3), tipHeight)
	assert.True(t, h.pool.KnownBlock(sibling.Hash()))
}

// TestOrganizeReorg extends the pooled side branch from the previous
// scenario past the confirmed tip and verifies the swap: outgoing carries
// the displaced block, incoming carries the branch in order, and the pool
// swaps membership accordingly.
func TestOrganizeReorg(t *testing.T) {
	h := newTestHarness(t)
	recorder := newReorgRecorder()
	h.organizer.SubscribeReorganize(recorder.handler())

	blocks := h.extendTip(3)
	oldTip := blocks[2]

	sibling := h.buildBlock(blocks[1], 2, 9)
	err := h.organizer.Organize(sibling)
	require.True(t, IsErrorCode(err, ErrInsufficientWork), "got %v", err)

	extension := h.buildBlock(sibling, 3, 9)
	require.NoError(t, h.organizer.Organize(extension))

	tip, tipHeight := h.tip()
	assert.Equal(t, uint64(4), tipHeight)
	assert.Equal(t, extension.Hash(), tip.Hash())

	// Old tip moved into the pool; branch blocks left it.
	assert.True(t, h.pool.KnownBlock(oldTip.Hash()))
	assert.False(t, h.pool.KnownBlock(sibling.Hash()))
	assert.False(t, h.pool.KnownBlock(extension.Hash()))

	// Three extension events plus the reorg.
	events := recorder.wait(t, 4)
	reorg := events[3]
	assert.Equal(t, uint64(2), reorg.forkHeight)
	require.Len(t, reorg.incoming, 2)
	assert.Equal(t, sibling.Hash(), reorg.incoming[0].Hash())
	assert.Equal(t, extension.Hash(), reorg.incoming[1].Hash())
	require.Len(t, reorg.outgoing, 1)
	assert.Equal(t, oldTip.Hash(), reorg.outgoing[0].Hash())

	// New tip height equals fork height plus incoming length.
	assert.Equal(t, reorg.forkHeight+uint64(len(reorg.incoming)), tipHeight)
}

// TestOrganizeSpendAcrossBranch commits a block spending a coinbase output
// created two blocks earlier, exercising prevout population from the
// confirmed store.
func TestOrganizeSpendAcrossBranch(t *testing.T) {
	h := newTestHarness(t)

	blocks := h.extendTip(2)

	origin := blocks[0].MsgBlock().Transactions[0]
	spend := h.spendTx(origin, 0, origin.TxOut[0].Value-1000)

	parent, parentHeight := h.tip()
	block := h.buildBlock(parent, parentHeight, 0, spend)
	require.NoError(t, h.organizer.Organize(block))

	_, tipHeight := h.tip()
	assert.Equal(t, uint64(3), tipHeight)

	// Re-spending the same output is a double spend.
	respend := h.spendTx(origin, 0, origin.TxOut[0].Value-2000)
	parent, parentHeight = h.tip()
	bad := h.buildBlock(parent, parentHeight, 0, respend)
	err := h.organizer.Organize(bad)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrMissingTxOut), "got %v", err)
}

// TestOrganizeStopped verifies every organize after Stop resolves to
// ErrServiceStopped.
func TestOrganizeStopped(t *testing.T) {
	h := newTestHarness(t)

	block := h.buildBlock(h.genesis, 0, 0)
	h.organizer.Stop()

	err := h.organizer.Organize(block)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrServiceStopped), "got %v", err)
}

// failingDb wraps a store and injects a write failure into Reorganize.
type failingDb struct {
	database.Db
	fail bool
}

func (f *failingDb) Reorganize(forkSha *wire.Hash, incoming []*chainutil.Block) ([]*chainutil.Block, error) {
	if f.fail {
		return nil, errors.New("injected write failure")
	}
	return f.Db.Reorganize(forkSha, incoming)
}

// TestOrganizeFatalWrite injects a reorganize write failure and expects
// the fatal store-corrupted code.
func TestOrganizeFatalWrite(t *testing.T) {
	inner, err := memdb.CreateDB()
	require.NoError(t, err)
	fdb := &failingDb{Db: inner}

	h := newTestHarnessWithDb(t, fdb)
	h.extendTip(1)

	fdb.fail = true
	parent, parentHeight := h.tip()
	block := h.buildBlock(parent, parentHeight, 0)
	err = h.organizer.Organize(block)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrStoreCorrupted), "got %v", err)
}
