package blockchain

import (
	"sort"
	"sync"
	"time"

	"quarrychain.org/quarry-core/consensus"
	"quarrychain.org/quarry-core/txscript"
	"quarrychain.org/quarry-core/wire"
)

// medianTimeBlocks is the number of previous blocks which should be used to
// calculate the median time used to validate block timestamps.
const medianTimeBlocks = 11

// ChainState is the immutable consensus snapshot applicable to validating a
// block at a particular height: the script fork flags in force, the minimum
// acceptable block version, the required difficulty bits and the median
// time of the preceding blocks.  Snapshots are shared values; a new one is
// produced on every successful commit.
type ChainState struct {
	height         uint64
	flags          txscript.ScriptFlags
	minVersion     int32
	workRequired   uint32
	medianTimePast time.Time
}

// StateHeight returns the height the snapshot applies to.
func (s *ChainState) StateHeight() uint64 {
	return s.height
}

// Flags returns the script fork flags in force at the snapshot height.
func (s *ChainState) Flags() txscript.ScriptFlags {
	return s.flags
}

// MinVersion returns the minimum acceptable block version.
func (s *ChainState) MinVersion() int32 {
	return s.minVersion
}

// WorkRequired returns the difficulty bits a block at the snapshot height
// must carry.
func (s *ChainState) WorkRequired() uint32 {
	return s.workRequired
}

// MedianTimePast returns the median timestamp of the blocks preceding the
// snapshot height.
func (s *ChainState) MedianTimePast() time.Time {
	return s.medianTimePast
}

// headerReader resolves a header by confirmed height, possibly overlaid by
// a branch suffix.
type headerReader func(height uint64) (*wire.BlockHeader, error)

// ChainStatePopulator assembles chain state snapshots from the confirmed
// chain and an optional branch suffix, and owns the current pool snapshot
// shared with the transaction organizer.
type ChainStatePopulator struct {
	fastChain *FastChain
	params    *consensus.Params

	// poolMtx guards the pool snapshot pointer so the mempool side can
	// read it without blocking a reorg.
	poolMtx   sync.RWMutex
	poolState *ChainState
}

// NewChainStatePopulator returns a populator reading through the given
// fast chain.
func NewChainStatePopulator(fastChain *FastChain, params *consensus.Params) *ChainStatePopulator {
	return &ChainStatePopulator{
		fastChain: fastChain,
		params:    params,
	}
}

// PoolState returns the snapshot applicable to the next block on the
// confirmed tip.
func (c *ChainStatePopulator) PoolState() *ChainState {
	c.poolMtx.RLock()
	defer c.poolMtx.RUnlock()

	return c.poolState
}

// setPoolState publishes a new pool snapshot via guarded swap.
func (c *ChainStatePopulator) setPoolState(state *ChainState) {
	c.poolMtx.Lock()
	c.poolState = state
	c.poolMtx.Unlock()
}

// confirmedHeader is the headerReader over the confirmed chain alone.
func (c *ChainStatePopulator) confirmedHeader(height uint64) (*wire.BlockHeader, error) {
	return c.fastChain.GetHeader(height)
}

// branchHeader returns a headerReader over the confirmed chain with the
// branch suffix overlaid above its fork height.
func (c *ChainStatePopulator) branchHeader(branch *Branch) headerReader {
	return func(height uint64) (*wire.BlockHeader, error) {
		if height > branch.Height() && height <= branch.TopHeight() {
			block := branch.Blocks()[height-branch.Height()-1]
			header := block.MsgBlock().Header
			return &header, nil
		}
		return c.fastChain.GetHeader(height)
	}
}

// Populate builds the snapshot for validating the top of the branch at its
// hypothetical height.
func (c *ChainStatePopulator) Populate(branch *Branch) (*ChainState, error) {
	return c.populate(branch.TopHeight(), c.branchHeader(branch))
}

// PopulatePool builds the snapshot for validating the next block on the
// confirmed tip, promoting the cached snapshot when the target height is
// unchanged.
func (c *ChainStatePopulator) PopulatePool() (*ChainState, error) {
	tip, err := c.fastChain.GetLastHeight()
	if err != nil {
		return nil, err
	}
	target := tip + 1

	if cached := c.PoolState(); cached != nil && cached.height == target {
		return cached, nil
	}

	state, err := c.populate(target, c.confirmedHeader)
	if err != nil {
		return nil, err
	}
	c.setPoolState(state)
	return state, nil
}

// populate computes the snapshot for a block at the given height, reading
// header fields over the retargeting and median-time windows ending just
// below it.
func (c *ChainStatePopulator) populate(height uint64, headerAt headerReader) (*ChainState, error) {
	if height == 0 {
		return nil, ruleError(ErrOperationFailed, "no chain state below genesis")
	}

	prevHeight := height - 1
	prevHeader, err := headerAt(prevHeight)
	if err != nil {
		return nil, err
	}

	workRequired, err := c.calcNextRequiredDifficulty(prevHeight, prevHeader, headerAt)
	if err != nil {
		return nil, err
	}

	medianTimePast, err := c.calcPastMedianTime(prevHeight, headerAt)
	if err != nil {
		return nil, err
	}

	var flags txscript.ScriptFlags
	if height >= c.params.DERSignaturesActivationHeight {
		flags |= txscript.ScriptVerifyDERSignatures
	}
	if height >= c.params.CheckLockTimeVerifyActivationHeight {
		flags |= txscript.ScriptVerifyCheckLockTimeVerify
	}
	if height >= c.params.CheckSequenceVerifyActivationHeight {
		flags |= txscript.ScriptVerifyCheckSequenceVerify
	}

	return &ChainState{
		height:         height,
		flags:          flags,
		minVersion:     serializedHeightVersion,
		workRequired:   workRequired,
		medianTimePast: medianTimePast,
	}, nil
}

// calcPastMedianTime calculates the median time of the blocks prior to and
// including the block at the passed height.
func (c *ChainStatePopulator) calcPastMedianTime(height uint64, headerAt headerReader) (time.Time, error) {
	timestamps := make([]time.Time, 0, medianTimeBlocks)
	iterHeight := height
	for i := 0; i < medianTimeBlocks; i++ {
		header, err := headerAt(iterHeight)
		if err != nil {
			return time.Time{}, err
		}
		timestamps = append(timestamps, header.Timestamp)

		if iterHeight == 0 {
			break
		}
		iterHeight--
	}

	sort.Slice(timestamps, func(i, j int) bool {
		return timestamps[i].Before(timestamps[j])
	})
	return timestamps[len(timestamps)/2], nil
}
