package blockchain

import (
	"sync/atomic"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/config"
	"quarrychain.org/quarry-core/consensus"
	"quarrychain.org/quarry-core/txscript"
)

// Validator drives the three consensus phases over candidate branches:
//
//	Check   - stateless checks on the candidate alone, no chain access
//	Accept  - checks dependent on chain state at the branch top
//	Connect - script execution for the branch top
//
// Each phase short-circuits with a RuleError describing the violated rule.
type Validator struct {
	fastChain  *FastChain
	populator  *ChainStatePopulator
	dispatcher *Dispatcher
	sigCache   *txscript.SigCache
	params     *consensus.Params
	timeSource MedianTimeSource

	relayTransactions bool
	revalidateBranch  bool
	checkpointsOff    bool

	stopFlag int32
}

// NewValidator returns a validator bound to the given chain surfaces.
func NewValidator(fastChain *FastChain, populator *ChainStatePopulator,
	dispatcher *Dispatcher, sigCache *txscript.SigCache,
	params *consensus.Params, timeSource MedianTimeSource,
	cfg *config.ChainConfig) *Validator {

	return &Validator{
		fastChain:         fastChain,
		populator:         populator,
		dispatcher:        dispatcher,
		sigCache:          sigCache,
		params:            params,
		timeSource:        timeSource,
		relayTransactions: cfg.RelayTransactions,
		revalidateBranch:  cfg.RevalidateBranch,
		checkpointsOff:    cfg.DisableCheckpoints,
	}
}

// Start arms the validator.
func (v *Validator) Start() {
	atomic.StoreInt32(&v.stopFlag, 0)
}

// Stop causes in-flight phases to fail fast with ErrServiceStopped.
func (v *Validator) Stop() {
	atomic.StoreInt32(&v.stopFlag, 1)
}

func (v *Validator) stopped() bool {
	return atomic.LoadInt32(&v.stopFlag) != 0
}

// Check runs the stateless phase on the candidate block: size bounds, proof
// of work target encoding and hash, coinbase structure, duplicate txids,
// merkle root and timestamp sanity against the adjusted wall clock.  It is
// callable before a branch exists.
func (v *Validator) Check(block *chainutil.Block) error {
	if v.stopped() {
		return ruleError(ErrServiceStopped, "validator stopped")
	}
	return checkBlockSanity(block, v.params.PowLimit, v.timeSource)
}

// Connect runs the script phase.  Only the branch top is verified: the
// lower branch blocks were connected when they were admitted to the pool as
// valid side-chain tips.  RevalidateBranch re-runs every block for stricter
// deployments.
func (v *Validator) Connect(branch *Branch) error {
	if v.stopped() {
		return ruleError(ErrServiceStopped, "validator stopped")
	}

	blocks := branch.Blocks()
	start := len(blocks) - 1
	if v.revalidateBranch {
		start = 0
	}

	height := branch.Height() + uint64(start)
	for _, block := range blocks[start:] {
		height++
		if v.stopped() {
			return ruleError(ErrServiceStopped, "validator stopped")
		}
		if err := v.connectBlock(branch, block, height); err != nil {
			return err
		}
	}
	return nil
}

// connectBlock verifies the scripts of every input of every transaction of
// the block with the fork flags from its chain state snapshot.
func (v *Validator) connectBlock(branch *Branch, block *chainutil.Block,
	height uint64) error {

	state := blockState(block)
	flags := txscript.ScriptFlags(0)
	if state != nil {
		flags = state.Flags()
	}

	store, err := v.fetchPrevOuts(branch, block, height)
	if err != nil {
		return err
	}

	return v.checkBlockScripts(block, store, flags)
}

// blockState returns the chain state snapshot annotated onto the block, if
// any.
func blockState(block *chainutil.Block) *ChainState {
	if state, ok := block.Validation.State.(*ChainState); ok {
		return state
	}
	return nil
}
