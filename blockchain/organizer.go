package blockchain

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/config"
	"quarrychain.org/quarry-core/logging"
	"quarrychain.org/quarry-core/wire"
)

// Organizer decides whether an incoming block extends, forks, or is
// rejected from the chain, validates it in three phases, and atomically
// swaps the confirmed tip when a competing branch accumulates strictly
// more proof of work.
//
// Store access is limited to: block existence, height lookup, branch work,
// the reorganize swap, and the reads of the validator and populator.
type Organizer struct {
	// chainLock is the process-wide writer mutex.  It is shared with the
	// sibling transaction organizer so block commits and mempool
	// admission are mutually exclusive.
	chainLock *sync.Mutex

	stopFlag int32

	fastChain  *FastChain
	pool       *BlockPool
	validator  *Validator
	populator  *ChainStatePopulator
	subscriber *ReorganizeSubscriber

	strictDuplicateCheck bool
}

// NewOrganizer wires the organizer over the given chain surfaces.  The
// writer mutex is injected so the host can share it with the transaction
// organizer.
func NewOrganizer(chainLock *sync.Mutex, fastChain *FastChain,
	pool *BlockPool, validator *Validator, populator *ChainStatePopulator,
	cfg *config.ChainConfig) *Organizer {

	return &Organizer{
		chainLock:            chainLock,
		stopFlag:             1,
		fastChain:            fastChain,
		pool:                 pool,
		validator:            validator,
		populator:            populator,
		subscriber:           NewReorganizeSubscriber(),
		strictDuplicateCheck: cfg.StrictDuplicateCheck,
	}
}

// Stopped returns whether the organizer has been stopped.
func (o *Organizer) Stopped() bool {
	return atomic.LoadInt32(&o.stopFlag) != 0
}

// Start arms the organizer, its validator and its subscriber fan-out.
func (o *Organizer) Start() {
	o.subscriber.Start()
	o.validator.Start()
	atomic.StoreInt32(&o.stopFlag, 0)
}

// Stop stops the validator and subscriber and causes every subsequent or
// in-flight organize to resolve to ErrServiceStopped at its next phase
// boundary.  Already-committed work is not rolled back.  The pool is
// cleared; the priority pool is drained by the owner after any in-flight
// organize has released the writer mutex.
func (o *Organizer) Stop() {
	o.validator.Stop()
	o.subscriber.Stop()
	atomic.StoreInt32(&o.stopFlag, 1)
	o.pool.Clear()
}

// ChainLock exposes the shared writer mutex for the sibling transaction
// organizer.
func (o *Organizer) ChainLock() *sync.Mutex {
	return o.chainLock
}

// PoolState returns the chain state snapshot for the next block on the
// confirmed tip, shared with the transaction organizer.
func (o *Organizer) PoolState() *ChainState {
	return o.populator.PoolState()
}

// Filter strips hashes known to the pool from the inventory.
func (o *Organizer) Filter(inv []*wire.InvVect) []*wire.InvVect {
	return o.pool.Filter(inv)
}

// SubscribeReorganize registers a handler for committed reorganizations.
func (o *Organizer) SubscribeReorganize(handler ReorganizeHandler) {
	o.subscriber.Subscribe(handler)
}

// Organize runs the full validate and commit sequence for the candidate
// block under the writer mutex.  Exactly one organize is in flight at a
// time.  The returned error is nil on commit, or a RuleError carrying the
// rejection code.
func (o *Organizer) Organize(block *chainutil.Block) error {
	// Critical section: the writer mutex is held across the whole
	// validate+commit pipeline so the work comparison and swap are
	// linearizable against both reorg writes and mempool admission.
	o.chainLock.Lock()

	// The stop check must be guarded.
	if o.Stopped() {
		o.chainLock.Unlock()
		return ruleError(ErrServiceStopped, "organizer stopped")
	}

	// Checks that are independent of chain state.
	if err := o.validator.Check(block); err != nil {
		o.chainLock.Unlock()
		return err
	}

	// Get the path through the block forest to the new block.  The last
	// branch block is the only one left to verify; all lower blocks were
	// verified when they entered the pool.
	branch := o.pool.GetPath(block)

	dup, err := o.isDuplicate(block, branch)
	if err != nil {
		o.chainLock.Unlock()
		return err
	}
	if dup {
		o.chainLock.Unlock()
		return ruleError(ErrDuplicateBlock, "block already known")
	}

	// Resolve the fork height.  A fork point that is not confirmed means
	// the candidate does not attach: orphan.  The organizer does not
	// retain orphans; that duty belongs to the sync layer feeding it.
	forkHeight, found, err := o.fastChain.GetHeight(branch.ForkHash())
	if err != nil {
		o.chainLock.Unlock()
		return err
	}
	if !found {
		o.chainLock.Unlock()
		return ruleError(ErrOrphanBlock, "branch does not attach to the "+
			"confirmed chain")
	}
	branch.SetHeight(forkHeight)
	o.pool.RecordHeights(branch)

	// Run accept/connect/commit off the caller goroutine and wait on the
	// completion signal, so the writer mutex is released on the original
	// thread even when validation fans out across the priority pool.
	resume := make(chan error, 1)
	go func() {
		resume <- o.verifyAndCommit(branch)
	}()
	err = <-resume

	o.chainLock.Unlock()
	return err
}

// isDuplicate applies the duplicate-hash check.  The default applies it to
// the candidate, matching the reference behavior even though that permits
// a chain split on a genuine hash collision; the strict mode only treats
// the hash as duplicate when it is confirmed above the branch point, where
// a collision would actually conflict.
func (o *Organizer) isDuplicate(block *chainutil.Block, branch *Branch) (bool, error) {
	if branch.Empty() {
		return true, nil
	}

	exists, err := o.fastChain.GetBlockExists(block.Hash())
	if err != nil {
		return false, err
	}
	if !o.strictDuplicateCheck || !exists {
		return exists, nil
	}

	confirmedHeight, found, err := o.fastChain.GetHeight(block.Hash())
	if err != nil || !found {
		return found, err
	}
	forkHeight, found, err := o.fastChain.GetHeight(branch.ForkHash())
	if err != nil || !found {
		// The fork point resolution below reports the orphan case.
		return false, err
	}
	return confirmedHeight > forkHeight, nil
}

// verifyAndCommit drives accept, connect, the work comparison and the
// reorganization swap.  Each phase boundary re-checks the stop flag.
func (o *Organizer) verifyAndCommit(branch *Branch) error {
	if o.Stopped() {
		return ruleError(ErrServiceStopped, "organizer stopped")
	}

	// Checks that are dependent on chain state and prevouts.
	if err := o.validator.Accept(branch); err != nil {
		return err
	}

	if o.Stopped() {
		return ruleError(ErrServiceStopped, "organizer stopped")
	}

	// Checks that include script validation.
	if err := o.validator.Connect(branch); err != nil {
		return err
	}

	if o.Stopped() {
		return ruleError(ErrServiceStopped, "organizer stopped")
	}

	// The top block is valid even if the branch has insufficient work.
	top := branch.Top()
	top.Validation.Err = nil
	top.Validation.StartNotify = time.Now()

	firstHeight := branch.Height() + 1
	maximum := branch.Work()

	// The chain query stops as soon as it exceeds the maximum.
	threshold, err := o.fastChain.GetBranchWork(maximum, firstHeight)
	if err != nil {
		return ruleError(ErrOperationFailed, err.Error())
	}

	// Strict greater-than: an equal-work branch does not displace the
	// incumbent; first seen wins at ties.
	if maximum.Cmp(threshold) <= 0 {
		o.pool.Add(top)
		return ruleError(ErrInsufficientWork, fmt.Sprintf(
			"branch work %s does not exceed confirmed work %s from "+
				"height %d", maximum, threshold, firstHeight))
	}

	// Replace!  Switch!
	outgoing, err := o.fastChain.Reorganize(branch.ForkPoint(), branch.Blocks())
	if err != nil {
		logging.CPrint(logging.FATAL, "failure writing block to store, "+
			"store is now corrupted", logging.LogFormat{
			"err":  err,
			"fork": branch.ForkHash(),
		})
		return ruleError(ErrStoreCorrupted, err.Error())
	}

	o.pool.Remove(branch.Blocks())
	o.pool.Prune(branch.TopHeight())
	o.pool.AddAll(outgoing)

	// Promote the pool snapshot to the new tip.
	if _, err := o.populator.PopulatePool(); err != nil {
		logging.CPrint(logging.ERROR, "failed to refresh pool chain state",
			logging.LogFormat{"err": err})
	}

	logging.CPrint(logging.INFO, "REORGANIZE: chain extended or switched",
		logging.LogFormat{
			"fork_height": branch.Height(),
			"new_tip":     branch.Top().Hash(),
			"incoming":    branch.Size(),
			"outgoing":    len(outgoing),
		})

	o.subscriber.Relay(branch.Height(), branch.Blocks(), outgoing)
	return nil
}
