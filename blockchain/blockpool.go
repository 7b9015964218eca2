package blockchain

import (
	"sync"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/logging"
	"quarrychain.org/quarry-core/wire"
)

// poolEntry holds a side-chain candidate keyed by hash.  The parent hash is
// either another pool entry or the hash of a confirmed block; height is the
// branch height hint recorded lazily during path walks.
type poolEntry struct {
	block      *chainutil.Block
	parentHash wire.Hash
	height     uint64
}

// BlockPool is a bounded cache of side-chain blocks organized as a forest
// rooted at confirmed-chain hashes.  Capacity is enforced by height span
// below the confirmed tip, not by entry count.
//
// The pool is only mutated inside the organizer critical section; the
// internal lock exists for the read-only Filter and KnownBlock paths that
// run outside it.
type BlockPool struct {
	mtx     sync.RWMutex
	limit   uint64
	entries map[wire.Hash]*poolEntry
}

// NewBlockPool returns an empty pool bounded by the reorganization limit.
func NewBlockPool(reorganizationLimit uint64) *BlockPool {
	return &BlockPool{
		limit:   reorganizationLimit,
		entries: make(map[wire.Hash]*poolEntry),
	}
}

// Size returns the number of pooled candidates.
func (p *BlockPool) Size() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	return len(p.entries)
}

// KnownBlock returns whether the passed hash is currently pooled.
func (p *BlockPool) KnownBlock(hash *wire.Hash) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	_, exists := p.entries[*hash]
	return exists
}

// Add inserts the block keyed by hash.  It is a no-op if the hash is
// already present.  The parent need not be resident.
func (p *BlockPool) Add(block *chainutil.Block) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.add(block)
}

// AddAll re-admits a set of blocks, used for the suffix popped by a reorg.
func (p *BlockPool) AddAll(blocks []*chainutil.Block) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	for _, block := range blocks {
		p.add(block)
	}
}

func (p *BlockPool) add(block *chainutil.Block) {
	hash := block.Hash()
	if _, exists := p.entries[*hash]; exists {
		return
	}

	height := block.Validation.Height
	if height == 0 {
		if h := block.Height(); h != chainutil.BlockHeightUnknown {
			height = h
		}
	}

	p.entries[*hash] = &poolEntry{
		block:      block,
		parentHash: block.MsgBlock().Header.Previous,
		height:     height,
	}
}

// Remove drops the given blocks from the pool, used after a branch commits.
func (p *BlockPool) Remove(blocks []*chainutil.Block) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	for _, block := range blocks {
		delete(p.entries, *block.Hash())
	}
}

// Prune evicts every entry whose recorded height is at or below the new
// confirmed tip height minus the reorganization limit.  Such entries can
// never again root a winning branch.  Entries with no recorded height are
// kept, and nothing is evicted while the tip height is below the limit.
func (p *BlockPool) Prune(newTipHeight uint64) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if newTipHeight < p.limit {
		return
	}
	floor := newTipHeight - p.limit

	for hash, entry := range p.entries {
		if entry.height != 0 && entry.height <= floor {
			delete(p.entries, hash)
		}
	}
}

// GetPath reconstructs the branch from the forest to the passed candidate.
// Starting at the candidate it walks parent hashes through the pool until
// reaching a hash that is not pooled: the presumed fork point.  The
// returned branch is ordered fork point to candidate.  An empty branch is
// returned when the candidate itself is already pooled.
func (p *BlockPool) GetPath(block *chainutil.Block) *Branch {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	hash := block.Hash()
	if _, exists := p.entries[*hash]; exists {
		return NewBranch(wire.Hash{})
	}

	path := []*chainutil.Block{block}
	parent := block.MsgBlock().Header.Previous
	for {
		entry, exists := p.entries[parent]
		if !exists {
			break
		}
		path = append(path, entry.block)
		parent = entry.parentHash
	}

	branch := NewBranch(parent)
	for i := len(path) - 1; i >= 0; i-- {
		if !branch.Push(path[i]) {
			// The walk produced the links, so a failed push means
			// the forest violated its parent invariant.
			logging.CPrint(logging.ERROR, "pool path does not chain",
				logging.LogFormat{"block": path[i].Hash()})
			return NewBranch(wire.Hash{})
		}
	}
	return branch
}

// RecordHeights stamps the branch heights resolved for a path walk back
// onto the pooled entries, so pruning sees every entry the walk touched.
func (p *BlockPool) RecordHeights(branch *Branch) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	height := branch.Height()
	for _, block := range branch.Blocks() {
		height++
		if entry, exists := p.entries[*block.Hash()]; exists {
			entry.height = height
		}
	}
}

// Filter strips from the inventory any hashes the pool holds, suppressing
// re-requests for blocks already in flight through the organizer.
func (p *BlockPool) Filter(inv []*wire.InvVect) []*wire.InvVect {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	filtered := inv[:0]
	for _, vect := range inv {
		if vect.Type == wire.InvTypeBlock {
			if _, exists := p.entries[vect.Hash]; exists {
				continue
			}
		}
		filtered = append(filtered, vect)
	}
	return filtered
}

// Clear drops every entry.  The pool survives the organizer between calls
// but is cleared on shutdown.
func (p *BlockPool) Clear() {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.entries = make(map[wire.Hash]*poolEntry)
}
