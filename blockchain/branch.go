package blockchain

import (
	"math/big"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/wire"
)

// ForkPoint identifies the confirmed block at which a branch diverges from
// the confirmed chain.  It is always a confirmed block, never a pool block.
type ForkPoint struct {
	Hash   wire.Hash
	Height uint64
}

// Branch is an in-memory ordered sequence of candidate blocks rooted at a
// confirmed ancestor.  blocks[0] chains from the fork point and each
// subsequent block chains from its predecessor.  A branch is ephemeral: it
// is constructed per organize call and dropped at the end.
type Branch struct {
	forkHash   wire.Hash
	forkHeight uint64
	blocks     []*chainutil.Block
}

// NewBranch returns an empty branch rooted at the given fork point hash.
// The fork height is resolved later via SetHeight once the hash is located
// in the confirmed chain.
func NewBranch(forkHash wire.Hash) *Branch {
	return &Branch{forkHash: forkHash}
}

// Empty returns whether the branch holds no candidate blocks.
func (b *Branch) Empty() bool {
	return len(b.blocks) == 0
}

// Size returns the number of candidate blocks in the branch.
func (b *Branch) Size() int {
	return len(b.blocks)
}

// Push appends the block iff its previous hash chains from the current top,
// or from the fork point when the branch is empty.
func (b *Branch) Push(block *chainutil.Block) bool {
	prev := &block.MsgBlock().Header.Previous
	if len(b.blocks) == 0 {
		if !prev.IsEqual(&b.forkHash) {
			return false
		}
		b.blocks = append(b.blocks, block)
		return true
	}

	if !prev.IsEqual(b.blocks[len(b.blocks)-1].Hash()) {
		return false
	}
	b.blocks = append(b.blocks, block)
	return true
}

// Top returns the newest block of the branch, or nil when empty.
func (b *Branch) Top() *chainutil.Block {
	if len(b.blocks) == 0 {
		return nil
	}
	return b.blocks[len(b.blocks)-1]
}

// Blocks returns the branch blocks ordered oldest to newest.  The returned
// slice is a view; callers must not mutate it.
func (b *Branch) Blocks() []*chainutil.Block {
	return b.blocks
}

// Height returns the confirmed height of the fork point.
func (b *Branch) Height() uint64 {
	return b.forkHeight
}

// SetHeight records the resolved fork height.
func (b *Branch) SetHeight(height uint64) {
	b.forkHeight = height
}

// TopHeight returns the hypothetical confirmed height of the branch top.
func (b *Branch) TopHeight() uint64 {
	return b.forkHeight + uint64(len(b.blocks))
}

// ForkHash returns the hash of the confirmed ancestor the branch chains
// from.
func (b *Branch) ForkHash() *wire.Hash {
	return &b.forkHash
}

// ForkPoint returns the fork point hash and its resolved height.
func (b *Branch) ForkPoint() ForkPoint {
	return ForkPoint{Hash: b.forkHash, Height: b.forkHeight}
}

// Work sums the proof of each branch block with full 256-bit precision.
// A branch displaces the confirmed suffix only when its work strictly
// exceeds the confirmed work from the fork point; ties never reorganize.
func (b *Branch) Work() *big.Int {
	work := new(big.Int)
	for _, block := range b.blocks {
		work.Add(work, CalcWork(block.MsgBlock().Header.Bits))
	}
	return work
}
