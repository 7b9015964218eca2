// Modified for Quarry
// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"quarrychain.org/quarry-core/consensus"
)

// latestCheckpoint returns the most recent checkpoint, or nil when the
// network defines none or enforcement is disabled.
func (v *Validator) latestCheckpoint() *consensus.Checkpoint {
	if v.checkpointsOff || len(v.params.Checkpoints) == 0 {
		return nil
	}
	return &v.params.Checkpoints[len(v.params.Checkpoints)-1]
}

// checkForkDepth rejects branches that fork the chain below the most
// recent checkpoint.  A branch rooted under a checkpoint could otherwise
// force revalidation of history the checkpoint has pinned.
func (v *Validator) checkForkDepth(branch *Branch) error {
	checkpoint := v.latestCheckpoint()
	if checkpoint == nil {
		return nil
	}

	if branch.Height() < checkpoint.Height {
		str := fmt.Sprintf("branch at height %d forks the main chain "+
			"before the previous checkpoint at height %d",
			branch.Height(), checkpoint.Height)
		return ruleError(ErrForkTooOld, str)
	}
	return nil
}
