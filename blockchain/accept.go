// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
)

// Accept runs the chain-state-dependent phase over the branch top: the
// difficulty target matches the expected work requirement, the version
// meets the minimum, the timestamp is after the median time past, the
// coinbase commits to the right height, the sigop bound holds, and values
// conserve over the populated prevouts at the branch top height.
//
// The snapshot produced for the top is annotated onto the block so Connect
// can reuse it.  A successful commit does not read it; the organizer
// rebuilds the pool snapshot through PopulatePool.
func (v *Validator) Accept(branch *Branch) error {
	if v.stopped() {
		return ruleError(ErrServiceStopped, "validator stopped")
	}

	if err := v.checkForkDepth(branch); err != nil {
		return err
	}

	state, err := v.populator.Populate(branch)
	if err != nil {
		return err
	}

	top := branch.Top()
	topHeight := branch.TopHeight()
	top.Validation.Height = topHeight
	top.Validation.State = state

	header := &top.MsgBlock().Header

	if header.Bits != state.WorkRequired() {
		str := fmt.Sprintf("block difficulty of %08x is not the "+
			"expected value of %08x", header.Bits,
			state.WorkRequired())
		return ruleError(ErrUnexpectedDifficulty, str)
	}

	if header.Version < state.MinVersion() {
		str := fmt.Sprintf("new blocks with version %d are no longer "+
			"valid; the minimum version is %d", header.Version,
			state.MinVersion())
		return ruleError(ErrBlockVersionTooOld, str)
	}

	if !header.Timestamp.After(state.MedianTimePast()) {
		str := fmt.Sprintf("block timestamp of %v is not after the "+
			"median time of the previous blocks (%v)",
			header.Timestamp, state.MedianTimePast())
		return ruleError(ErrTimeTooOld, str)
	}

	transactions := top.Transactions()
	if err := checkSerializedHeight(transactions[0], topHeight); err != nil {
		return err
	}

	totalSigOps := 0
	for _, tx := range transactions {
		lastSigOps := totalSigOps
		totalSigOps += CountSigOps(tx)
		if totalSigOps < lastSigOps || totalSigOps > MaxSigOpsPerBlock {
			str := fmt.Sprintf("block contains too many signature "+
				"operations - got %v, max %v", totalSigOps,
				MaxSigOpsPerBlock)
			return ruleError(ErrTooManySigOps, str)
		}
	}

	store, err := v.fetchPrevOuts(branch, top, topHeight)
	if err != nil {
		return err
	}

	var totalFees int64
	for _, tx := range transactions {
		txFee, err := CheckTransactionInputs(tx, topHeight, store,
			v.params.CoinbaseMaturity)
		if err != nil {
			return err
		}

		lastTotalFees := totalFees
		totalFees += txFee
		if totalFees < lastTotalFees {
			return ruleError(ErrBadFees, "total fees for block "+
				"overflows accumulator")
		}
	}

	var totalGrainOut int64
	for _, txOut := range transactions[0].MsgTx().TxOut {
		totalGrainOut += txOut.Value
	}

	expectedGrainOut := CalcBlockSubsidy(topHeight,
		v.params.SubsidyHalvingInterval) + totalFees
	if totalGrainOut > expectedGrainOut {
		str := fmt.Sprintf("coinbase transaction for block pays %v "+
			"which is more than expected value of %v",
			totalGrainOut, expectedGrainOut)
		return ruleError(ErrBadCoinbaseValue, str)
	}

	return nil
}
