// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/wire"
)

// PrevOutData describes a spent output resolved during prevout population:
// its value and script, the height it was created at (branch heights for
// branch-resident outputs), and whether it came from a coinbase.
type PrevOutData struct {
	Value    int64
	PkScript []byte
	Height   uint64
	Coinbase bool
}

// PrevOutStore houses the resolved prevouts for every input of every
// transaction of the block being validated.
type PrevOutStore map[wire.OutPoint]*PrevOutData

// fetchPrevOuts resolves the spent output for each input of each
// non-coinbase transaction in the given branch block.  Outputs are resolved
// from a previous transaction in the same block, from a lower block of the
// branch, or from the confirmed store at or below the fork height.  An
// output not found, or found spent at or below the fork height, fails the
// transaction.
//
// The double-spend scan covers the block itself and the rest of the branch:
// an outpoint consumed twice anywhere on the path can never connect.
func (v *Validator) fetchPrevOuts(branch *Branch, block *chainutil.Block,
	blockHeight uint64) (PrevOutStore, error) {

	store := make(PrevOutStore)

	// Index every branch transaction (and the block's own) by hash, and
	// collect the outpoints the branch below this block already consumes.
	type branchTx struct {
		tx     *chainutil.Tx
		height uint64
		index  int
	}
	branchTxns := make(map[wire.Hash]*branchTx)
	consumed := make(map[wire.OutPoint]struct{})

	height := branch.Height()
	for _, branchBlock := range branch.Blocks() {
		height++
		if height > blockHeight {
			break
		}
		for i, tx := range branchBlock.Transactions() {
			branchTxns[*tx.Hash()] = &branchTx{tx: tx, height: height, index: i}
			if i == 0 {
				continue
			}
			if height == blockHeight {
				// The block's own spends are tracked by the
				// loop below so in-block order is enforced.
				continue
			}
			for _, txIn := range tx.MsgTx().TxIn {
				consumed[txIn.PreviousOutPoint] = struct{}{}
			}
		}
	}

	transactions := block.Transactions()
	seenInBlock := make(map[wire.Hash]int, len(transactions))
	for i, tx := range transactions {
		seenInBlock[*tx.Hash()] = i
	}

	for txIdx, tx := range transactions {
		if txIdx == 0 {
			continue
		}

		for _, txIn := range tx.MsgTx().TxIn {
			op := txIn.PreviousOutPoint

			if _, spent := consumed[op]; spent {
				str := fmt.Sprintf("transaction %v tried to "+
					"double spend output %v", tx.Hash(), op)
				return nil, ruleError(ErrDoubleSpend, str)
			}
			consumed[op] = struct{}{}

			// Same block: the creating transaction must come
			// earlier in the block.
			if originIdx, ok := seenInBlock[op.Hash]; ok {
				if originIdx >= txIdx {
					str := fmt.Sprintf("transaction %v "+
						"spends output %v created later "+
						"in the same block", tx.Hash(), op)
					return nil, ruleError(ErrBadTxInput, str)
				}
				origin := transactions[originIdx]
				data, err := prevOutFromTx(origin.MsgTx(), op,
					blockHeight, originIdx == 0)
				if err != nil {
					return nil, err
				}
				store[op] = data
				continue
			}

			// Lower block of the branch.
			if origin, ok := branchTxns[op.Hash]; ok && origin.height < blockHeight {
				data, err := prevOutFromTx(origin.tx.MsgTx(), op,
					origin.height, origin.index == 0)
				if err != nil {
					return nil, err
				}
				store[op] = data
				continue
			}

			// Confirmed store at or below the fork height.
			reply, found, err := v.fastChain.GetOutput(&op, branch.Height())
			if err != nil {
				return nil, err
			}
			if !found {
				str := fmt.Sprintf("unable to find unspent "+
					"output %v referenced from transaction %v",
					op, tx.Hash())
				return nil, ruleError(ErrMissingTxOut, str)
			}
			store[op] = &PrevOutData{
				Value:    reply.TxOut.Value,
				PkScript: reply.TxOut.PkScript,
				Height:   reply.Height,
				Coinbase: reply.Coinbase,
			}
		}
	}

	return store, nil
}

// prevOutFromTx extracts the referenced output from the creating
// transaction.
func prevOutFromTx(msgTx *wire.MsgTx, op wire.OutPoint, height uint64,
	coinbase bool) (*PrevOutData, error) {

	if op.Index >= uint32(len(msgTx.TxOut)) {
		str := fmt.Sprintf("out of bounds input index %d in "+
			"transaction %v", op.Index, op.Hash)
		return nil, ruleError(ErrBadTxInput, str)
	}

	txOut := msgTx.TxOut[op.Index]
	return &PrevOutData{
		Value:    txOut.Value,
		PkScript: txOut.PkScript,
		Height:   height,
		Coinbase: coinbase,
	}, nil
}

// CheckTransactionInputs performs a series of checks on the inputs to a
// transaction to ensure they are valid: referenced outputs resolve,
// coinbase spends are mature, and values conserve.  It returns the fee the
// transaction pays.
func CheckTransactionInputs(tx *chainutil.Tx, txHeight uint64,
	store PrevOutStore, coinbaseMaturity uint64) (int64, error) {

	if IsCoinBase(tx) {
		return 0, nil
	}

	txHash := tx.Hash()
	var totalGrainIn int64
	for _, txIn := range tx.MsgTx().TxIn {
		prevOut, exists := store[txIn.PreviousOutPoint]
		if !exists {
			str := fmt.Sprintf("unable to find input transaction "+
				"%v for transaction %v",
				txIn.PreviousOutPoint.Hash, txHash)
			return 0, ruleError(ErrMissingTx, str)
		}

		if prevOut.Coinbase {
			blocksSincePrev := txHeight - prevOut.Height
			if blocksSincePrev < coinbaseMaturity {
				str := fmt.Sprintf("tried to spend coinbase "+
					"output %v from height %v at height %v "+
					"before required maturity of %v blocks",
					txIn.PreviousOutPoint, prevOut.Height,
					txHeight, coinbaseMaturity)
				return 0, ruleError(ErrImmatureSpend, str)
			}
		}

		originGrain := prevOut.Value
		if originGrain < 0 {
			str := fmt.Sprintf("transaction output has negative "+
				"value of %v", originGrain)
			return 0, ruleError(ErrBadTxOutValue, str)
		}
		if originGrain > chainutil.MaxGrain {
			str := fmt.Sprintf("transaction output value of %v is "+
				"higher than max allowed value of %v",
				originGrain, int64(chainutil.MaxGrain))
			return 0, ruleError(ErrBadTxOutValue, str)
		}

		lastGrainIn := totalGrainIn
		totalGrainIn += originGrain
		if totalGrainIn < lastGrainIn || totalGrainIn > chainutil.MaxGrain {
			str := fmt.Sprintf("total value of all transaction "+
				"inputs is %v which is higher than max allowed "+
				"value of %v", totalGrainIn,
				int64(chainutil.MaxGrain))
			return 0, ruleError(ErrBadTxOutValue, str)
		}
	}

	var totalGrainOut int64
	for _, txOut := range tx.MsgTx().TxOut {
		totalGrainOut += txOut.Value
	}

	if totalGrainIn < totalGrainOut {
		str := fmt.Sprintf("total value of all transaction inputs for "+
			"transaction %v is %v which is less than the amount "+
			"spent of %v", txHash, totalGrainIn, totalGrainOut)
		return 0, ruleError(ErrSpendTooHigh, str)
	}

	txFeeInGrain := totalGrainIn - totalGrainOut
	return txFeeInGrain, nil
}
