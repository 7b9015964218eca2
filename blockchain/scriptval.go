// Modified for Quarry
// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"math"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/txscript"
	"quarrychain.org/quarry-core/wire"
)

// txValidateItem holds a transaction along with which input to validate.
type txValidateItem struct {
	txInIndex int
	txIn      *wire.TxIn
	tx        *chainutil.Tx
}

// txValidator provides a type which asynchronously validates transaction
// inputs.  It provides several channels for communication and a processing
// function that is intended to be run across the priority worker pool.
type txValidator struct {
	validateChan chan *txValidateItem
	quitChan     chan struct{}
	resultChan   chan error
	store        PrevOutStore
	flags        txscript.ScriptFlags
	sigCache     *txscript.SigCache
}

// sendResult sends the result of a script pair validation on the internal
// result channel while respecting the quit channel.  This allows orderly
// shutdown when the validation process is aborted early due to a validation
// error in one of the other workers.
func (v *txValidator) sendResult(result error) {
	select {
	case v.resultChan <- result:
	case <-v.quitChan:
	}
}

// validateHandler consumes items to validate from the internal validate
// channel and returns the result of the validation on the internal result
// channel.  It runs on a priority pool worker.
func (v *txValidator) validateHandler() {
out:
	for {
		select {
		case txVI := <-v.validateChan:
			txIn := txVI.txIn
			prevOut, exists := v.store[txIn.PreviousOutPoint]
			if !exists {
				str := fmt.Sprintf("unable to find input "+
					"transaction %v referenced from "+
					"transaction %v",
					txIn.PreviousOutPoint.Hash,
					txVI.tx.Hash())
				v.sendResult(ruleError(ErrMissingTx, str))
				break out
			}

			vm, err := txscript.NewEngine(prevOut.PkScript,
				txVI.tx.MsgTx(), txVI.txInIndex, v.flags,
				v.sigCache, prevOut.Value)
			if err != nil {
				str := fmt.Sprintf("failed to parse input "+
					"%s:%d which references output %v - %v",
					txVI.tx.Hash(), txVI.txInIndex,
					txIn.PreviousOutPoint, err)
				v.sendResult(ruleError(ErrScriptMalformed, str))
				break out
			}

			if err := vm.Execute(); err != nil {
				str := fmt.Sprintf("failed to validate input "+
					"%s:%d which references output %v - %v",
					txVI.tx.Hash(), txVI.txInIndex,
					txIn.PreviousOutPoint, err)
				v.sendResult(ruleError(ErrScriptValidation, str))
				break out
			}

			v.sendResult(nil)

		case <-v.quitChan:
			break out
		}
	}
}

// Validate validates the scripts for all of the passed transaction inputs,
// fanning the work out across the given dispatcher and joining before
// returning.
func (v *txValidator) Validate(items []*txValidateItem, dispatcher *Dispatcher) error {
	if len(items) == 0 {
		return nil
	}

	handlers := dispatcher.Workers()
	if handlers > len(items) {
		handlers = len(items)
	}
	for i := 0; i < handlers; i++ {
		if !dispatcher.Execute(v.validateHandler) {
			return ruleError(ErrServiceStopped, "validation pool stopped")
		}
	}

	numInputs := len(items)
	currentItem := 0
	processedItems := 0
	for processedItems < numInputs {
		var validateChan chan *txValidateItem
		var item *txValidateItem
		if currentItem < numInputs {
			validateChan = v.validateChan
			item = items[currentItem]
		}

		select {
		case validateChan <- item:
			currentItem++

		case err := <-v.resultChan:
			processedItems++
			if err != nil {
				close(v.quitChan)
				return err
			}
		}
	}

	close(v.quitChan)
	return nil
}

// newTxValidator returns a new instance of txValidator to be used for
// validating transaction scripts asynchronously.
func newTxValidator(store PrevOutStore, flags txscript.ScriptFlags,
	sigCache *txscript.SigCache) *txValidator {

	return &txValidator{
		validateChan: make(chan *txValidateItem),
		quitChan:     make(chan struct{}),
		resultChan:   make(chan error),
		store:        store,
		flags:        flags,
		sigCache:     sigCache,
	}
}

// checkBlockScripts executes and validates the scripts for all transactions
// in the passed block against the resolved prevouts.
func (v *Validator) checkBlockScripts(block *chainutil.Block,
	store PrevOutStore, flags txscript.ScriptFlags) error {

	numInputs := 0
	for _, tx := range block.Transactions()[1:] {
		numInputs += len(tx.MsgTx().TxIn)
	}

	txValItems := make([]*txValidateItem, 0, numInputs)
	for _, tx := range block.Transactions()[1:] {
		for txInIdx, txIn := range tx.MsgTx().TxIn {
			if txIn.PreviousOutPoint.Index == math.MaxUint32 {
				continue
			}

			txVI := &txValidateItem{
				txInIndex: txInIdx,
				txIn:      txIn,
				tx:        tx,
			}
			txValItems = append(txValItems, txVI)
		}
	}

	validator := newTxValidator(store, flags, v.sigCache)
	return validator.Validate(txValItems, v.dispatcher)
}
