// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"math/big"

	"github.com/btcsuite/btcd/btcec"
	"github.com/pkg/errors"

	"quarrychain.org/quarry-core/wire"
)

// Engine verifies a single transaction input against the output script it
// spends.
type Engine struct {
	pkScript    []byte
	tx          *wire.MsgTx
	txIdx       int
	flags       ScriptFlags
	sigCache    *SigCache
	inputAmount int64
}

// hasFlag returns whether the script engine instance has the passed flag
// set.
func (vm *Engine) hasFlag(flag ScriptFlags) bool {
	return vm.flags&flag == flag
}

// Execute runs the verification and returns nil if the input witness
// satisfies the output script.
func (vm *Engine) Execute() error {
	pubKey, err := btcec.ParsePubKey(vm.pkScript, btcec.S256())
	if err != nil {
		return errors.Wrap(err, "parse output pubkey")
	}

	witness := vm.tx.TxIn[vm.txIdx].Witness
	if len(witness) != 1 {
		return errors.Errorf("witness stack depth %d, want 1", len(witness))
	}
	sigBytes := witness[0]
	if len(sigBytes) == 0 {
		return errors.New("empty witness signature")
	}

	var signature *btcec.Signature
	if vm.hasFlag(ScriptVerifyDERSignatures) {
		signature, err = btcec.ParseDERSignature(sigBytes, btcec.S256())
	} else {
		signature, err = btcec.ParseSignature(sigBytes, btcec.S256())
	}
	if err != nil {
		return errors.Wrap(err, "parse witness signature")
	}

	if vm.hasFlag(ScriptVerifyLowS) {
		halfOrder := new(big.Int).Rsh(btcec.S256().Params().N, 1)
		if signature.S.Cmp(halfOrder) > 0 {
			return errors.New("signature S value is too high")
		}
	}

	sigHash := CalcSignatureHash(vm.tx, vm.txIdx, vm.pkScript,
		vm.inputAmount, SigHashAll)

	if vm.sigCache != nil {
		var sigHashKey wire.Hash
		copy(sigHashKey[:], sigHash)
		if vm.sigCache.Exists(sigHashKey, signature, pubKey) {
			return nil
		}
		if !signature.Verify(sigHash, pubKey) {
			return errors.New("signature verification failed")
		}
		vm.sigCache.Add(sigHashKey, signature, pubKey)
		return nil
	}

	if !signature.Verify(sigHash, pubKey) {
		return errors.New("signature verification failed")
	}
	return nil
}

// NewEngine returns a new script engine for the provided output script,
// spending transaction and input index.
func NewEngine(pkScript []byte, tx *wire.MsgTx, txIdx int, flags ScriptFlags,
	sigCache *SigCache, inputAmount int64) (*Engine, error) {

	if txIdx < 0 || txIdx >= len(tx.TxIn) {
		return nil, errors.Errorf("transaction input index %d is "+
			"negative or >= %d", txIdx, len(tx.TxIn))
	}
	if !IsPayToPubKey(pkScript) {
		return nil, errors.New("output script is not pay-to-pubkey")
	}

	return &Engine{
		pkScript:    pkScript,
		tx:          tx,
		txIdx:       txIdx,
		flags:       flags,
		sigCache:    sigCache,
		inputAmount: inputAmount,
	}, nil
}
