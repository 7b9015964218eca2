// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"time"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/txscript"
	"quarrychain.org/quarry-core/wire"
)

const (
	// MaxSigOpsPerBlock is the maximum number of signature operations
	// per block.
	MaxSigOpsPerBlock = wire.MaxBlockPayload / 50

	// MaxTimeOffsetSeconds is the maximum number of seconds a block time
	// is allowed to be ahead of the current time.
	MaxTimeOffsetSeconds = 2 * 60 * 60

	// MinCoinbasePayloadLen is the minimum length a coinbase payload can
	// be: at least the serialized block height.
	MinCoinbasePayloadLen = 1

	// MaxCoinbasePayloadLen is the maximum length a coinbase payload can
	// be.
	MaxCoinbasePayloadLen = 100

	// serializedHeightVersion is the block version at which the
	// serialized block height became required in the coinbase.
	serializedHeightVersion = 2

	// baseSubsidy is the starting subsidy amount for mined blocks.  This
	// value is halved every SubsidyHalvingInterval blocks.
	baseSubsidy = 50 * chainutil.GrainPerQuarry
)

var (
	zeroHash = &wire.Hash{}
)

// isNullOutpoint determines whether or not a previous transaction output
// point is set.
func isNullOutpoint(outpoint *wire.OutPoint) bool {
	if outpoint.Index == math.MaxUint32 && outpoint.Hash.IsEqual(zeroHash) {
		return true
	}
	return false
}

// IsCoinBaseTx determines whether or not a transaction is a coinbase.  A
// coinbase is a special transaction created by miners.  This is represented
// in the block chain by a transaction with a single input that has a
// previous output transaction index set to the maximum value along with a
// zero hash.
//
// This function only differs from IsCoinBase in that it works with a raw
// wire transaction as opposed to a higher level util transaction.
func IsCoinBaseTx(msgTx *wire.MsgTx) bool {
	if len(msgTx.TxIn) != 1 {
		return false
	}

	prevOut := &msgTx.TxIn[0].PreviousOutPoint
	if prevOut.Index != math.MaxUint32 || !prevOut.Hash.IsEqual(zeroHash) {
		return false
	}
	return true
}

// IsCoinBase determines whether or not a transaction is a coinbase.
//
// This function only differs from IsCoinBaseTx in that it works with a
// higher level util transaction as opposed to a raw wire transaction.
func IsCoinBase(tx *chainutil.Tx) bool {
	return IsCoinBaseTx(tx.MsgTx())
}

// CalcBlockSubsidy returns the subsidy amount a block at the provided
// height should have.  This is mainly used for determining how much the
// coinbase for newly generated blocks awards as well as validating the
// coinbase for blocks has the expected value.
//
// The subsidy is halved every SubsidyHalvingInterval blocks.
func CalcBlockSubsidy(height uint64, halvingInterval uint64) int64 {
	if halvingInterval == 0 {
		return baseSubsidy
	}

	halvings := height / halvingInterval
	if halvings >= 64 {
		return 0
	}
	return int64(baseSubsidy) >> uint(halvings)
}

// CheckTransactionSanity performs some preliminary checks on a transaction
// to ensure it is sane.  These checks are context free.
func CheckTransactionSanity(tx *chainutil.Tx) error {
	msgTx := tx.MsgTx()
	if len(msgTx.TxIn) == 0 {
		return ruleError(ErrNoTxInputs, "transaction has no inputs")
	}

	if len(msgTx.TxOut) == 0 {
		return ruleError(ErrNoTxOutputs, "transaction has no outputs")
	}

	serializedTxSize := msgTx.SerializeSize()
	if serializedTxSize > wire.MaxBlockPayload {
		str := fmt.Sprintf("serialized transaction is too big - got "+
			"%d, max %d", serializedTxSize, wire.MaxBlockPayload)
		return ruleError(ErrTxTooBig, str)
	}

	var totalGrain int64
	for _, txOut := range msgTx.TxOut {
		grain := txOut.Value
		if grain < 0 {
			str := fmt.Sprintf("transaction output has negative "+
				"value of %v", grain)
			return ruleError(ErrBadTxOutValue, str)
		}
		if grain > chainutil.MaxGrain {
			str := fmt.Sprintf("transaction output value of %v is "+
				"higher than max allowed value of %v", grain,
				int64(chainutil.MaxGrain))
			return ruleError(ErrBadTxOutValue, str)
		}

		totalGrain += grain
		if totalGrain < 0 {
			str := fmt.Sprintf("total value of all transaction "+
				"outputs exceeds max allowed value of %v",
				int64(chainutil.MaxGrain))
			return ruleError(ErrBadTxOutValue, str)
		}
		if totalGrain > chainutil.MaxGrain {
			str := fmt.Sprintf("total value of all transaction "+
				"outputs is %v which is higher than max "+
				"allowed value of %v", totalGrain,
				int64(chainutil.MaxGrain))
			return ruleError(ErrBadTxOutValue, str)
		}
	}

	existingTxOut := make(map[wire.OutPoint]struct{})
	for _, txIn := range msgTx.TxIn {
		if _, exists := existingTxOut[txIn.PreviousOutPoint]; exists {
			return ruleError(ErrDuplicateTxInputs, "transaction "+
				"contains duplicate inputs")
		}
		existingTxOut[txIn.PreviousOutPoint] = struct{}{}
	}

	if IsCoinBase(tx) {
		slen := len(msgTx.Payload)
		if slen < MinCoinbasePayloadLen || slen > MaxCoinbasePayloadLen {
			str := fmt.Sprintf("coinbase transaction payload length "+
				"of %d is out of range (min: %d, max: %d)",
				slen, MinCoinbasePayloadLen, MaxCoinbasePayloadLen)
			return ruleError(ErrBadCoinbaseScriptLen, str)
		}
	} else {
		for _, txIn := range msgTx.TxIn {
			prevOut := &txIn.PreviousOutPoint
			if isNullOutpoint(prevOut) {
				return ruleError(ErrBadTxInput, "transaction "+
					"input refers to previous output that "+
					"is null")
			}
		}
	}

	return nil
}

// checkProofOfWork ensures the block header bits which indicate the target
// difficulty is in min/max range and that the block hash is less than the
// target difficulty as claimed.
func checkProofOfWork(header *wire.BlockHeader, powLimit *big.Int) error {
	target := CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		str := fmt.Sprintf("block target difficulty of %064x is too "+
			"low", target)
		return ruleError(ErrDifficultyTooLow, str)
	}

	if target.Cmp(powLimit) > 0 {
		str := fmt.Sprintf("block target difficulty of %064x is "+
			"higher than max of %064x", target, powLimit)
		return ruleError(ErrDifficultyTooLow, str)
	}

	hash := header.BlockHash()
	hashNum := new(big.Int).SetBytes(hash[:])
	if hashNum.Cmp(target) > 0 {
		str := fmt.Sprintf("block hash of %064x is higher than "+
			"expected max of %064x", hashNum, target)
		return ruleError(ErrHighHash, str)
	}

	return nil
}

// checkBlockHeaderSanity performs some preliminary checks on a block header
// to ensure it is sane before continuing with processing.  These checks are
// context free.
func checkBlockHeaderSanity(header *wire.BlockHeader, powLimit *big.Int,
	timeSource MedianTimeSource) error {

	err := checkProofOfWork(header, powLimit)
	if err != nil {
		return err
	}

	if !header.Timestamp.Equal(time.Unix(header.Timestamp.Unix(), 0)) {
		str := fmt.Sprintf("block timestamp of %v has a higher "+
			"precision than one second", header.Timestamp)
		return ruleError(ErrInvalidTime, str)
	}

	maxTimestamp := timeSource.AdjustedTime().Add(time.Second *
		MaxTimeOffsetSeconds)
	if header.Timestamp.After(maxTimestamp) {
		str := fmt.Sprintf("block timestamp of %v is too far in the "+
			"future", header.Timestamp)
		return ruleError(ErrTimeTooNew, str)
	}

	return nil
}

// CountSigOps returns the number of signature operations for all
// transaction input and output scripts in the provided transaction.
func CountSigOps(tx *chainutil.Tx) int {
	msgTx := tx.MsgTx()
	if IsCoinBaseTx(msgTx) {
		return 0
	}

	totalSigOps := len(msgTx.TxIn)
	for _, txOut := range msgTx.TxOut {
		totalSigOps += txscript.GetSigOpCount(txOut.PkScript)
	}

	return totalSigOps
}

// checkBlockSanity performs some preliminary checks on a block to ensure it
// is sane before continuing with block processing.  These checks are
// context free: they never touch the chain.
func checkBlockSanity(block *chainutil.Block, powLimit *big.Int,
	timeSource MedianTimeSource) error {

	msgBlock := block.MsgBlock()
	header := &msgBlock.Header

	err := checkBlockHeaderSanity(header, powLimit, timeSource)
	if err != nil {
		return err
	}

	numTx := len(msgBlock.Transactions)
	if numTx == 0 {
		return ruleError(ErrNoTransactions, "block does not contain "+
			"any transactions")
	}

	if numTx > wire.MaxTxPerBlock {
		str := fmt.Sprintf("block contains too many transactions - "+
			"got %d, max %d", numTx, wire.MaxTxPerBlock)
		return ruleError(ErrTooManyTransactions, str)
	}

	serializedSize := msgBlock.SerializeSize()
	if serializedSize > wire.MaxBlockPayload {
		str := fmt.Sprintf("serialized block is too big - got %d, "+
			"max %d", serializedSize, wire.MaxBlockPayload)
		return ruleError(ErrBlockTooBig, str)
	}

	transactions := block.Transactions()
	if !IsCoinBase(transactions[0]) {
		return ruleError(ErrFirstTxNotCoinbase, "first transaction in "+
			"block is not a coinbase")
	}

	for i, tx := range transactions[1:] {
		if IsCoinBase(tx) {
			str := fmt.Sprintf("block contains second coinbase at "+
				"index %d", i+1)
			return ruleError(ErrMultipleCoinbases, str)
		}
	}

	for _, tx := range transactions {
		err := CheckTransactionSanity(tx)
		if err != nil {
			return err
		}
	}

	merkles := BuildMerkleTreeStore(transactions)
	calculatedMerkleRoot := merkles[len(merkles)-1]
	if !header.MerkleRoot.IsEqual(calculatedMerkleRoot) {
		str := fmt.Sprintf("block merkle root is invalid - block "+
			"header indicates %v, but calculated value is %v",
			header.MerkleRoot, calculatedMerkleRoot)
		return ruleError(ErrBadMerkleRoot, str)
	}

	existingTxHashes := make(map[wire.Hash]struct{})
	for _, tx := range transactions {
		hash := tx.Hash()
		if _, exists := existingTxHashes[*hash]; exists {
			str := fmt.Sprintf("block contains duplicate "+
				"transaction %v", hash)
			return ruleError(ErrDuplicateTx, str)
		}
		existingTxHashes[*hash] = struct{}{}
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

	return nil
}

// ExtractCoinbaseHeight attempts to extract the height of the block from
// the payload of a coinbase transaction.
func ExtractCoinbaseHeight(coinbaseTx *chainutil.Tx) (uint64, error) {
	payload := coinbaseTx.MsgTx().Payload
	if len(payload) < 1 {
		str := "the coinbase payload for blocks of version %d or " +
			"greater must start with the length of the serialized " +
			"block height"
		str = fmt.Sprintf(str, serializedHeightVersion)
		return 0, ruleError(ErrMissingCoinbaseHeight, str)
	}

	serializedLen := int(payload[0])
	if serializedLen > 8 || len(payload[1:]) < serializedLen {
		str := "the coinbase payload for blocks of version %d or " +
			"greater must start with the serialized block height"
		str = fmt.Sprintf(str, serializedHeightVersion)
		return 0, ruleError(ErrMissingCoinbaseHeight, str)
	}

	serializedHeightBytes := make([]byte, 8)
	copy(serializedHeightBytes, payload[1:serializedLen+1])
	serializedHeight := binary.LittleEndian.Uint64(serializedHeightBytes)

	return serializedHeight, nil
}

// checkSerializedHeight checks if the payload in the passed transaction
// starts with the serialized block height of wantHeight.
func checkSerializedHeight(coinbaseTx *chainutil.Tx, wantHeight uint64) error {
	serializedHeight, err := ExtractCoinbaseHeight(coinbaseTx)
	if err != nil {
		return err
	}

	if serializedHeight != wantHeight {
		str := fmt.Sprintf("the coinbase payload serialized block "+
			"height is %d when %d was expected", serializedHeight,
			wantHeight)
		return ruleError(ErrBadCoinbaseHeight, str)
	}
	return nil
}
