// Modified for Quarry
// Copyright (c) 2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrServiceStopped indicates the organizer has been stopped.
	ErrServiceStopped ErrorCode = iota

	// ErrDuplicateBlock indicates a block with the same hash already
	// exists in the chain or the pool walk produced an empty branch.
	ErrDuplicateBlock

	// ErrOrphanBlock indicates the branch fork point does not resolve in
	// the confirmed chain.
	ErrOrphanBlock

	// ErrInsufficientWork indicates a branch whose accumulated work does
	// not strictly exceed the confirmed work from the fork point.
	ErrInsufficientWork

	// ErrOperationFailed indicates a storage read failed.
	ErrOperationFailed

	// ErrStoreCorrupted indicates a write failed mid reorganization.
	ErrStoreCorrupted

	ErrBlockTooBig

	ErrBlockVersionTooOld

	ErrInvalidTime

	ErrTimeTooOld

	ErrTimeTooNew

	ErrDifficultyTooLow

	ErrUnexpectedDifficulty

	ErrHighHash

	ErrBadMerkleRoot

	ErrBadCheckpoint

	ErrForkTooOld

	ErrNoTransactions

	ErrTooManyTransactions

	ErrNoTxInputs

	ErrNoTxOutputs

	ErrTxTooBig

	ErrBadTxOutValue

	ErrDuplicateTxInputs

	ErrBadTxInput

	ErrMissingTx

	ErrDuplicateTx

	ErrImmatureSpend

	ErrDoubleSpend

	ErrSpendTooHigh

	ErrBadFees

	ErrTooManySigOps

	ErrFirstTxNotCoinbase

	ErrMultipleCoinbases

	ErrBadCoinbaseScriptLen

	ErrBadCoinbaseValue

	ErrMissingCoinbaseHeight

	ErrBadCoinbaseHeight

	ErrScriptMalformed

	ErrScriptValidation

	ErrMissingTxOut
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrServiceStopped:        "ErrServiceStopped",
	ErrDuplicateBlock:        "ErrDuplicateBlock",
	ErrOrphanBlock:           "ErrOrphanBlock",
	ErrInsufficientWork:      "ErrInsufficientWork",
	ErrOperationFailed:       "ErrOperationFailed",
	ErrStoreCorrupted:        "ErrStoreCorrupted",
	ErrBlockTooBig:           "ErrBlockTooBig",
	ErrBlockVersionTooOld:    "ErrBlockVersionTooOld",
	ErrInvalidTime:           "ErrInvalidTime",
	ErrTimeTooOld:            "ErrTimeTooOld",
	ErrTimeTooNew:            "ErrTimeTooNew",
	ErrDifficultyTooLow:      "ErrDifficultyTooLow",
	ErrUnexpectedDifficulty:  "ErrUnexpectedDifficulty",
	ErrHighHash:              "ErrHighHash",
	ErrBadMerkleRoot:         "ErrBadMerkleRoot",
	ErrBadCheckpoint:         "ErrBadCheckpoint",
	ErrForkTooOld:            "ErrForkTooOld",
	ErrNoTransactions:        "ErrNoTransactions",
	ErrTooManyTransactions:   "ErrTooManyTransactions",
	ErrNoTxInputs:            "ErrNoTxInputs",
	ErrNoTxOutputs:           "ErrNoTxOutputs",
	ErrTxTooBig:              "ErrTxTooBig",
	ErrBadTxOutValue:         "ErrBadTxOutValue",
	ErrDuplicateTxInputs:     "ErrDuplicateTxInputs",
	ErrBadTxInput:            "ErrBadTxInput",
	ErrMissingTx:             "ErrMissingTx",
	ErrDuplicateTx:           "ErrDuplicateTx",
	ErrImmatureSpend:         "ErrImmatureSpend",
	ErrDoubleSpend:           "ErrDoubleSpend",
	ErrSpendTooHigh:          "ErrSpendTooHigh",
	ErrBadFees:               "ErrBadFees",
	ErrTooManySigOps:         "ErrTooManySigOps",
	ErrFirstTxNotCoinbase:    "ErrFirstTxNotCoinbase",
	ErrMultipleCoinbases:     "ErrMultipleCoinbases",
	ErrBadCoinbaseScriptLen:  "ErrBadCoinbaseScriptLen",
	ErrBadCoinbaseValue:      "ErrBadCoinbaseValue",
	ErrMissingCoinbaseHeight: "ErrMissingCoinbaseHeight",
	ErrBadCoinbaseHeight:     "ErrBadCoinbaseHeight",
	ErrScriptMalformed:       "ErrScriptMalformed",
	ErrScriptValidation:      "ErrScriptValidation",
	ErrMissingTxOut:          "ErrMissingTxOut",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rule violation.  It is used to indicate that
// processing of a block or transaction failed due to one of the many
// validation rules.  The caller can use type assertions to determine if a
// failure was specifically due to a rule violation and access the ErrorCode
// field to ascertain the specific reason for the rule violation.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// IsErrorCode returns whether err is a RuleError carrying the passed code.
func IsErrorCode(err error, c ErrorCode) bool {
	ruleErr, ok := err.(RuleError)
	return ok && ruleErr.ErrorCode == c
}
