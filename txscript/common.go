// Modified for Quarry
// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

const (
	// LockTimeThreshold is the number below which a lock time is
	// interpreted to be a block number.  Since an average of one block
	// is generated per 10 minutes, this allows blocks for about 9,512
	// years.  However, if the field is interpreted as a timestamp, given
	// the lock time is a uint32, the max is sometime around 2106.
	LockTimeThreshold uint32 = 5e8 // Tue Nov 5 00:53:20 1985 UTC

	// MaxPubKeysPerMultiSig is the maximum number of public keys allowed
	// in a multi-signature script.
	MaxPubKeysPerMultiSig = 20
)

// ScriptFlags is a bitmask defining additional operations or tests that
// will be done when executing a script pair.
type ScriptFlags uint32

const (
	// ScriptVerifyDERSignatures defines that signatures are required
	// to comply with the DER format.
	ScriptVerifyDERSignatures ScriptFlags = 1 << iota

	// ScriptVerifyCheckLockTimeVerify defines whether to verify that
	// a transaction output is spendable based on the locktime.
	// This is BIP0065.
	ScriptVerifyCheckLockTimeVerify

	// ScriptVerifyCheckSequenceVerify defines whether to allow execution
	// pathways of a script to be restricted based on the age of the
	// output being spent.  This is BIP0112.
	ScriptVerifyCheckSequenceVerify

	// ScriptVerifyLowS defines that signatures are required to comply
	// with the DER format and have an S value <= order / 2.
	ScriptVerifyLowS
)

// SigHashType represents hash type bits at the end of a signature.
type SigHashType uint32

// Hash type bits from the end of a signature.
const (
	SigHashAll SigHashType = 0x1
)
