// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"github.com/btcsuite/btcd/btcec"
	"github.com/pkg/errors"
)

// compressedPubKeyLen is the length of a serialized compressed public key.
const compressedPubKeyLen = 33

// A quarry output script is a serialized compressed public key; the witness
// that spends it is a single DER signature over the spending transaction
// digest.  This is the pay-to-pubkey template the chain consensus commits
// to.

// IsPayToPubKey returns whether the script is a well formed pay-to-pubkey
// output script.
func IsPayToPubKey(pkScript []byte) bool {
	if len(pkScript) != compressedPubKeyLen {
		return false
	}
	_, err := btcec.ParsePubKey(pkScript, btcec.S256())
	return err == nil
}

// PayToPubKeyScript creates an output script paying to the passed serialized
// compressed public key.
func PayToPubKeyScript(serializedPubKey []byte) ([]byte, error) {
	if len(serializedPubKey) != compressedPubKeyLen {
		return nil, errors.Errorf("pubkey length %d, want %d",
			len(serializedPubKey), compressedPubKeyLen)
	}
	if _, err := btcec.ParsePubKey(serializedPubKey, btcec.S256()); err != nil {
		return nil, errors.Wrap(err, "parse pubkey")
	}
	script := make([]byte, compressedPubKeyLen)
	copy(script, serializedPubKey)
	return script, nil
}

// GetSigOpCount returns the number of signature operations in the script.
// A pay-to-pubkey script carries exactly one.
func GetSigOpCount(pkScript []byte) int {
	if len(pkScript) == 0 {
		return 0
	}
	return 1
}
