// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

// InvType represents the allowed types of inventory vectors.
type InvType uint32

// These constants define the various supported inventory vector types.
const (
	InvTypeError InvType = 0
	InvTypeTx    InvType = 1
	InvTypeBlock InvType = 2
)

// invStrings is a map of inventory vector types back to their constant names
// for pretty printing.
var invStrings = map[InvType]string{
	InvTypeError: "ERROR",
	InvTypeTx:    "MSG_TX",
	InvTypeBlock: "MSG_BLOCK",
}

// String returns the InvType in human-readable form.
func (invtype InvType) String() string {
	if s, ok := invStrings[invtype]; ok {
		return s
	}
	return "Unknown InvType"
}

// InvVect defines an inventory vector which is used to describe data, as
// specified by the Type field, that a peer wants, has, or does not have to
// another peer.
type InvVect struct {
	Type InvType
	Hash Hash
}

// NewInvVect returns a new InvVect using the provided type and hash.
func NewInvVect(typ InvType, hash *Hash) *InvVect {
	return &InvVect{
		Type: typ,
		Hash: *hash,
	}
}
