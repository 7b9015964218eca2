// Modified for Quarry
// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"sync"

	"github.com/btcsuite/btcd/btcec"
	"github.com/golang/groupcache/lru"

	"quarrychain.org/quarry-core/wire"
)

// sigCacheEntry represents an entry in the SigCache.  Entries within the
// SigCache are keyed according to the sigHash of the signature.
type sigCacheEntry struct {
	sig    *btcec.Signature
	pubKey *btcec.PublicKey
}

// SigCache implements an ECDSA signature verification cache with a
// least-recently-used entry eviction policy delegated to the backing LRU.  Only
// valid signatures will be added to the cache.  The benefit of SigCache is
// two fold: a block being organized may contain transactions whose
// signatures were already verified on mempool admission, and a popped block
// re-admitted to the pool keeps its verifications warm for the next branch.
type SigCache struct {
	sync.Mutex
	validSigs *lru.Cache
}

// NewSigCache creates and initializes a new instance of SigCache.  Its sole
// parameter 'maxEntries' represents the maximum number of entries allowed
// to exist in the SigCache at any particular moment.
func NewSigCache(maxEntries int) *SigCache {
	return &SigCache{
		validSigs: lru.New(maxEntries),
	}
}

// Exists returns true if an existing entry of 'sig' over 'sigHash' for
// public key 'pubKey' is found within the SigCache.
//
// This function is safe for concurrent access.
func (s *SigCache) Exists(sigHash wire.Hash, sig *btcec.Signature, pubKey *btcec.PublicKey) bool {
	s.Lock()
	defer s.Unlock()

	value, ok := s.validSigs.Get(lru.Key(sigHash))
	if !ok {
		return false
	}
	entry := value.(sigCacheEntry)
	return entry.sig.IsEqual(sig) && entry.pubKey.IsEqual(pubKey)
}

// Add adds an entry for a signature over 'sigHash' under public key
// 'pubKey' to the signature cache.
//
// This function is safe for concurrent access.
func (s *SigCache) Add(sigHash wire.Hash, sig *btcec.Signature, pubKey *btcec.PublicKey) {
	s.Lock()
	defer s.Unlock()

	s.validSigs.Add(lru.Key(sigHash), sigCacheEntry{sig, pubKey})
}
