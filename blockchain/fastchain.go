package blockchain

import (
	"math/big"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"quarrychain.org/quarry-core/chainutil"
	"quarrychain.org/quarry-core/database"
	"quarrychain.org/quarry-core/logging"
	"quarrychain.org/quarry-core/wire"
)

const (
	// readRetryInterval is the sleep between sequence-lock read retries.
	readRetryInterval = time.Millisecond

	// maxReadRetries bounds the retry spin; a reader that cannot obtain
	// a stable sequence within this many attempts reports a storage
	// failure instead of spinning forever.
	maxReadRetries = 5000

	// headerCacheExpiration bounds staleness of the hot header fields
	// consulted by retarget and median-time scans.
	headerCacheExpiration = 10 * time.Minute
)

// FastChain is the read/write store adapter.  Readers follow the
// sequence-lock protocol: obtain a sequence, refuse to proceed while a
// write is in flight, perform the reads, then confirm the sequence is
// still valid.  Writers are serialized externally by the organizer chain
// lock.
type FastChain struct {
	db database.Db

	// headerCache keeps recently read headers keyed by height.  It is
	// flushed on every write since a reorg moves heights.
	headerCache *gocache.Cache
}

// NewFastChain returns a store adapter over the given backend.
func NewFastChain(db database.Db) *FastChain {
	return &FastChain{
		db:          db,
		headerCache: gocache.New(headerCacheExpiration, 2*headerCacheExpiration),
	}
}

// doRead runs fn under the sequence-lock protocol.  fn must be pure with
// respect to externally visible state: it is re-executed on retry.
func (f *FastChain) doRead(fn func() error) error {
	for retry := 0; retry < maxReadRetries; retry++ {
		seq := f.db.BeginRead()
		if f.db.IsWriteLocked(seq) {
			time.Sleep(readRetryInterval)
			continue
		}

		err := fn()
		if f.db.IsReadValid(seq) {
			return err
		}
		time.Sleep(readRetryInterval)
	}

	logging.CPrint(logging.ERROR, "sequence-locked read starved",
		logging.LogFormat{"retries": maxReadRetries})
	return ruleError(ErrOperationFailed, "store read retries exhausted")
}

// GetBlockExists returns whether the block hash is confirmed.
func (f *FastChain) GetBlockExists(hash *wire.Hash) (bool, error) {
	var exists bool
	err := f.doRead(func() error {
		var err error
		exists, err = f.db.ExistsSha(hash)
		return err
	})
	return exists, err
}

// GetHeight resolves the confirmed height of the block hash.  The boolean
// is false when the hash is not confirmed.
func (f *FastChain) GetHeight(hash *wire.Hash) (uint64, bool, error) {
	var (
		height uint64
		found  bool
	)
	err := f.doRead(func() error {
		h, err := f.db.FetchBlockHeightBySha(hash)
		if err == database.ErrBlockShaMissing {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		height, found = h, true
		return nil
	})
	return height, found, err
}

// GetHeader returns the header of the confirmed block at the given height.
func (f *FastChain) GetHeader(height uint64) (*wire.BlockHeader, error) {
	key := strconv.FormatUint(height, 10)
	if cached, ok := f.headerCache.Get(key); ok {
		return cached.(*wire.BlockHeader), nil
	}

	var header *wire.BlockHeader
	err := f.doRead(func() error {
		var err error
		header, err = f.db.FetchBlockHeaderByHeight(height)
		return err
	})
	if err != nil {
		return nil, err
	}

	f.headerCache.Set(key, header, gocache.DefaultExpiration)
	return header, nil
}

// GetBits returns the difficulty bits of the confirmed block at height.
func (f *FastChain) GetBits(height uint64) (uint32, error) {
	header, err := f.GetHeader(height)
	if err != nil {
		return 0, err
	}
	return header.Bits, nil
}

// GetTimestamp returns the timestamp of the confirmed block at height.
func (f *FastChain) GetTimestamp(height uint64) (time.Time, error) {
	header, err := f.GetHeader(height)
	if err != nil {
		return time.Time{}, err
	}
	return header.Timestamp, nil
}

// GetVersion returns the version of the confirmed block at height.
func (f *FastChain) GetVersion(height uint64) (int32, error) {
	header, err := f.GetHeader(height)
	if err != nil {
		return 0, err
	}
	return header.Version, nil
}

// GetLastHeight returns the confirmed tip height.
func (f *FastChain) GetLastHeight() (uint64, error) {
	var height uint64
	err := f.doRead(func() error {
		var err error
		_, height, err = f.db.NewestSha()
		return err
	})
	if err != nil {
		return 0, err
	}
	if height == chainutil.BlockHeightUnknown {
		return 0, ruleError(ErrOperationFailed, "empty block store")
	}
	return height, nil
}

// GetBlock returns the confirmed block for the hash.
func (f *FastChain) GetBlock(hash *wire.Hash) (*chainutil.Block, error) {
	var block *chainutil.Block
	err := f.doRead(func() error {
		var err error
		block, err = f.db.FetchBlockBySha(hash)
		return err
	})
	return block, err
}

// GetOutput resolves a confirmed output spendable at branchHeight.  The
// boolean is false when the output does not exist, was confirmed above
// branchHeight, or was already spent at or below branchHeight.
func (f *FastChain) GetOutput(op *wire.OutPoint, branchHeight uint64) (*database.OutputReply, bool, error) {
	var (
		reply *database.OutputReply
		found bool
	)
	err := f.doRead(func() error {
		r, err := f.db.FetchOutput(op)
		if err == database.ErrTxShaMissing {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		if r.Height > branchHeight {
			found = false
			return nil
		}
		if r.Spent() && r.SpentBy <= branchHeight {
			found = false
			return nil
		}
		reply, found = r, true
		return nil
	})
	return reply, found, err
}

// GetBranchWork sums the proof over confirmed heights in
// [fromHeight, tip], short-circuiting as soon as the running sum exceeds
// maximum.  The competing branch cannot win once the confirmed side has
// more work, so there is no need to finish the scan.
func (f *FastChain) GetBranchWork(maximum *big.Int, fromHeight uint64) (*big.Int, error) {
	tip, err := f.GetLastHeight()
	if err != nil {
		return nil, err
	}

	sum := new(big.Int)
	for height := fromHeight; height <= tip; height++ {
		bits, err := f.GetBits(height)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, CalcWork(bits))
		if sum.Cmp(maximum) > 0 {
			break
		}
	}
	return sum, nil
}

// Reorganize atomically swaps the confirmed suffix above the fork point for
// the incoming blocks.  The popped suffix is returned top-first.
func (f *FastChain) Reorganize(fork ForkPoint, incoming []*chainutil.Block) ([]*chainutil.Block, error) {
	f.db.BeginWrite()
	outgoing, err := f.db.Reorganize(&fork.Hash, incoming)
	writeErr := f.db.EndWrite(true)

	f.headerCache.Flush()

	if err != nil {
		return outgoing, errors.Wrap(err, "reorganize")
	}
	if writeErr != nil {
		return outgoing, errors.Wrap(writeErr, "reorganize flush")
	}
	return outgoing, nil
}

// Push appends a block to the confirmed tip.
func (f *FastChain) Push(block *chainutil.Block) error {
	f.db.BeginWrite()
	err := f.db.PushBlock(block)
	writeErr := f.db.EndWrite(true)

	f.headerCache.Flush()

	if err != nil {
		return errors.Wrap(err, "push block")
	}
	return writeErr
}

// Insert places a known-good block at a specific height.  Used by parallel
// initial block download, not by the organizer.
func (f *FastChain) Insert(block *chainutil.Block, height uint64) error {
	f.db.BeginWrite()
	err := f.db.InsertBlock(block, height)
	writeErr := f.db.EndWrite(false)

	f.headerCache.Flush()

	if err != nil {
		return errors.Wrap(err, "insert block")
	}
	return writeErr
}

// PopAbove removes every confirmed block strictly above the fork hash,
// returning them top-first.
func (f *FastChain) PopAbove(forkHash *wire.Hash) ([]*chainutil.Block, error) {
	f.db.BeginWrite()
	popped, err := f.db.PopAbove(forkHash)
	writeErr := f.db.EndWrite(true)

	f.headerCache.Flush()

	if err != nil {
		return popped, errors.Wrap(err, "pop above")
	}
	return popped, writeErr
}
