package database

import (
	"sync/atomic"
)

// WriteSeqLock implements the sequence-lock protocol shared by the store
// backends.  The sequence is even while idle and odd while a write is in
// flight; a reader whose observed sequence changes must retry.
type WriteSeqLock struct {
	seq uint64
}

// BeginWrite marks the start of a write.  Writers must be serialized
// externally.
func (l *WriteSeqLock) BeginWrite() {
	atomic.AddUint64(&l.seq, 1)
}

// EndWrite marks the end of a write.
func (l *WriteSeqLock) EndWrite() {
	atomic.AddUint64(&l.seq, 1)
}

// BeginRead returns the current sequence for a read attempt.
func (l *WriteSeqLock) BeginRead() uint64 {
	return atomic.LoadUint64(&l.seq)
}

// IsWriteLocked returns whether the sequence was captured while a write was
// in flight.
func (l *WriteSeqLock) IsWriteLocked(seq uint64) bool {
	return seq&1 == 1
}

// IsReadValid returns whether reads performed since seq was captured saw a
// consistent store.
func (l *WriteSeqLock) IsReadValid(seq uint64) bool {
	return atomic.LoadUint64(&l.seq) == seq
}
