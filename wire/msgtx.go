// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

const (
	// TxVersion is the current latest supported transaction version.
	TxVersion = 1

	// MaxTxInSequenceNum is the maximum sequence number the sequence field
	// of a transaction input can be.
	MaxTxInSequenceNum uint32 = 0xffffffff

	// MaxPrevOutIndex is the maximum index the index field of a previous
	// outpoint can be.
	MaxPrevOutIndex uint32 = 0xffffffff

	// SequenceLockTimeDisabled is a flag that if set on a transaction
	// input's sequence number, the sequence number will not be interpreted
	// as a relative locktime.
	SequenceLockTimeDisabled = 1 << 31

	// SequenceLockTimeIsSeconds is a flag that if set on a transaction
	// input's sequence number, the relative locktime has units of 512
	// seconds.
	SequenceLockTimeIsSeconds = 1 << 22

	// SequenceLockTimeMask is a mask that extracts the relative locktime
	// when masked against the transaction input sequence number.
	SequenceLockTimeMask = 0x0000ffff

	// SequenceLockTimeGranularity is the defined time based granularity
	// for seconds-based relative time locks.
	SequenceLockTimeGranularity = 9
)

// defaultTxInOutAlloc is the default size used for the backing array for
// transaction inputs and outputs.
const defaultTxInOutAlloc = 15

const (
	// minTxPayload is the minimum payload size for a transaction.
	minTxPayload = 10

	// maxWitnessItemsPerInput is the maximum number of witness items to
	// be read for the witness data for a single TxIn.
	maxWitnessItemsPerInput = 500

	// maxWitnessItemSize is the maximum allowed size for an item within
	// an input's witness data.
	maxWitnessItemSize = 11000
)

// zeroHash is the zero value for a wire.Hash and is defined as a package
// level variable to avoid the need to create a new instance every time a
// check is needed.
var zeroHash = &Hash{}

// OutPoint defines a quarry data type that is used to track previous
// transaction outputs.
type OutPoint struct {
	Hash  Hash
	Index uint32
}

// NewOutPoint returns a new quarry transaction outpoint point with the
// provided hash and index.
func NewOutPoint(hash *Hash, index uint32) *OutPoint {
	return &OutPoint{
		Hash:  *hash,
		Index: index,
	}
}

// String returns the OutPoint in the human-readable form "hash:index".
func (o OutPoint) String() string {
	// Allocate enough for hash string, colon, and 10 digits.
	buf := make([]byte, 2*HashSize+1, 2*HashSize+1+10)
	copy(buf, o.Hash.String())
	buf[2*HashSize] = ':'
	buf = strconv.AppendUint(buf, uint64(o.Index), 10)
	return string(buf)
}

// TxIn defines a quarry transaction input.
type TxIn struct {
	PreviousOutPoint OutPoint
	Witness          TxWitness
	Sequence         uint32
}

// SerializeSize returns the number of bytes it would take to serialize the
// transaction input.
func (t *TxIn) SerializeSize() int {
	// Outpoint Hash 32 bytes + Outpoint Index 4 bytes + Sequence 4 bytes +
	// serialized witness.
	return 40 + t.Witness.SerializeSize()
}

// NewTxIn returns a new quarry transaction input with the provided previous
// outpoint point and witness stack.
func NewTxIn(prevOut *OutPoint, witness [][]byte) *TxIn {
	return &TxIn{
		PreviousOutPoint: *prevOut,
		Witness:          witness,
		Sequence:         MaxTxInSequenceNum,
	}
}

// TxWitness defines the witness for a TxIn.  A witness is to be interpreted
// as a slice of byte slices.
type TxWitness [][]byte

// SerializeSize returns the number of bytes it would take to serialize the
// transaction input's witness.
func (t TxWitness) SerializeSize() int {
	n := VarIntSerializeSize(uint64(len(t)))
	for _, witItem := range t {
		n += VarIntSerializeSize(uint64(len(witItem)))
		n += len(witItem)
	}
	return n
}

// TxOut defines a quarry transaction output.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// SerializeSize returns the number of bytes it would take to serialize the
// the transaction output.
func (t *TxOut) SerializeSize() int {
	// Value 8 bytes + serialized varint size for the length of PkScript +
	// PkScript bytes.
	return 8 + VarIntSerializeSize(uint64(len(t.PkScript))) + len(t.PkScript)
}

// NewTxOut returns a new quarry transaction output with the provided
// transaction value and public key script.
func NewTxOut(value int64, pkScript []byte) *TxOut {
	return &TxOut{
		Value:    value,
		PkScript: pkScript,
	}
}

// MsgTx implements the Message interface and represents a quarry tx message.
// It is used to deliver transaction information in response to a getdata
// message (MsgGetData) for a given transaction.
type MsgTx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32

	// Payload carries auxiliary consensus data.  For a coinbase the
	// serialized block height leads the payload.
	Payload []byte
}

// AddTxIn adds a transaction input to the message.
func (msg *MsgTx) AddTxIn(ti *TxIn) {
	msg.TxIn = append(msg.TxIn, ti)
}

// AddTxOut adds a transaction output to the message.
func (msg *MsgTx) AddTxOut(to *TxOut) {
	msg.TxOut = append(msg.TxOut, to)
}

// TxHash generates the Hash for the transaction.
func (msg *MsgTx) TxHash() Hash {
	buf := bytes.NewBuffer(make([]byte, 0, msg.SerializeSize()))
	_ = msg.Serialize(buf)
	return DoubleHashH(buf.Bytes())
}

// Copy creates a deep copy of a transaction so that the original does not get
// modified when the copy is manipulated.
func (msg *MsgTx) Copy() *MsgTx {
	newTx := MsgTx{
		Version:  msg.Version,
		TxIn:     make([]*TxIn, 0, len(msg.TxIn)),
		TxOut:    make([]*TxOut, 0, len(msg.TxOut)),
		LockTime: msg.LockTime,
	}

	if msg.Payload != nil {
		newTx.Payload = make([]byte, len(msg.Payload))
		copy(newTx.Payload, msg.Payload)
	}

	for _, oldTxIn := range msg.TxIn {
		oldOutPoint := oldTxIn.PreviousOutPoint
		newOutPoint := OutPoint{Hash: oldOutPoint.Hash, Index: oldOutPoint.Index}

		newTxIn := TxIn{
			PreviousOutPoint: newOutPoint,
			Sequence:         oldTxIn.Sequence,
		}

		if len(oldTxIn.Witness) != 0 {
			newTxIn.Witness = make(TxWitness, len(oldTxIn.Witness))
			for i, oldItem := range oldTxIn.Witness {
				newItem := make([]byte, len(oldItem))
				copy(newItem, oldItem)
				newTxIn.Witness[i] = newItem
			}
		}

		newTx.TxIn = append(newTx.TxIn, &newTxIn)
	}

	for _, oldTxOut := range msg.TxOut {
		var newScript []byte
		oldScript := oldTxOut.PkScript
		oldScriptLen := len(oldScript)
		if oldScriptLen > 0 {
			newScript = make([]byte, oldScriptLen)
			copy(newScript, oldScript[:oldScriptLen])
		}

		newTxOut := TxOut{
			Value:    oldTxOut.Value,
			PkScript: newScript,
		}
		newTx.TxOut = append(newTx.TxOut, &newTxOut)
	}

	return &newTx
}

// Deserialize decodes a transaction from r into the receiver.
func (msg *MsgTx) Deserialize(r io.Reader) error {
	err := readElement(r, &msg.Version)
	if err != nil {
		return err
	}

	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	msg.TxIn = make([]*TxIn, 0, count)
	for i := uint64(0); i < count; i++ {
		ti := TxIn{}
		err = readElement(r, &ti.PreviousOutPoint)
		if err != nil {
			return err
		}

		witCount, err := ReadVarInt(r)
		if err != nil {
			return err
		}
		if witCount > maxWitnessItemsPerInput {
			return fmt.Errorf("too many witness items to fit "+
				"into max message size [count %d, max %d]",
				witCount, maxWitnessItemsPerInput)
		}
		ti.Witness = make(TxWitness, witCount)
		for j := uint64(0); j < witCount; j++ {
			ti.Witness[j], err = ReadVarBytes(r, maxWitnessItemSize,
				"script witness item")
			if err != nil {
				return err
			}
		}

		err = readElement(r, &ti.Sequence)
		if err != nil {
			return err
		}
		msg.TxIn = append(msg.TxIn, &ti)
	}

	count, err = ReadVarInt(r)
	if err != nil {
		return err
	}
	msg.TxOut = make([]*TxOut, 0, count)
	for i := uint64(0); i < count; i++ {
		to := TxOut{}
		err = readElement(r, &to.Value)
		if err != nil {
			return err
		}
		to.PkScript, err = ReadVarBytes(r, maxWitnessItemSize,
			"transaction output public key script")
		if err != nil {
			return err
		}
		msg.TxOut = append(msg.TxOut, &to)
	}

	err = readElement(r, &msg.LockTime)
	if err != nil {
		return err
	}

	msg.Payload, err = ReadVarBytes(r, maxWitnessItemSize, "transaction payload")
	return err
}

// Serialize encodes the transaction to w.
func (msg *MsgTx) Serialize(w io.Writer) error {
	err := writeElement(w, msg.Version)
	if err != nil {
		return err
	}

	err = WriteVarInt(w, uint64(len(msg.TxIn)))
	if err != nil {
		return err
	}
	for _, ti := range msg.TxIn {
		err = writeElement(w, &ti.PreviousOutPoint)
		if err != nil {
			return err
		}
		err = WriteVarInt(w, uint64(len(ti.Witness)))
		if err != nil {
			return err
		}
		for _, item := range ti.Witness {
			err = WriteVarBytes(w, item)
			if err != nil {
				return err
			}
		}
		err = writeElement(w, ti.Sequence)
		if err != nil {
			return err
		}
	}

	err = WriteVarInt(w, uint64(len(msg.TxOut)))
	if err != nil {
		return err
	}
	for _, to := range msg.TxOut {
		err = writeElement(w, to.Value)
		if err != nil {
			return err
		}
		err = WriteVarBytes(w, to.PkScript)
		if err != nil {
			return err
		}
	}

	err = writeElement(w, msg.LockTime)
	if err != nil {
		return err
	}

	return WriteVarBytes(w, msg.Payload)
}

// SerializeSize returns the number of bytes it would take to serialize the
// the transaction.
func (msg *MsgTx) SerializeSize() int {
	// Version 4 bytes + LockTime 4 bytes + serialized varint size for the
	// number of transaction inputs and outputs + payload.
	n := 8 + VarIntSerializeSize(uint64(len(msg.TxIn))) +
		VarIntSerializeSize(uint64(len(msg.TxOut))) +
		VarIntSerializeSize(uint64(len(msg.Payload))) + len(msg.Payload)

	for _, txIn := range msg.TxIn {
		n += txIn.SerializeSize()
	}

	for _, txOut := range msg.TxOut {
		n += txOut.SerializeSize()
	}

	return n
}

// NewMsgTx returns a new quarry tx message that conforms to the Message
// interface.  The return instance has a default version of TxVersion and
// there are no transaction inputs or outputs.
func NewMsgTx() *MsgTx {
	return &MsgTx{
		Version: TxVersion,
		TxIn:    make([]*TxIn, 0, defaultTxInOutAlloc),
		TxOut:   make([]*TxOut, 0, defaultTxInOutAlloc),
	}
}
