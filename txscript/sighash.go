// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"bytes"
	"encoding/binary"

	"quarrychain.org/quarry-core/wire"
)

// CalcSignatureHash computes the digest a witness signature for input idx
// commits to: the transaction serialized without witness data, followed by
// the signing input index, the referenced output script and value, and the
// hash type.
func CalcSignatureHash(tx *wire.MsgTx, idx int, pkScript []byte, value int64,
	hashType SigHashType) []byte {

	var buf bytes.Buffer

	stripped := tx.Copy()
	for _, txIn := range stripped.TxIn {
		txIn.Witness = nil
	}
	_ = stripped.Serialize(&buf)

	var scratch [8]byte
	binary.LittleEndian.PutUint32(scratch[:4], uint32(idx))
	buf.Write(scratch[:4])

	_ = wire.WriteVarBytes(&buf, pkScript)

	binary.LittleEndian.PutUint64(scratch[:], uint64(value))
	buf.Write(scratch[:])

	binary.LittleEndian.PutUint32(scratch[:4], uint32(hashType))
	buf.Write(scratch[:4])

	return wire.DoubleHashB(buf.Bytes())
}
