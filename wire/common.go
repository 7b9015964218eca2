// Modified for Quarry
// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Maximum payload size for a variable length integer.
const maxVarIntPayload = 9

var (
	// littleEndian is a convenience variable since binary.LittleEndian is
	// quite long.
	littleEndian = binary.LittleEndian
)

// readElement reads the next sequence of bytes from r using little endian
// depending on the concrete type of element pointed to.
func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = littleEndian.Uint32(buf[:])
		return nil

	case *int32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = int32(littleEndian.Uint32(buf[:]))
		return nil

	case *uint64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = littleEndian.Uint64(buf[:])
		return nil

	case *int64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = int64(littleEndian.Uint64(buf[:]))
		return nil

	case *time.Time:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = time.Unix(int64(littleEndian.Uint64(buf[:])), 0)
		return nil

	case *Hash:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}
		return nil

	case *OutPoint:
		if _, err := io.ReadFull(r, e.Hash[:]); err != nil {
			return err
		}
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		e.Index = littleEndian.Uint32(buf[:])
		return nil
	}

	return binary.Read(r, littleEndian, element)
}

// readElements reads multiple items from r.
func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := readElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// writeElement writes the little endian representation of element to w.
func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case uint32:
		var buf [4]byte
		littleEndian.PutUint32(buf[:], e)
		_, err := w.Write(buf[:])
		return err

	case int32:
		var buf [4]byte
		littleEndian.PutUint32(buf[:], uint32(e))
		_, err := w.Write(buf[:])
		return err

	case uint64:
		var buf [8]byte
		littleEndian.PutUint64(buf[:], e)
		_, err := w.Write(buf[:])
		return err

	case int64:
		var buf [8]byte
		littleEndian.PutUint64(buf[:], uint64(e))
		_, err := w.Write(buf[:])
		return err

	case time.Time:
		var buf [8]byte
		littleEndian.PutUint64(buf[:], uint64(e.Unix()))
		_, err := w.Write(buf[:])
		return err

	case *Hash:
		_, err := w.Write(e[:])
		return err

	case *OutPoint:
		if _, err := w.Write(e.Hash[:]); err != nil {
			return err
		}
		var buf [4]byte
		littleEndian.PutUint32(buf[:], e.Index)
		_, err := w.Write(buf[:])
		return err
	}

	return binary.Write(w, littleEndian, element)
}

// writeElements writes multiple items to w.
func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := writeElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadVarInt reads a variable length integer from r and returns it as a
// uint64.
func ReadVarInt(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:1]); err != nil {
		return 0, err
	}

	var rv uint64
	discriminant := b[0]
	switch discriminant {
	case 0xff:
		if _, err := io.ReadFull(r, b[:8]); err != nil {
			return 0, err
		}
		rv = littleEndian.Uint64(b[:8])

		// The encoding is not canonical if the value could have been
		// encoded using fewer bytes.
		if rv < 0x100000000 {
			return 0, fmt.Errorf("ReadVarInt: non-canonical varint %d", rv)
		}

	case 0xfe:
		if _, err := io.ReadFull(r, b[:4]); err != nil {
			return 0, err
		}
		rv = uint64(littleEndian.Uint32(b[:4]))

		if rv < 0x10000 {
			return 0, fmt.Errorf("ReadVarInt: non-canonical varint %d", rv)
		}

	case 0xfd:
		if _, err := io.ReadFull(r, b[:2]); err != nil {
			return 0, err
		}
		rv = uint64(littleEndian.Uint16(b[:2]))

		if rv < 0xfd {
			return 0, fmt.Errorf("ReadVarInt: non-canonical varint %d", rv)
		}

	default:
		rv = uint64(discriminant)
	}

	return rv, nil
}

// WriteVarInt serializes val to w using a variable number of bytes depending
// on its value.
func WriteVarInt(w io.Writer, val uint64) error {
	if val < 0xfd {
		_, err := w.Write([]byte{uint8(val)})
		return err
	}

	if val <= 0xffff {
		var buf [3]byte
		buf[0] = 0xfd
		littleEndian.PutUint16(buf[1:], uint16(val))
		_, err := w.Write(buf[:])
		return err
	}

	if val <= 0xffffffff {
		var buf [5]byte
		buf[0] = 0xfe
		littleEndian.PutUint32(buf[1:], uint32(val))
		_, err := w.Write(buf[:])
		return err
	}

	var buf [9]byte
	buf[0] = 0xff
	littleEndian.PutUint64(buf[1:], val)
	_, err := w.Write(buf[:])
	return err
}

// VarIntSerializeSize returns the number of bytes it would take to serialize
// val as a variable length integer.
func VarIntSerializeSize(val uint64) int {
	if val < 0xfd {
		return 1
	}
	if val <= 0xffff {
		return 3
	}
	if val <= 0xffffffff {
		return 5
	}
	return 9
}

// ReadVarBytes reads a variable length byte array.  A byte array is encoded
// as a varInt containing the length of the array followed by the bytes
// themselves.  An error is returned if the length is greater than the passed
// maxAllowed parameter which helps protect against memory exhaustion attacks
// and forced panics through malformed messages.
func ReadVarBytes(r io.Reader, maxAllowed uint32, fieldName string) ([]byte, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}

	if count > uint64(maxAllowed) {
		return nil, fmt.Errorf("%s is larger than the max allowed size "+
			"[count %d, max %d]", fieldName, count, maxAllowed)
	}

	b := make([]byte, count)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteVarBytes serializes a variable length byte array to w as a varInt
// containing the number of bytes, followed by the bytes themselves.
func WriteVarBytes(w io.Writer, bytes []byte) error {
	slen := uint64(len(bytes))
	if err := WriteVarInt(w, slen); err != nil {
		return err
	}

	_, err := w.Write(bytes)
	return err
}
