// Package leb128 implements the LEB128 variable-length integer encoding
// used throughout the WebAssembly binary format: unsigned for sizes and
// indices, signed (sign-extended from the last continuation bit) for
// constant integer immediates.
package leb128

import (
	"bytes"
	"fmt"
	"io"
)

// DecodeUint32 reads an unsigned 32-bit LEB128 value from r.
func DecodeUint32(r io.Reader) (ret uint32, bytesRead uint64, err error) {
	v, n, err := decodeUnsigned(r, 32)
	return uint32(v), n, err
}

// DecodeUint64 reads an unsigned 64-bit LEB128 value from r.
func DecodeUint64(r io.Reader) (ret uint64, bytesRead uint64, err error) {
	return decodeUnsigned(r, 64)
}

// DecodeInt32 reads a signed 32-bit LEB128 value from r.
func DecodeInt32(r io.Reader) (ret int32, bytesRead uint64, err error) {
	v, n, err := decodeSigned(r, 32)
	return int32(v), n, err
}

// DecodeInt64 reads a signed 64-bit LEB128 value from r.
func DecodeInt64(r io.Reader) (ret int64, bytesRead uint64, err error) {
	return decodeSigned(r, 64)
}

// DecodeInt33AsInt64 reads a signed 33-bit LEB128 value (used by the
// block-type immediate of `if`/`block`/`loop`) sign-extended into an
// int64.
func DecodeInt33AsInt64(r io.Reader) (ret int64, bytesRead uint64, err error) {
	return decodeSigned(r, 33)
}

// LoadUint32 decodes an unsigned 32-bit LEB128 value from the head of
// buf, returning the number of bytes consumed.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	return DecodeUint32(bytes.NewReader(buf))
}

// LoadUint64 decodes an unsigned 64-bit LEB128 value from the head of buf.
func LoadUint64(buf []byte) (uint64, uint64, error) {
	return DecodeUint64(bytes.NewReader(buf))
}

// LoadInt32 decodes a signed 32-bit LEB128 value from the head of buf.
func LoadInt32(buf []byte) (int32, uint64, error) {
	return DecodeInt32(bytes.NewReader(buf))
}

// LoadInt64 decodes a signed 64-bit LEB128 value from the head of buf.
func LoadInt64(buf []byte) (int64, uint64, error) {
	return DecodeInt64(bytes.NewReader(buf))
}

func decodeUnsigned(r io.Reader, bitSize int) (uint64, uint64, error) {
	var result uint64
	var shift uint
	var n uint64
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, n, fmt.Errorf("readByte failed: %w", err)
		}
		n++
		c := b[0]
		remaining := uint(bitSize) - shift
		if remaining >= 7 {
			result |= uint64(c&0x7f) << shift
			if c&0x80 == 0 {
				return result, n, nil
			}
			shift += 7
			continue
		}
		// Final allowed byte: the bits beyond the value's width must be zero,
		// and no further continuation byte is allowed.
		dataMask := byte(1)<<remaining - 1
		data := c & 0x7f & dataMask
		padding := (c & 0x7f) >> remaining
		if padding != 0 {
			return 0, n, fmt.Errorf("invalid %d-bit unsigned leb128: overflow", bitSize)
		}
		if c&0x80 != 0 {
			return 0, n, fmt.Errorf("invalid %d-bit unsigned leb128: too many continuation bytes", bitSize)
		}
		result |= uint64(data) << shift
		return result, n, nil
	}
}

func decodeSigned(r io.Reader, bitSize int) (int64, uint64, error) {
	var result int64
	var shift uint
	var n uint64
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, n, fmt.Errorf("readByte failed: %w", err)
		}
		n++
		c := b[0]
		remaining := uint(bitSize) - shift
		if remaining >= 7 {
			result |= int64(c&0x7f) << shift
			if c&0x80 == 0 {
				shift += 7
				if c&0x40 != 0 && shift < 64 {
					result |= -1 << shift
				}
				return result, n, nil
			}
			shift += 7
			continue
		}
		// Final allowed byte: bits above the value's width must equal the
		// sign bit, and no further continuation byte is allowed.
		dataMask := byte(1)<<remaining - 1
		data := c & 0x7f & dataMask
		signBit := (data >> (remaining - 1)) & 1
		padding := (c & 0x7f) >> remaining
		var expectedPadding byte
		if signBit != 0 {
			expectedPadding = byte(0x7f) >> remaining
		}
		if padding != expectedPadding {
			return 0, n, fmt.Errorf("invalid %d-bit signed leb128: overflow", bitSize)
		}
		if c&0x80 != 0 {
			return 0, n, fmt.Errorf("invalid %d-bit signed leb128: too many continuation bytes", bitSize)
		}
		result |= int64(data) << shift
		if signBit != 0 && bitSize < 64 {
			result |= -1 << uint(bitSize)
		}
		return result, n, nil
	}
}

// EncodeUint32 encodes v as an unsigned 32-bit LEB128 byte sequence.
func EncodeUint32(v uint32) []byte {
	return EncodeUint64(uint64(v))
}

// EncodeUint64 encodes v as an unsigned 64-bit LEB128 byte sequence.
func EncodeUint64(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

// EncodeInt32 encodes v as a signed 32-bit LEB128 byte sequence.
func EncodeInt32(v int32) []byte {
	return EncodeInt64(int64(v))
}

// EncodeInt64 encodes v as a signed 64-bit LEB128 byte sequence.
func EncodeInt64(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
