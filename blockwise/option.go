// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise

import "github.com/absmach/coap-blockwise/pkg/errors"

// SZXBERT is the reserved size exponent (RFC 8323 §6) that means "this block
// is a concatenation of 1024-byte sub-blocks", rather than a fixed 2^(SZX+4)
// byte block.
const SZXBERT = 7

// bertSubBlockSize is the fixed size of every intermediate BERT sub-block.
const bertSubBlockSize = 1024

// ErrMalformedBlockOption indicates a Block1/Block2 option value that cannot
// be decoded: wire length > 3 bytes or a reserved encoding.
var ErrMalformedBlockOption = errors.New("malformed block option")

// BlockOption is the decoded form of a CoAP Block1/Block2 option: a block
// sequence number, a more-blocks-follow flag, and a size exponent.
type BlockOption struct {
	Num uint32
	M   bool
	SZX uint8
}

// SizeOf returns the on-wire block size in bytes for SZX in 0..6. For
// SZX==7 (BERT) there is no fixed size: the payload length itself is the
// effective size, so SizeOf returns bertSubBlockSize as the sub-block unit.
func SizeOf(szx uint8) int {
	if szx == SZXBERT {
		return bertSubBlockSize
	}
	return 1 << (uint(szx) + 4)
}

// EncodeBlockOption packs (num, m, szx) into its 0-3 byte wire form per
// RFC 7959 §2.1: an unsigned integer, MSB-first, whose low nibble packs
// (M, SZX) as M<<3 | SZX.
func EncodeBlockOption(num uint32, m bool, szx uint8) ([]byte, error) {
	if szx > SZXBERT {
		return nil, ErrMalformedBlockOption
	}
	if num >= 1<<20 {
		return nil, ErrMalformedBlockOption
	}

	low := szx
	if m {
		low |= 0x08
	}
	val := num<<4 | uint32(low)

	switch {
	case val == 0:
		return []byte{}, nil
	case val < 1<<8:
		return []byte{byte(val)}, nil
	case val < 1<<16:
		return []byte{byte(val >> 8), byte(val)}, nil
	case val < 1<<24:
		return []byte{byte(val >> 16), byte(val >> 8), byte(val)}, nil
	default:
		return nil, ErrMalformedBlockOption
	}
}

// DecodeBlockOption unpacks a 0-3 byte Block1/Block2 option value into
// (num, m, szx). Lengths above 3 bytes are malformed per RFC 7959 §2.1.
func DecodeBlockOption(b []byte) (num uint32, m bool, szx uint8, err error) {
	if len(b) > 3 {
		return 0, false, 0, ErrMalformedBlockOption
	}

	var val uint32
	for _, octet := range b {
		val = val<<8 | uint32(octet)
	}

	szx = uint8(val & 0x07)
	m = val&0x08 != 0
	num = val >> 4
	return num, m, szx, nil
}

// Encode packs the receiver into its wire form.
func (o BlockOption) Encode() ([]byte, error) {
	return EncodeBlockOption(o.Num, o.M, o.SZX)
}

// IsBERT reports whether this block option negotiates BERT (SZX==7).
func (o BlockOption) IsBERT() bool {
	return o.SZX == SZXBERT
}
