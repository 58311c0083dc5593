// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package transport adapts between blockwise.Message/BlockOption and
// github.com/plgd-dev/go-coap/v2's message.Options/codes.Code, so the
// blockwise core package (blockwise/) never has to import a concrete CoAP
// codec (spec §1: the message codec is an external collaborator). This is
// the only package that knows the plgd-dev/go-coap/v2 wire types.
package transport

import (
	"github.com/absmach/coap-blockwise/blockwise"
	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
)

// CoAP option numbers per the RFC 7252 option registry, plus Block1/Block2
// (RFC 7959 §2.1) and Size1/Size2 (RFC 7959 §4). These are fixed wire
// constants, independent of any particular codec library's exported names.
const (
	optionContentFormat = message.OptionID(12)
	optionETag           = message.OptionID(4)
	optionURIPath        = message.OptionID(11)
	optionObserve        = message.OptionID(6)
	optionURIQuery       = message.OptionID(15)
	optionBlock2         = message.OptionID(23)
	optionBlock1         = message.OptionID(27)
	optionSize2          = message.OptionID(28)
	optionSize1          = message.OptionID(60)
)

// ToCode converts a blockwise.Code into the codec library's Code type. Both
// encode CoAP response codes identically as class*32+detail, so this is a
// direct numeric conversion.
func ToCode(c blockwise.Code) codes.Code {
	return codes.Code(c)
}

// FromCode converts the codec library's Code into a blockwise.Code.
func FromCode(c codes.Code) blockwise.Code {
	return blockwise.Code(c)
}

// DecodeMessage extracts the blockwise-relevant fields out of a wire
// message's option set into a blockwise.Message. peer identifies the
// far end of the connection (opaque to this layer beyond string identity).
func DecodeMessage(peer string, code codes.Code, token []byte, mid uint16, opts message.Options, payload []byte) (*blockwise.Message, error) {
	m := &blockwise.Message{
		Code:    FromCode(code),
		Token:   token,
		MID:     mid,
		Peer:    peer,
		Payload: payload,
	}

	for _, o := range opts {
		switch o.ID {
		case optionURIPath:
			m.URIPath = append(m.URIPath, string(o.Value))
		case optionURIQuery:
			m.URIQuery = append(m.URIQuery, string(o.Value))
		case optionContentFormat:
			cf := decodeUint16(o.Value)
			m.ContentFormat = &cf
		case optionETag:
			m.ETag = string(o.Value)
		case optionObserve:
			v := decodeUint32(o.Value)
			m.Observe = &v
		case optionSize1:
			v := decodeUint32(o.Value)
			m.Size1 = &v
		case optionSize2:
			v := decodeUint32(o.Value)
			m.Size2 = &v
		case optionBlock1:
			b, err := decodeBlockOption(o.Value)
			if err != nil {
				return nil, err
			}
			m.Block1 = b
		case optionBlock2:
			b, err := decodeBlockOption(o.Value)
			if err != nil {
				return nil, err
			}
			m.Block2 = b
		}
	}
	return m, nil
}

func decodeBlockOption(v []byte) (*blockwise.BlockOption, error) {
	num, mFlag, szx, err := blockwise.DecodeBlockOption(v)
	if err != nil {
		return nil, err
	}
	return &blockwise.BlockOption{Num: num, M: mFlag, SZX: szx}, nil
}

// EncodeOptions builds a fresh message.Options carrying m's blockwise fields,
// for handing to the wire codec before a send.
func EncodeOptions(m *blockwise.Message) (message.Options, error) {
	var opts message.Options

	for _, p := range m.URIPath {
		opts = append(opts, message.Option{ID: optionURIPath, Value: []byte(p)})
	}
	for _, q := range m.URIQuery {
		opts = append(opts, message.Option{ID: optionURIQuery, Value: []byte(q)})
	}
	if m.ContentFormat != nil {
		opts = append(opts, message.Option{ID: optionContentFormat, Value: encodeUint16(*m.ContentFormat)})
	}
	if m.ETag != "" {
		opts = append(opts, message.Option{ID: optionETag, Value: []byte(m.ETag)})
	}
	if m.Observe != nil {
		opts = append(opts, message.Option{ID: optionObserve, Value: encodeUint32(*m.Observe)})
	}
	if m.Size1 != nil {
		opts = append(opts, message.Option{ID: optionSize1, Value: encodeUint32(*m.Size1)})
	}
	if m.Size2 != nil {
		opts = append(opts, message.Option{ID: optionSize2, Value: encodeUint32(*m.Size2)})
	}
	if m.Block1 != nil {
		v, err := m.Block1.Encode()
		if err != nil {
			return nil, err
		}
		opts = append(opts, message.Option{ID: optionBlock1, Value: v})
	}
	if m.Block2 != nil {
		v, err := m.Block2.Encode()
		if err != nil {
			return nil, err
		}
		opts = append(opts, message.Option{ID: optionBlock2, Value: v})
	}
	return opts, nil
}

func decodeUint16(b []byte) uint16 {
	var v uint32
	for _, o := range b {
		v = v<<8 | uint32(o)
	}
	return uint16(v)
}

func decodeUint32(b []byte) uint32 {
	var v uint32
	for _, o := range b {
		v = v<<8 | uint32(o)
	}
	return v
}

func encodeUint16(v uint16) []byte {
	return encodeUint32(uint32(v))
}

func encodeUint32(v uint32) []byte {
	switch {
	case v == 0:
		return []byte{}
	case v < 1<<8:
		return []byte{byte(v)}
	case v < 1<<16:
		return []byte{byte(v >> 8), byte(v)}
	case v < 1<<24:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}
