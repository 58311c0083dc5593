// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise

import "context"

// Code is a CoAP response/request code, numerically compatible with
// github.com/plgd-dev/go-coap/v2/message/codes.Code; transport/ converts
// between the two at the edges (spec §1: the message codec is an external
// collaborator).
type Code uint8

// Response codes this layer emits, per spec §6/§7.
const (
	CodeContinue               Code = 0x5F // 2.31
	CodeBadOption               Code = 0x82 // 4.02
	CodeRequestEntityIncomplete Code = 0x88 // 4.08
	CodeRequestEntityTooLarge   Code = 0x8D // 4.13
	CodeInternalServerError     Code = 0xA0 // 5.00
)

// Message is the minimal property bag the blockwise layer operates on: not
// a CoAP codec (out of scope per spec §1), just enough of one message to
// drive the state machine and to be asserted against in tests.
type Message struct {
	Code    Code
	Token   []byte
	MID     uint16
	Peer    string
	URIPath []string
	URIQuery []string

	ContentFormat *uint16
	Size1         *uint32
	Size2         *uint32
	ETag          string
	Observe       *uint32

	Block1 *BlockOption
	Block2 *BlockOption

	Payload []byte

	// Diagnostic is free-form UTF-8 text attached to 4.xx/5.xx responses
	// (spec §6 "Wire formats").
	Diagnostic string
}

// Exchange is the opaque per-request/response property bag carried between
// layers (spec GLOSSARY "Exchange"). The blockwise layer only ever reads or
// sets Block1ToAck and SendError; ID is read only by the tracing middleware.
// Everything else about an Exchange (MID/token
// bookkeeping, the matcher association) belongs to the endpoint layer and is
// out of scope.
type Exchange struct {
	// Block1ToAck is the final Block1 option of a completed inbound upload,
	// stashed so the eventual application response can piggyback it
	// (spec §4.2 step 9, §4.5).
	Block1ToAck *BlockOption

	// SendError is set when a runtime error occurred while emitting a block
	// of an outbound transfer (spec §4.6/§7 SendError); the transfer is
	// abandoned without further sends once this is set.
	SendError error

	// ID is a diagnostic correlation id (spec EXP-2 gofrs/uuid row), not a
	// protocol value; it never appears on the wire.
	ID string
}

// Upper is the application/observe/matcher collaborator this layer delivers
// fully-assembled messages to (spec §6 "Upward contract").
type Upper interface {
	ReceiveRequest(ctx context.Context, ex *Exchange, req *Message) error
	ReceiveResponse(ctx context.Context, ex *Exchange, resp *Message) error
}

// Lower is the transport/serialisation collaborator this layer hands
// individual on-wire messages to (spec §6 "Downward contract").
type Lower interface {
	SendRequest(ctx context.Context, ex *Exchange, req *Message) error
	SendResponse(ctx context.Context, ex *Exchange, resp *Message) error
}
