// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise

import "github.com/absmach/coap-blockwise/pkg/errors"

// Error-kind values per spec §7. Each is a sentinel built with
// pkg/errors.New. The layer returns them, wraps them with fmt.Errorf's %w, or
// carries their text as the diagnostic payload of an error response.
var (
	// ErrWrongBlockNumber: B1.num != status.current_num.
	ErrWrongBlockNumber = errors.New("wrong block number")
	// ErrContentFormatMismatch: content-format differs from the first block's.
	ErrContentFormatMismatch = errors.New("unexpected Content-Format")
	// ErrBodyTooLarge: append would overflow buffer_size.
	ErrBodyTooLarge = errors.New("body exceeded expected size")
	// ErrRequestBodyTooLarge: declared Size1 exceeds the configured cap.
	ErrRequestBodyTooLarge = errors.New("request body exceeds maximum resource body size")
	// ErrUnknownBlock: random-access NUM is beyond the held body.
	ErrUnknownBlock = errors.New("unknown block")
	// ErrResourceImplError: server response Block2.num disagrees with the request.
	ErrResourceImplError = errors.New("response block number does not match request")
	// ErrTransferTimeout: the cleanup timer fired before completion.
	ErrTransferTimeout = errors.New("blockwise transfer timed out")
	// ErrPeerAbort: a newer transfer preempted this one (RFC 7959 §2.4).
	ErrPeerAbort = errors.New("blockwise transfer aborted by a newer transfer on the same resource")
	// ErrSendError: the lower layer rejected a send.
	ErrSendError = errors.New("lower layer rejected send")
	// ErrNoPriorTransfer: random access requested with no prior blockwise context.
	ErrNoPriorTransfer = errors.New("random access requires a prior blockwise transfer")
)
