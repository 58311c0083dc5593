// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package blockwise implements the Block1/Block2 blockwise-transfer state
// machine, including the BERT (SZX=7) extension for CoAP-over-TCP (RFC 7959,
// RFC 8323 §6). It sits between an Upper (application/observe/matcher) layer
// and a Lower (transport) layer, per SPEC_FULL.md.
package blockwise

import (
	"context"
	"fmt"
	"log/slog"
)

// Layer is the blockwise/BERT state machine. One Layer instance is shared by
// every worker processing messages for a given endpoint; its only mutable
// shared state is the Registry, which is itself concurrency-safe (spec §5).
//
// The base (SZX<=6) and BERT (SZX=7) cases are expressed as one state
// machine parameterised by step size (1 for base, cfg.BERTStepSize for
// BERT), per spec §9's instruction to avoid replicating a class hierarchy
// for "base + BERT extension".
type Layer struct {
	cfg      Config
	registry *Registry
	upper    Upper
	lower    Lower
	logger   *slog.Logger
}

// New constructs a Layer. Its Registry reports transfers that are preempted
// or time out to onTransferGone, which logs them.
func New(cfg Config, upper Upper, lower Lower, logger *slog.Logger) *Layer {
	l := &Layer{
		cfg:    cfg,
		upper:  upper,
		lower:  lower,
		logger: logger,
	}
	l.registry = NewRegistry(cfg.StatusLifetime, l.onTransferGone)
	return l
}

// Registry exposes the transfer registry for tests and metrics.
func (l *Layer) Registry() *Registry {
	return l.registry
}

func (l *Layer) onTransferGone(key TransferKey, cause error) {
	l.logger.Info("blockwise transfer ended", slog.String("key", key.String()), slog.Any("cause", cause))
}

// stepSize returns how many BERT sub-blocks to bulk per on-wire block for
// outbound transfers (1 disables BERT bulking).
func (l *Layer) stepSize() int {
	if l.cfg.BERTEnabled() {
		return l.cfg.BERTStepSize
	}
	return 1
}

func keyFor(m *Message) TransferKey {
	return NewTransferKey(m.Peer, m.Token, m.URIPath, m.URIQuery)
}

// errorResponse builds a 4.xx/5.xx response carrying cause's text as the
// CoAP diagnostic payload, so the sentinel values in errors.go reach the
// wire instead of being declared but never returned (spec §7's error table).
func errorResponse(req *Message, code Code, cause error) *Message {
	return &Message{
		Code:       code,
		Token:      req.Token,
		MID:        req.MID,
		Peer:       req.Peer,
		Diagnostic: cause.Error(),
	}
}

// ackResponse builds a non-error response echoing req's token/MID/peer, used
// by the Continue acknowledgement where there is no diagnostic to carry.
func ackResponse(req *Message, code Code) *Message {
	return &Message{
		Code:  code,
		Token: req.Token,
		MID:   req.MID,
		Peer:  req.Peer,
	}
}

// ProcessInboundRequest handles a request arriving from the peer. It covers
// spec §4.2 (Block1 upload) and §4.3 (Block2 request-for-next-block). If the
// message carries neither option it is forwarded to Upper unchanged.
func (l *Layer) ProcessInboundRequest(ctx context.Context, ex *Exchange, req *Message) error {
	switch {
	case req.Block1 != nil:
		return l.handleInboundUpload(ctx, ex, req)
	case req.Block2 != nil && req.Block2.Num > 0:
		return l.handleBlockRequest(ctx, ex, req)
	default:
		return l.upper.ReceiveRequest(ctx, ex, req)
	}
}

// handleInboundUpload implements spec §4.2.
func (l *Layer) handleInboundUpload(ctx context.Context, ex *Exchange, req *Message) error {
	b1 := req.Block1

	// Step 1: Size1 cap check, before any per-transfer state is touched.
	if req.Size1 != nil && int(*req.Size1) > l.cfg.MaxResourceBodySize {
		resp := errorResponse(req, CodeRequestEntityTooLarge, ErrRequestBodyTooLarge)
		size1 := uint32(l.cfg.MaxResourceBodySize)
		resp.Size1 = &size1
		return l.lower.SendResponse(ctx, ex, resp)
	}

	key := keyFor(req)
	status, ok := l.registry.GetBlock1(key)
	if !ok {
		status = l.registry.StartBlock1(key, l.cfg.MaxResourceBodySize)
	}

	status.mu.Lock()
	// Step 3: peer restart. No Size1 reconciliation against any
	// previously-seen hint is performed here; see SPEC_FULL.md EXP-7.2.
	if b1.Num == 0 && status.CurrentNum() > 0 {
		status.reset()
	}

	// Step 4: wrong block number.
	if b1.Num != status.CurrentNum() {
		status.mu.Unlock()
		l.registry.DeleteBlock1(key)
		return l.lower.SendResponse(ctx, ex, errorResponse(req, CodeRequestEntityIncomplete, ErrWrongBlockNumber))
	}

	// Step 5: content-format consistency.
	if status.contentFormat != nil && req.ContentFormat != nil && *status.contentFormat != *req.ContentFormat {
		status.mu.Unlock()
		l.registry.DeleteBlock1(key)
		return l.lower.SendResponse(ctx, ex, errorResponse(req, CodeRequestEntityIncomplete, ErrContentFormatMismatch))
	}
	if status.contentFormat == nil {
		status.contentFormat = req.ContentFormat
	}
	status.mu.Unlock()

	// Step 6-7: append + advance (locks internally).
	if err := status.AppendBlock(req.Payload, b1.M, b1.SZX); err != nil {
		l.registry.DeleteBlock1(key)
		return l.lower.SendResponse(ctx, ex, errorResponse(req, CodeRequestEntityTooLarge, err))
	}

	if b1.M {
		// Step 8: more blocks to come.
		l.registry.TouchBlock1(key)
		resp := ackResponse(req, CodeContinue)
		echoed := BlockOption{Num: b1.Num, M: true, SZX: b1.SZX}
		resp.Block1 = &echoed
		return l.lower.SendResponse(ctx, ex, resp)
	}

	// Step 9: final block. Assemble and deliver upward.
	body := status.Body()
	cf := status.ContentFormat()
	l.registry.DeleteBlock1(key)

	assembled := &Message{
		Code:          req.Code,
		Token:         req.Token,
		MID:           req.MID,
		Peer:          req.Peer,
		URIPath:       req.URIPath,
		URIQuery:      req.URIQuery,
		ContentFormat: cf,
		Payload:       body,
	}
	finalB1 := *b1
	ex.Block1ToAck = &finalB1
	return l.upper.ReceiveRequest(ctx, ex, assembled)
}

// handleBlockRequest implements spec §4.3 (Block2 SZX==7 / BERT branch). The
// non-BERT (SZX<=6) case is the same code path with stepSize effectively 1.
func (l *Layer) handleBlockRequest(ctx context.Context, ex *Exchange, req *Message) error {
	b2 := req.Block2
	key := keyFor(req)

	status, ok := l.registry.GetBlock2(key)
	if !ok {
		return l.lower.SendResponse(ctx, ex, l.unknownBlockResponse(req, b2))
	}

	var payload []byte
	var m bool
	var blocks int
	var err error
	if b2.SZX == SZXBERT {
		payload, m, blocks, err = status.PullBERTBlocks(b2.Num, l.stepSize())
	} else {
		payload, m, blocks, err = pullPlainBlock2(status, b2.Num, b2.SZX)
	}
	if err != nil {
		l.registry.DeleteBlock2(key)
		return l.lower.SendResponse(ctx, ex, l.unknownBlockResponse(req, b2))
	}

	newNum := b2.Num + uint32(blocks)
	status.setCurrentNum(newNum)
	if !m {
		status.complete.Store(true)
		l.registry.DeleteBlock2(key)
	} else {
		l.registry.TouchBlock2(key)
	}

	resp := &Message{
		Code:    req.Code,
		Token:   req.Token,
		MID:     req.MID,
		Peer:    req.Peer,
		Payload: payload,
	}
	resp.Block2 = &BlockOption{Num: b2.Num, M: m, SZX: b2.SZX}
	if ex.Block1ToAck != nil {
		resp.Block1 = ex.Block1ToAck
		ex.Block1ToAck = nil
	}
	return l.lower.SendResponse(ctx, ex, resp)
}

func (l *Layer) unknownBlockResponse(req *Message, echo *BlockOption) *Message {
	resp := errorResponse(req, CodeBadOption, ErrUnknownBlock)
	e := *echo
	resp.Block2 = &e
	return resp
}

// ProcessOutboundRequest implements spec §4.4.
func (l *Layer) ProcessOutboundRequest(ctx context.Context, ex *Exchange, req *Message) error {
	key := keyFor(req)

	if l.cfg.BERTEnabled() && req.Block2 != nil && req.Block2.Num > 0 {
		return l.handleRandomAccessOutbound(ctx, ex, req, key)
	}

	if prev, ok := l.registry.GetBlock2(key); ok {
		l.registry.DeleteBlock2(key)
		l.onTransferGone(prev.Key(), ErrPeerAbort)
	}

	if !l.cfg.RequiresBlockwise(len(req.Payload)) {
		return l.lower.SendRequest(ctx, ex, req)
	}

	status := l.registry.StartBlock1(key, l.cfg.MaxResourceBodySize)
	status.SetBody(req.Payload, req.ContentFormat)

	step := l.stepSize()
	szx := l.cfg.PreferredSZX()
	if step > 1 {
		szx = SZXBERT
	}

	var payload []byte
	var m bool
	var blocks int
	var err error
	if szx == SZXBERT {
		payload, m, blocks, err = status.PullBERTBlocks(0, step)
	} else {
		payload, m, blocks, err = pullPlainBlock(status, 0, szx)
	}
	if err != nil {
		l.registry.DeleteBlock1(key)
		return fmt.Errorf("blockwise: start outbound upload: %w", err)
	}
	status.setCurrentNum(uint32(blocks))

	out := *req
	out.Payload = payload
	firstBlock := BlockOption{Num: 0, M: m, SZX: szx}
	out.Block1 = &firstBlock
	return l.lower.SendRequest(ctx, ex, &out)
}

// pullPlainBlock serves a single base (SZX<=6) sized sub-block from an
// outbound Block1Status body, for parity with the BERT pull helpers.
func pullPlainBlock(status *Block1Status, num uint32, szx uint8) ([]byte, bool, int, error) {
	status.mu.Lock()
	defer status.mu.Unlock()
	size := SizeOf(szx)
	start := int(num) * size
	if start > len(status.body) {
		return nil, false, 0, ErrUnknownBlock
	}
	end := start + size
	if end >= len(status.body) {
		return status.body[start:], false, 1, nil
	}
	return status.body[start:end], true, 1, nil
}

// pullPlainBlock2 serves a single base (SZX<=6) sized sub-block from a
// Block2Status's held body, for parity with pullPlainBlock.
func pullPlainBlock2(status *Block2Status, num uint32, szx uint8) ([]byte, bool, int, error) {
	status.mu.Lock()
	defer status.mu.Unlock()
	size := SizeOf(szx)
	start := int(num) * size
	if start > len(status.body) {
		return nil, false, 0, ErrUnknownBlock
	}
	end := start + size
	if end >= len(status.body) {
		return status.body[start:], false, 1, nil
	}
	return status.body[start:end], true, 1, nil
}

// handleRandomAccessOutbound implements spec §4.7. Preserved verbatim per
// spec §9/EXP-7.3: the re-emitted Block1 option always echoes NUM=0
// regardless of the requested block number, even though the payload itself
// is re-emitted starting at that offset -- this is flagged upstream as
// possibly unintentional but is existing, documented semantics, not a bug to
// silently fix.
func (l *Layer) handleRandomAccessOutbound(ctx context.Context, ex *Exchange, req *Message, key TransferKey) error {
	status, ok := l.registry.GetBlock1(key)
	if !ok {
		l.logger.Warn("random access requested with no prior blockwise context", slog.String("key", key.String()))
		return ErrNoPriorTransfer
	}

	payload, m, _, err := status.PullBERTBlocks(req.Block2.Num, l.stepSize())
	if err != nil {
		return fmt.Errorf("blockwise: random access: %w", err)
	}

	out := *req
	out.Payload = payload
	out.Block1 = &BlockOption{Num: 0, M: m, SZX: SZXBERT}
	return l.lower.SendRequest(ctx, ex, &out)
}

// ProcessOutboundResponse implements spec §4.5. req is the request this
// response answers, carried alongside resp so the layer can tell whether the
// peer asked for a specific block (random access) or this is an early
// negotiation.
func (l *Layer) ProcessOutboundResponse(ctx context.Context, ex *Exchange, req *Message, resp *Message) error {
	// Piggyback the final Block1 of a completed upload before any send; the
	// copies of resp made below carry it too.
	if ex.Block1ToAck != nil {
		resp.Block1 = ex.Block1ToAck
		ex.Block1ToAck = nil
	}

	if !l.cfg.BERTEnabled() {
		return l.lower.SendResponse(ctx, ex, resp)
	}

	key := keyFor(req)

	if req.Block2 != nil && req.Block2.Num > 0 {
		// Peer random-access request.
		if resp.Block2 != nil {
			if resp.Block2.Num != req.Block2.Num {
				return l.lower.SendResponse(ctx, ex, errorResponse(req, CodeInternalServerError, ErrResourceImplError))
			}
			return l.lower.SendResponse(ctx, ex, resp)
		}
		if len(resp.Payload) == 0 {
			return l.lower.SendResponse(ctx, ex, resp)
		}
		// Response carries the full body but no Block2: crop starting at
		// the requested offset (per spec §9 EXP-7.1: use Block2.M, not
		// Block1.M, to decide continuation).
		status := l.registry.StartBlock2(key, l.cfg.MaxResourceBodySize)
		status.SetBody(resp.Payload, resp.ContentFormat, resp.ETag)
		payload, m, _, err := status.PullBERTBlocks(req.Block2.Num, l.stepSize())
		if err != nil {
			l.registry.DeleteBlock2(key)
			return l.lower.SendResponse(ctx, ex, l.unknownBlockResponse(req, req.Block2))
		}
		out := *resp
		out.Payload = payload
		out.Block2 = &BlockOption{Num: req.Block2.Num, M: m, SZX: SZXBERT}
		if !m {
			l.registry.DeleteBlock2(key)
		}
		return l.lower.SendResponse(ctx, ex, &out)
	}

	// Early negotiation: request has Block2.Num==0 or no Block2, body large.
	if !l.cfg.RequiresBlockwise(len(resp.Payload)) {
		return l.lower.SendResponse(ctx, ex, resp)
	}

	status := l.registry.StartBlock2(key, l.cfg.MaxResourceBodySize)
	status.SetBody(resp.Payload, resp.ContentFormat, resp.ETag)
	payload, m, blocks, err := status.PullBERTBlocks(0, l.stepSize())
	if err != nil {
		l.registry.DeleteBlock2(key)
		return fmt.Errorf("blockwise: early negotiation: %w", err)
	}
	status.setCurrentNum(uint32(blocks))
	if !m {
		l.registry.DeleteBlock2(key)
	} else {
		l.registry.TouchBlock2(key)
	}

	out := *resp
	out.Payload = payload
	out.Block2 = &BlockOption{Num: 0, M: m, SZX: SZXBERT}
	return l.lower.SendResponse(ctx, ex, &out)
}

// ProcessInboundResponse implements spec §4.6: when the peer's 2.31
// Continue arrives for our outbound Block1 upload, send the next bulked
// batch of sub-blocks. It also handles the symmetric client-side Block2
// download: appending an inbound response block to our own reassembly
// buffer and, once complete, delivering the assembled response upward.
func (l *Layer) ProcessInboundResponse(ctx context.Context, ex *Exchange, req *Message, resp *Message) error {
	key := keyFor(req)

	if resp.Code == CodeContinue {
		status, ok := l.registry.GetBlock1(key)
		if !ok {
			return l.upper.ReceiveResponse(ctx, ex, resp)
		}
		next := status.CurrentNum()
		payload, m, blocks, err := status.PullBERTBlocks(next, l.stepSize())
		if err != nil {
			ex.SendError = err
			l.registry.DeleteBlock1(key)
			return fmt.Errorf("blockwise: next-block transmission: %w", ErrSendError)
		}
		status.setCurrentNum(next + uint32(blocks))

		out := &Message{
			Code:    req.Code,
			Token:   req.Token, // reuse the original token for traceability
			MID:     resp.MID,
			Peer:    resp.Peer,
			Payload: payload,
		}
		out.Block1 = &BlockOption{Num: next, M: m, SZX: SZXBERT}
		if err := l.lower.SendRequest(ctx, ex, out); err != nil {
			ex.SendError = err
			l.registry.DeleteBlock1(key)
			return fmt.Errorf("blockwise: %w: %s", ErrSendError, err)
		}
		if !m {
			l.registry.DeleteBlock1(key)
		} else {
			l.registry.TouchBlock1(key)
		}
		return nil
	}

	if resp.Block2 == nil {
		return l.upper.ReceiveResponse(ctx, ex, resp)
	}

	status, ok := l.registry.GetBlock2(key)
	if !ok {
		status = l.registry.StartBlock2(key, l.cfg.MaxResourceBodySize)
	}
	if err := appendDownload(status, resp.Payload, resp.Block2.M, resp.Block2.SZX); err != nil {
		l.registry.DeleteBlock2(key)
		return l.lower.SendRequest(ctx, ex, errorResponse(req, CodeRequestEntityTooLarge, err))
	}

	if resp.Block2.M {
		l.registry.TouchBlock2(key)
		next := status.CurrentNum()
		nextReq := *req
		nextReq.Block2 = &BlockOption{Num: next, M: false, SZX: resp.Block2.SZX}
		return l.lower.SendRequest(ctx, ex, &nextReq)
	}

	body := status.Body()
	l.registry.DeleteBlock2(key)
	assembled := &Message{
		Code:          resp.Code,
		Token:         resp.Token,
		MID:           resp.MID,
		Peer:          resp.Peer,
		ContentFormat: resp.ContentFormat,
		Payload:       body,
	}
	return l.upper.ReceiveResponse(ctx, ex, assembled)
}

// appendDownload is the response-side mirror of Block1Status.AppendBlock,
// used when this endpoint is the one downloading a blockwise response body.
func appendDownload(status *Block2Status, payload []byte, m bool, szx uint8) error {
	status.mu.Lock()
	defer status.mu.Unlock()
	if len(status.body)+len(payload) > status.bufferSize {
		return ErrBodyTooLarge
	}
	status.body = append(status.body, payload...)
	if szx == SZXBERT {
		subBlocks := len(payload) / bertSubBlockSize
		if len(payload)%bertSubBlockSize != 0 {
			subBlocks++
		}
		status.currentNum.Add(uint32(subBlocks))
	} else {
		status.currentNum.Add(1)
	}
	return nil
}
