// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tracing adds OpenTelemetry spans to a blockwise.Service, mirroring
// coap/tracing/adapter.go. Each operation call gets its own span, tagged
// with the peer and the exchange's diagnostic ID; the spans of the blocks of
// one transfer are not linked into a single trace.
package tracing

import (
	"context"

	"github.com/absmach/coap-blockwise/blockwise"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ blockwise.Service = (*tracingMiddleware)(nil)

const (
	inboundRequestOp   = "process_inbound_request"
	outboundRequestOp  = "process_outbound_request"
	outboundResponseOp = "process_outbound_response"
	inboundResponseOp  = "process_inbound_response"
)

type tracingMiddleware struct {
	tracer trace.Tracer
	svc    blockwise.Service
}

// New wraps svc with tracing spans per blockwise operation.
func New(tracer trace.Tracer, svc blockwise.Service) blockwise.Service {
	return &tracingMiddleware{tracer: tracer, svc: svc}
}

func (tm *tracingMiddleware) ProcessInboundRequest(ctx context.Context, ex *blockwise.Exchange, req *blockwise.Message) error {
	ctx, span := tm.tracer.Start(ctx, inboundRequestOp, trace.WithAttributes(
		attribute.String("peer", req.Peer),
		attribute.String("exchange_id", ex.ID),
	))
	defer span.End()
	return tm.svc.ProcessInboundRequest(ctx, ex, req)
}

func (tm *tracingMiddleware) ProcessOutboundRequest(ctx context.Context, ex *blockwise.Exchange, req *blockwise.Message) error {
	ctx, span := tm.tracer.Start(ctx, outboundRequestOp, trace.WithAttributes(
		attribute.String("peer", req.Peer),
		attribute.String("exchange_id", ex.ID),
	))
	defer span.End()
	return tm.svc.ProcessOutboundRequest(ctx, ex, req)
}

func (tm *tracingMiddleware) ProcessOutboundResponse(ctx context.Context, ex *blockwise.Exchange, req, resp *blockwise.Message) error {
	ctx, span := tm.tracer.Start(ctx, outboundResponseOp, trace.WithAttributes(
		attribute.String("peer", req.Peer),
		attribute.String("exchange_id", ex.ID),
	))
	defer span.End()
	return tm.svc.ProcessOutboundResponse(ctx, ex, req, resp)
}

func (tm *tracingMiddleware) ProcessInboundResponse(ctx context.Context, ex *blockwise.Exchange, req, resp *blockwise.Message) error {
	ctx, span := tm.tracer.Start(ctx, inboundResponseOp, trace.WithAttributes(
		attribute.String("peer", req.Peer),
		attribute.String("exchange_id", ex.ID),
	))
	defer span.End()
	return tm.svc.ProcessInboundResponse(ctx, ex, req, resp)
}
