// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package api provides decorator middlewares for blockwise.Service, mirroring
// the teacher's coap/api/{logging,metrics}.go decorator-over-interface
// pattern.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/coap-blockwise/blockwise"
)

var _ blockwise.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    blockwise.Service
}

// LoggingMiddleware adds structured logging to a blockwise.Service.
func LoggingMiddleware(svc blockwise.Service, logger *slog.Logger) blockwise.Service {
	return &loggingMiddleware{logger: logger, svc: svc}
}

func (lm *loggingMiddleware) ProcessInboundRequest(ctx context.Context, ex *blockwise.Exchange, req *blockwise.Message) (err error) {
	defer func(begin time.Time) {
		lm.log("process_inbound_request", req.Peer, begin, err)
	}(time.Now())
	return lm.svc.ProcessInboundRequest(ctx, ex, req)
}

func (lm *loggingMiddleware) ProcessOutboundRequest(ctx context.Context, ex *blockwise.Exchange, req *blockwise.Message) (err error) {
	defer func(begin time.Time) {
		lm.log("process_outbound_request", req.Peer, begin, err)
	}(time.Now())
	return lm.svc.ProcessOutboundRequest(ctx, ex, req)
}

func (lm *loggingMiddleware) ProcessOutboundResponse(ctx context.Context, ex *blockwise.Exchange, req, resp *blockwise.Message) (err error) {
	defer func(begin time.Time) {
		lm.log("process_outbound_response", req.Peer, begin, err)
	}(time.Now())
	return lm.svc.ProcessOutboundResponse(ctx, ex, req, resp)
}

func (lm *loggingMiddleware) ProcessInboundResponse(ctx context.Context, ex *blockwise.Exchange, req, resp *blockwise.Message) (err error) {
	defer func(begin time.Time) {
		lm.log("process_inbound_response", req.Peer, begin, err)
	}(time.Now())
	return lm.svc.ProcessInboundResponse(ctx, ex, req, resp)
}

func (lm *loggingMiddleware) log(method, peer string, begin time.Time, err error) {
	attrs := []any{
		slog.String("method", method),
		slog.String("peer", peer),
		slog.Duration("duration", time.Since(begin)),
	}
	if err != nil {
		lm.logger.Warn("blockwise operation failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	lm.logger.Info("blockwise operation completed", attrs...)
}
