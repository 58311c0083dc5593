// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"time"

	"github.com/absmach/coap-blockwise/blockwise"
	"github.com/go-kit/kit/metrics"
)

var _ blockwise.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     blockwise.Service
}

// MetricsMiddleware instruments a blockwise.Service by tracking request
// count and latency per operation, mirroring coap/api/metrics.go.
func MetricsMiddleware(svc blockwise.Service, counter metrics.Counter, latency metrics.Histogram) blockwise.Service {
	return &metricsMiddleware{counter: counter, latency: latency, svc: svc}
}

func (mm *metricsMiddleware) observe(method string, begin time.Time) {
	mm.counter.With("method", method).Add(1)
	mm.latency.With("method", method).Observe(float64(time.Since(begin).Microseconds()))
}

func (mm *metricsMiddleware) ProcessInboundRequest(ctx context.Context, ex *blockwise.Exchange, req *blockwise.Message) error {
	defer mm.observe("process_inbound_request", time.Now())
	return mm.svc.ProcessInboundRequest(ctx, ex, req)
}

func (mm *metricsMiddleware) ProcessOutboundRequest(ctx context.Context, ex *blockwise.Exchange, req *blockwise.Message) error {
	defer mm.observe("process_outbound_request", time.Now())
	return mm.svc.ProcessOutboundRequest(ctx, ex, req)
}

func (mm *metricsMiddleware) ProcessOutboundResponse(ctx context.Context, ex *blockwise.Exchange, req, resp *blockwise.Message) error {
	defer mm.observe("process_outbound_response", time.Now())
	return mm.svc.ProcessOutboundResponse(ctx, ex, req, resp)
}

func (mm *metricsMiddleware) ProcessInboundResponse(ctx context.Context, ex *blockwise.Exchange, req, resp *blockwise.Message) error {
	defer mm.observe("process_inbound_response", time.Now())
	return mm.svc.ProcessInboundResponse(ctx, ex, req, resp)
}
