// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise

import "context"

// Service is the blockwise layer's own four-direction API (spec §6 as seen
// from the endpoint's point of view: inbound/outbound request/response),
// wrapped by the logging/metrics/tracing middlewares in api/ and tracing/
// the same way the teacher's coap.Service is wrapped (coap/api/logging.go,
// coap/api/metrics.go, coap/tracing/adapter.go).
type Service interface {
	ProcessInboundRequest(ctx context.Context, ex *Exchange, req *Message) error
	ProcessOutboundRequest(ctx context.Context, ex *Exchange, req *Message) error
	ProcessOutboundResponse(ctx context.Context, ex *Exchange, req, resp *Message) error
	ProcessInboundResponse(ctx context.Context, ex *Exchange, req, resp *Message) error
}

var _ Service = (*Layer)(nil)
