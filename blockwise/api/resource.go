// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/absmach/coap-blockwise/blockwise"
)

// ResourceStore is a minimal in-memory CoAP resource store, standing in for
// the "application" above the blockwise layer (spec's Upper collaborator).
// It exists to give the blockwise.Layer something real to deliver
// reassembled uploads to; it is not itself part of the blockwise state
// machine.
type ResourceStore struct {
	mu        sync.RWMutex
	resources map[string][]byte
	logger    *slog.Logger
}

// NewResourceStore constructs an empty ResourceStore.
func NewResourceStore(logger *slog.Logger) *ResourceStore {
	return &ResourceStore{
		resources: make(map[string][]byte),
		logger:    logger,
	}
}

var _ blockwise.Upper = (*ResourceStore)(nil)

// ReceiveRequest implements blockwise.Upper. A PUT/POST stores the
// (already-reassembled) request body under its URI path; a GET returns it.
func (rs *ResourceStore) ReceiveRequest(_ context.Context, _ *blockwise.Exchange, req *blockwise.Message) error {
	path := joinPath(req.URIPath)
	switch req.Code {
	case 0x02, 0x03: // POST, PUT
		rs.mu.Lock()
		rs.resources[path] = append([]byte(nil), req.Payload...)
		rs.mu.Unlock()
		rs.logger.Info("stored resource", slog.String("path", path), slog.Int("size", len(req.Payload)))
	default:
		rs.mu.RLock()
		body := rs.resources[path]
		rs.mu.RUnlock()
		rs.logger.Info("served resource", slog.String("path", path), slog.Int("size", len(body)))
	}
	return nil
}

// ReceiveResponse implements blockwise.Upper for the client side of a
// transfer (e.g. a reassembled GET response). The demo store only acts as a
// server, so it just logs.
func (rs *ResourceStore) ReceiveResponse(_ context.Context, _ *blockwise.Exchange, resp *blockwise.Message) error {
	rs.logger.Info("received assembled response", slog.Int("size", len(resp.Payload)))
	return nil
}

// Get returns the stored body for path, if any.
func (rs *ResourceStore) Get(path string) ([]byte, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	body, ok := rs.resources[path]
	return body, ok
}

func joinPath(segments []string) string {
	out := ""
	for _, s := range segments {
		out += "/" + s
	}
	if out == "" {
		return "/"
	}
	return out
}
