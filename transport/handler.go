// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/absmach/coap-blockwise/blockwise"
	"github.com/gofrs/uuid"
	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/mux"
)

type ctxKey int

const responseWriterKey ctxKey = 0

// NewMuxHandler adapts a blockwise.Service (the layer, optionally wrapped by
// the logging/metrics/tracing middlewares) into a mux.HandlerFunc, so it can
// be registered directly on a plgd-dev/go-coap/v2 TCP router. Every inbound
// message -- whether a fresh request or the continuation of a blockwise
// upload -- enters the state machine through ProcessInboundRequest; the
// layer's Lower (lowerAdapter, below) writes the eventual response back onto
// this same exchange.
func NewMuxHandler(svc blockwise.Service, logger *slog.Logger) mux.HandlerFunc {
	return func(w mux.ResponseWriter, r *mux.Message) {
		ctx := context.WithValue(r.Context, responseWriterKey, w)

		body, err := readBody(r.Body)
		if err != nil {
			logger.Error(fmt.Sprintf("failed to read request body: %s", err))
			return
		}

		peer := ""
		if w.Client() != nil {
			peer = w.Client().RemoteAddr().String()
		}

		msg, err := DecodeMessage(peer, r.Code, r.Token, 0, r.Options, body)
		if err != nil {
			logger.Error(fmt.Sprintf("failed to decode request options: %s", err))
			return
		}

		exID, err := uuid.NewV4()
		if err != nil {
			logger.Error(fmt.Sprintf("failed to generate exchange id: %s", err))
			return
		}
		ex := &blockwise.Exchange{ID: exID.String()}

		if err := svc.ProcessInboundRequest(ctx, ex, msg); err != nil {
			logger.Error(fmt.Sprintf("blockwise: inbound request handling failed: %s", err))
		}
	}
}

func readBody(r io.ReadSeeker) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(r)
}

// lowerAdapter implements blockwise.Lower on top of a plgd-dev/go-coap/v2
// mux.ResponseWriter/mux.Client pair, symmetric to coap/client.go's use of
// message.Options/mux.Client in the teacher's stack.
type lowerAdapter struct{}

// NewLower returns the blockwise.Lower used to construct a blockwise.Layer
// for a mux-routed server.
func NewLower() blockwise.Lower {
	return &lowerAdapter{}
}

func (lowerAdapter) SendResponse(ctx context.Context, _ *blockwise.Exchange, resp *blockwise.Message) error {
	w, ok := ctx.Value(responseWriterKey).(mux.ResponseWriter)
	if !ok {
		return fmt.Errorf("transport: no response writer in context")
	}
	opts, err := EncodeOptions(resp)
	if err != nil {
		return fmt.Errorf("transport: encode response options: %w", err)
	}
	return w.SetResponse(ToCode(resp.Code), message.TextPlain, bytes.NewReader(resp.Payload), opts...)
}

func (lowerAdapter) SendRequest(ctx context.Context, _ *blockwise.Exchange, req *blockwise.Message) error {
	w, ok := ctx.Value(responseWriterKey).(mux.ResponseWriter)
	if !ok {
		return fmt.Errorf("transport: no response writer in context")
	}
	client := w.Client()
	opts, err := EncodeOptions(req)
	if err != nil {
		return fmt.Errorf("transport: encode request options: %w", err)
	}
	m := message.Message{
		Code:    ToCode(req.Code),
		Token:   message.Token(req.Token),
		Options: opts,
		Context: ctx,
	}
	if len(req.Payload) > 0 {
		m.Body = bytes.NewReader(req.Payload)
	}
	return client.WriteMessage(&m)
}

var _ blockwise.Lower = lowerAdapter{}
