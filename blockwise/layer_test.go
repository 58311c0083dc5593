// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/coap-blockwise/blockwise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpper struct {
	requests  []*blockwise.Message
	responses []*blockwise.Message
}

func (f *fakeUpper) ReceiveRequest(_ context.Context, _ *blockwise.Exchange, req *blockwise.Message) error {
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeUpper) ReceiveResponse(_ context.Context, _ *blockwise.Exchange, resp *blockwise.Message) error {
	f.responses = append(f.responses, resp)
	return nil
}

type fakeLower struct {
	sentResponses []*blockwise.Message
	sentRequests  []*blockwise.Message
}

func (f *fakeLower) SendResponse(_ context.Context, _ *blockwise.Exchange, resp *blockwise.Message) error {
	f.sentResponses = append(f.sentResponses, resp)
	return nil
}

func (f *fakeLower) SendRequest(_ context.Context, _ *blockwise.Exchange, req *blockwise.Message) error {
	f.sentRequests = append(f.sentRequests, req)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLayerPlainBlock1Upload(t *testing.T) {
	upper := &fakeUpper{}
	lower := &fakeLower{}
	cfg := blockwise.Config{MaxMessageSize: 1024, MaxResourceBodySize: 1 << 16, StatusLifetime: time.Minute}
	layer := blockwise.New(cfg, upper, lower, testLogger())

	ctx := context.Background()
	ex := &blockwise.Exchange{ID: "ex-1"}
	token := []byte{0xAA}

	first := &blockwise.Message{
		Code:    0x03,
		Token:   token,
		Peer:    "peer-1",
		URIPath: []string{"upload"},
		Block1:  &blockwise.BlockOption{Num: 0, M: true, SZX: 6},
		Payload: make([]byte, 1024),
	}
	require.NoError(t, layer.ProcessInboundRequest(ctx, ex, first))
	require.Len(t, lower.sentResponses, 1)
	assert.Equal(t, blockwise.CodeContinue, lower.sentResponses[0].Code)
	assert.Equal(t, uint32(0), lower.sentResponses[0].Block1.Num)
	assert.Empty(t, upper.requests)

	second := &blockwise.Message{
		Code:    0x03,
		Token:   token,
		Peer:    "peer-1",
		URIPath: []string{"upload"},
		Block1:  &blockwise.BlockOption{Num: 1, M: false, SZX: 6},
		Payload: make([]byte, 512),
	}
	require.NoError(t, layer.ProcessInboundRequest(ctx, ex, second))
	require.Len(t, upper.requests, 1)
	assert.Len(t, upper.requests[0].Payload, 1024+512)
	assert.Equal(t, 0, layer.Registry().Block1Count())
}

func TestLayerBERTUploadStep4(t *testing.T) {
	upper := &fakeUpper{}
	lower := &fakeLower{}
	cfg := blockwise.Config{BERTStepSize: 4, MaxMessageSize: 1024, MaxResourceBodySize: 1 << 20, StatusLifetime: time.Minute}
	layer := blockwise.New(cfg, upper, lower, testLogger())

	ctx := context.Background()
	ex := &blockwise.Exchange{ID: "ex-2"}
	token := []byte{0xBB}

	first := &blockwise.Message{
		Code:    0x03,
		Token:   token,
		Peer:    "peer-2",
		URIPath: []string{"bulk"},
		Block1:  &blockwise.BlockOption{Num: 0, M: true, SZX: blockwise.SZXBERT},
		Payload: make([]byte, 4*1024),
	}
	require.NoError(t, layer.ProcessInboundRequest(ctx, ex, first))
	require.Len(t, lower.sentResponses, 1)
	assert.Equal(t, blockwise.CodeContinue, lower.sentResponses[0].Code)

	second := &blockwise.Message{
		Code:    0x03,
		Token:   token,
		Peer:    "peer-2",
		URIPath: []string{"bulk"},
		Block1:  &blockwise.BlockOption{Num: 4, M: false, SZX: blockwise.SZXBERT},
		Payload: make([]byte, 100),
	}
	require.NoError(t, layer.ProcessInboundRequest(ctx, ex, second))
	require.Len(t, upper.requests, 1)
	assert.Len(t, upper.requests[0].Payload, 4*1024+100)
}

func TestLayerRejectsWrongBlockNumber(t *testing.T) {
	upper := &fakeUpper{}
	lower := &fakeLower{}
	cfg := blockwise.Config{MaxMessageSize: 1024, MaxResourceBodySize: 1 << 16, StatusLifetime: time.Minute}
	layer := blockwise.New(cfg, upper, lower, testLogger())

	ctx := context.Background()
	ex := &blockwise.Exchange{ID: "ex-3"}

	req := &blockwise.Message{
		Code:    0x03,
		Token:   []byte{0xCC},
		Peer:    "peer-3",
		URIPath: []string{"upload"},
		Block1:  &blockwise.BlockOption{Num: 1, M: true, SZX: 6},
		Payload: make([]byte, 64),
	}
	require.NoError(t, layer.ProcessInboundRequest(ctx, ex, req))
	require.Len(t, lower.sentResponses, 1)
	assert.Equal(t, blockwise.CodeRequestEntityIncomplete, lower.sentResponses[0].Code)
	assert.Empty(t, upper.requests)
	assert.Equal(t, 0, layer.Registry().Block1Count())
}

func TestLayerRandomAccessOutboundEchoesZero(t *testing.T) {
	upper := &fakeUpper{}
	lower := &fakeLower{}
	cfg := blockwise.Config{BERTStepSize: 4, MaxMessageSize: 1024, MaxResourceBodySize: 1 << 20, StatusLifetime: time.Minute}
	layer := blockwise.New(cfg, upper, lower, testLogger())

	ctx := context.Background()
	ex := &blockwise.Exchange{ID: "ex-4"}

	initial := &blockwise.Message{
		Code:    0x01,
		Token:   []byte{0xDD},
		Peer:    "peer-4",
		URIPath: []string{"bulk"},
		Payload: make([]byte, 10*1024),
	}
	require.NoError(t, layer.ProcessOutboundRequest(ctx, ex, initial))
	require.Len(t, lower.sentRequests, 1)

	randomAccess := &blockwise.Message{
		Code:    0x01,
		Token:   []byte{0xDD},
		Peer:    "peer-4",
		URIPath: []string{"bulk"},
		Block2:  &blockwise.BlockOption{Num: 5},
	}
	require.NoError(t, layer.ProcessOutboundRequest(ctx, ex, randomAccess))
	require.Len(t, lower.sentRequests, 2)
	assert.Equal(t, uint32(0), lower.sentRequests[1].Block1.Num)
}

func TestLayerObservePreemptsPriorBlock2Transfer(t *testing.T) {
	upper := &fakeUpper{}
	lower := &fakeLower{}
	cfg := blockwise.Config{BERTStepSize: 4, MaxMessageSize: 16, MaxResourceBodySize: 1 << 20, StatusLifetime: time.Minute}
	layer := blockwise.New(cfg, upper, lower, testLogger())

	ctx := context.Background()
	ex := &blockwise.Exchange{ID: "ex-5"}
	req := &blockwise.Message{
		Code:    0x01,
		Token:   []byte{0xEE},
		Peer:    "peer-5",
		URIPath: []string{"observed"},
	}

	firstResp := &blockwise.Message{Code: 0x45, Payload: make([]byte, 8192)}
	require.NoError(t, layer.ProcessOutboundResponse(ctx, ex, req, firstResp))
	require.Equal(t, 1, layer.Registry().Block2Count())

	secondResp := &blockwise.Message{Code: 0x45, Payload: make([]byte, 8192)}
	require.NoError(t, layer.ProcessOutboundResponse(ctx, ex, req, secondResp))
	assert.Equal(t, 1, layer.Registry().Block2Count())
}

func TestLayerResourceImplementationMismatchReturns500(t *testing.T) {
	upper := &fakeUpper{}
	lower := &fakeLower{}
	cfg := blockwise.Config{BERTStepSize: 4, MaxMessageSize: 1024, MaxResourceBodySize: 1 << 20, StatusLifetime: time.Minute}
	layer := blockwise.New(cfg, upper, lower, testLogger())

	ctx := context.Background()
	ex := &blockwise.Exchange{ID: "ex-6"}
	req := &blockwise.Message{
		Code:    0x01,
		Token:   []byte{0xFF},
		Peer:    "peer-6",
		URIPath: []string{"buggy"},
		Block2:  &blockwise.BlockOption{Num: 3, SZX: blockwise.SZXBERT},
	}
	resp := &blockwise.Message{
		Code:    0x45,
		Payload: make([]byte, 1024),
		Block2:  &blockwise.BlockOption{Num: 7, SZX: blockwise.SZXBERT},
	}

	require.NoError(t, layer.ProcessOutboundResponse(ctx, ex, req, resp))
	require.Len(t, lower.sentResponses, 1)
	assert.Equal(t, blockwise.CodeInternalServerError, lower.sentResponses[0].Code)
}
