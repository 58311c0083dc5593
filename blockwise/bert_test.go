// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise_test

import (
	"testing"

	"github.com/absmach/coap-blockwise/blockwise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlock2StatusPullBERTBlocksSteps(t *testing.T) {
	key := blockwise.NewTransferKey("peer", []byte{0x01}, []string{"large"}, nil)
	status := blockwise.NewBlock2Status(key, 1<<20)

	body := make([]byte, 3*1024+100) // 3 full sub-blocks + a short tail
	status.SetBody(body, nil, "")

	payload, m, blocks, err := status.PullBERTBlocks(0, 2)
	require.NoError(t, err)
	assert.Len(t, payload, 2*1024)
	assert.True(t, m)
	assert.Equal(t, 2, blocks)

	payload, m, blocks, err = status.PullBERTBlocks(2, 2)
	require.NoError(t, err)
	assert.Len(t, payload, 1024+100)
	assert.False(t, m)
	assert.Equal(t, 2, blocks)
}

func TestBlock2StatusPullBERTBlocksUnknownBlock(t *testing.T) {
	key := blockwise.NewTransferKey("peer", []byte{0x02}, []string{"large"}, nil)
	status := blockwise.NewBlock2Status(key, 1<<20)
	status.SetBody(make([]byte, 1024), nil, "")

	_, _, _, err := status.PullBERTBlocks(5, 2)
	assert.ErrorIs(t, err, blockwise.ErrUnknownBlock)
}

func TestBlock1StatusAppendBlockRejectsShortIntermediateSubBlock(t *testing.T) {
	key := blockwise.NewTransferKey("peer", []byte{0x03}, []string{"upload"}, nil)
	status := blockwise.NewBlock1Status(key, 1<<20)

	err := status.AppendBlock(make([]byte, 512), true, blockwise.SZXBERT)
	assert.ErrorIs(t, err, blockwise.ErrMalformedBlockOption)
}
