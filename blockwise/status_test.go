// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise_test

import (
	"testing"

	"github.com/absmach/coap-blockwise/blockwise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlock1StatusAppendBlockPlain(t *testing.T) {
	key := blockwise.NewTransferKey("peer", []byte{0x01}, []string{"upload"}, nil)
	status := blockwise.NewBlock1Status(key, 4096)

	require.NoError(t, status.AppendBlock(make([]byte, 64), true, 2))
	assert.Equal(t, uint32(1), status.CurrentNum())
	assert.False(t, status.Complete())

	require.NoError(t, status.AppendBlock(make([]byte, 32), false, 2))
	assert.Equal(t, uint32(2), status.CurrentNum())
	assert.Len(t, status.Body(), 96)
}

func TestBlock1StatusAppendBlockBERT(t *testing.T) {
	key := blockwise.NewTransferKey("peer", []byte{0x02}, []string{"upload"}, nil)
	status := blockwise.NewBlock1Status(key, 1<<20)

	require.NoError(t, status.AppendBlock(make([]byte, 4096), true, blockwise.SZXBERT))
	assert.Equal(t, uint32(4), status.CurrentNum())

	require.NoError(t, status.AppendBlock(make([]byte, 512), false, blockwise.SZXBERT))
	assert.Equal(t, uint32(5), status.CurrentNum())
	assert.Len(t, status.Body(), 4096+512)
}

func TestBlock1StatusAppendBlockEnforcesBufferSize(t *testing.T) {
	key := blockwise.NewTransferKey("peer", []byte{0x03}, []string{"upload"}, nil)
	status := blockwise.NewBlock1Status(key, 100)

	err := status.AppendBlock(make([]byte, 128), false, 3)
	assert.ErrorIs(t, err, blockwise.ErrBodyTooLarge)
}

func TestBlock2StatusNotificationFlag(t *testing.T) {
	key := blockwise.NewTransferKey("peer", []byte{0x04}, []string{"observed"}, nil)
	status := blockwise.NewBlock2Status(key, 4096)

	assert.False(t, status.IsNotification())
	status.MarkNotification()
	assert.True(t, status.IsNotification())
}

func TestBlock2StatusSetBodyStoresETag(t *testing.T) {
	key := blockwise.NewTransferKey("peer", []byte{0x05}, []string{"res"}, nil)
	status := blockwise.NewBlock2Status(key, 4096)

	status.SetBody([]byte("hello world"), nil, `"abc123"`)
	assert.Equal(t, `"abc123"`, status.ETag())
	assert.Equal(t, []byte("hello world"), status.Body())
	assert.Equal(t, uint32(0), status.CurrentNum())
}
