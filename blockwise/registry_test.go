// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise_test

import (
	"testing"
	"time"

	"github.com/absmach/coap-blockwise/blockwise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryStartBlock1PreemptsPriorTransfer(t *testing.T) {
	var notified []blockwise.TransferKey
	var causes []error
	reg := blockwise.NewRegistry(time.Minute, func(key blockwise.TransferKey, cause error) {
		notified = append(notified, key)
		causes = append(causes, cause)
	})

	key := blockwise.NewTransferKey("peer", []byte{0x01}, []string{"upload"}, nil)
	first := reg.StartBlock1(key, 4096)
	require.NotNil(t, first)
	require.Equal(t, 1, reg.Block1Count())

	second := reg.StartBlock1(key, 4096)
	require.NotNil(t, second)
	assert.Equal(t, 1, reg.Block1Count())
	assert.NotSame(t, first, second)

	require.Len(t, notified, 1)
	assert.Equal(t, key, notified[0])
	assert.ErrorIs(t, causes[0], blockwise.ErrPeerAbort)
}

func TestRegistryGetBlock2Miss(t *testing.T) {
	reg := blockwise.NewRegistry(time.Minute, nil)
	key := blockwise.NewTransferKey("peer", []byte{0x02}, []string{"res"}, nil)

	_, ok := reg.GetBlock2(key)
	assert.False(t, ok)
}

func TestRegistryDeleteDoesNotNotify(t *testing.T) {
	called := false
	reg := blockwise.NewRegistry(time.Minute, func(blockwise.TransferKey, error) {
		called = true
	})

	key := blockwise.NewTransferKey("peer", []byte{0x03}, []string{"res"}, nil)
	reg.StartBlock2(key, 4096)
	reg.DeleteBlock2(key)

	_, ok := reg.GetBlock2(key)
	assert.False(t, ok)
	assert.False(t, called, "explicit delete must not trigger notify")
}

func TestRegistryTouchBlock1ExtendsLifetime(t *testing.T) {
	reg := blockwise.NewRegistry(100*time.Millisecond, nil)
	key := blockwise.NewTransferKey("peer", []byte{0x04}, []string{"upload"}, nil)
	reg.StartBlock1(key, 4096)

	// Past the original deadline, but within one lifetime of the touch.
	time.Sleep(60 * time.Millisecond)
	reg.TouchBlock1(key)
	time.Sleep(60 * time.Millisecond)
	_, ok := reg.GetBlock1(key)
	assert.True(t, ok)
}
