// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise_test

import (
	"testing"

	"github.com/absmach/coap-blockwise/blockwise"
	"github.com/stretchr/testify/assert"
)

func TestNewTransferKeyUniqueness(t *testing.T) {
	base := blockwise.NewTransferKey("peer-a", []byte{0x01, 0x02}, []string{"large"}, nil)

	cases := []struct {
		desc string
		key  blockwise.TransferKey
	}{
		{desc: "different peer", key: blockwise.NewTransferKey("peer-b", []byte{0x01, 0x02}, []string{"large"}, nil)},
		{desc: "different token", key: blockwise.NewTransferKey("peer-a", []byte{0x03}, []string{"large"}, nil)},
		{desc: "different path", key: blockwise.NewTransferKey("peer-a", []byte{0x01, 0x02}, []string{"small"}, nil)},
		{desc: "different query", key: blockwise.NewTransferKey("peer-a", []byte{0x01, 0x02}, []string{"large"}, []string{"v=2"})},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			assert.NotEqual(t, base, c.key)
			assert.NotEqual(t, base.String(), c.key.String())
		})
	}
}

func TestNewTransferKeyIdentity(t *testing.T) {
	a := blockwise.NewTransferKey("peer-a", []byte{0x01, 0x02}, []string{"large", "file"}, []string{"v=1"})
	b := blockwise.NewTransferKey("peer-a", []byte{0x01, 0x02}, []string{"large", "file"}, []string{"v=1"})
	assert.Equal(t, a, b)
	assert.Equal(t, a.String(), b.String())
}
