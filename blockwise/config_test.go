// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise_test

import (
	"testing"

	"github.com/absmach/coap-blockwise/blockwise"
	"github.com/stretchr/testify/assert"
)

func TestConfigBERTEnabled(t *testing.T) {
	cases := []struct {
		desc     string
		stepSize int
		want     bool
	}{
		{desc: "disabled at 1", stepSize: 1, want: false},
		{desc: "disabled at 0", stepSize: 0, want: false},
		{desc: "enabled above 1", stepSize: 4, want: true},
	}
	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			cfg := blockwise.Config{BERTStepSize: c.stepSize}
			assert.Equal(t, c.want, cfg.BERTEnabled())
		})
	}
}

func TestConfigPreferredSZX(t *testing.T) {
	cases := []struct {
		desc string
		size int
		want uint8
	}{
		{desc: "16 bytes", size: 16, want: 0},
		{desc: "1024 bytes", size: 1024, want: 6},
		{desc: "unaligned falls back to 6", size: 999, want: 6},
	}
	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			cfg := blockwise.Config{PreferredBlockSize: c.size}
			assert.Equal(t, c.want, cfg.PreferredSZX())
		})
	}
}

func TestConfigRequiresBlockwise(t *testing.T) {
	cfg := blockwise.Config{MaxMessageSize: 1024}
	assert.False(t, cfg.RequiresBlockwise(1024))
	assert.True(t, cfg.RequiresBlockwise(1025))
}
