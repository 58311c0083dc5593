// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise

import "time"

// Config holds the five configuration keys spec §6 enumerates, populated via
// caarlos0/env/v7 struct tags the same way the teacher's
// internal/server.Config is (see SPEC_FULL.md EXP-1).
type Config struct {
	// BERTStepSize is TCP_NUMBER_OF_BULK_BLOCKS: values > 1 enable BERT on
	// outbound transfers.
	BERTStepSize int `env:"TCP_NUMBER_OF_BULK_BLOCKS" envDefault:"1"`

	// PreferredBlockSize is the initial outbound SZX, expressed in bytes
	// (one of 16,32,64,128,256,512,1024).
	PreferredBlockSize int `env:"PREFERRED_BLOCK_SIZE" envDefault:"1024"`

	// MaxMessageSize is the threshold at which a body triggers blockwise.
	MaxMessageSize int `env:"MAX_MESSAGE_SIZE" envDefault:"1024"`

	// MaxResourceBodySize is the reassembly cap.
	MaxResourceBodySize int `env:"MAX_RESOURCE_BODY_SIZE" envDefault:"8192"`

	// StatusLifetime is BLOCKWISE_STATUS_LIFETIME, the GC interval.
	StatusLifetime time.Duration `env:"BLOCKWISE_STATUS_LIFETIME" envDefault:"30s"`
}

// BERTEnabled reports whether outbound BERT bulking is active
// (spec §4.4: "bert_enabled (bert_step_size > 1)").
func (c Config) BERTEnabled() bool {
	return c.BERTStepSize > 1
}

// PreferredSZX maps the configured preferred block size in bytes to its
// size exponent (16 << 0 == SZX 0, 1024 == SZX 6). Returns SZX 6 if the
// configured size isn't a clean power-of-two multiple of 16 in range.
func (c Config) PreferredSZX() uint8 {
	size := c.PreferredBlockSize
	for szx := uint8(0); szx <= 6; szx++ {
		if 1<<(uint(szx)+4) == size {
			return szx
		}
	}
	return 6
}

// RequiresBlockwise reports whether a body of the given length must be sent
// blockwise rather than as a single message (spec §4.4).
func (c Config) RequiresBlockwise(bodyLen int) bool {
	return bodyLen > c.MaxMessageSize
}
