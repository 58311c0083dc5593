// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise

// bertFragment concatenates up to stepSize 1024-byte sub-blocks of body
// starting at sub-block index startNum, returning the bulked payload, the
// resulting M flag (true iff more sub-blocks remain after the ones
// returned), and how many sub-blocks were actually consumed (<= stepSize,
// fewer at the tail of body). This is the shared "BERT send/receive path"
// spec §2 component 6 describes; Block1Status and Block2Status each call it
// under their own lock rather than duplicating the slicing arithmetic.
func bertFragment(body []byte, startNum uint32, stepSize int) (payload []byte, m bool, blocks int) {
	start := int(startNum) * bertSubBlockSize
	if start >= len(body) {
		if start == len(body) {
			return []byte{}, false, 0
		}
		return nil, false, 0
	}

	for i := 0; i < stepSize; i++ {
		blockStart := start + i*bertSubBlockSize
		if blockStart >= len(body) {
			break
		}
		blockEnd := blockStart + bertSubBlockSize
		if blockEnd >= len(body) {
			payload = append(payload, body[blockStart:len(body)]...)
			blocks++
			return payload, false, blocks
		}
		payload = append(payload, body[blockStart:blockEnd]...)
		blocks++
	}
	return payload, start+len(payload) < len(body), blocks
}

// PullBERTBlocks pulls up to stepSize BERT sub-blocks from the response body
// starting at startNum, for serving an inbound random-access or next-block
// request (spec §4.3). It does not mutate current_num; callers advance it
// themselves once the blocks are actually sent.
func (b *Block2Status) PullBERTBlocks(startNum uint32, stepSize int) (payload []byte, m bool, blocks int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := int(startNum) * bertSubBlockSize
	if start > len(b.body) {
		return nil, false, 0, ErrUnknownBlock
	}
	payload, m, blocks = bertFragment(b.body, startNum, stepSize)
	return payload, m, blocks, nil
}

// PullBERTBlocks pulls up to stepSize BERT sub-blocks from the outbound
// request body starting at startNum, for fragmenting an outbound upload
// (spec §4.4, §4.6).
func (b *Block1Status) PullBERTBlocks(startNum uint32, stepSize int) (payload []byte, m bool, blocks int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := int(startNum) * bertSubBlockSize
	if start > len(b.body) {
		return nil, false, 0, ErrUnknownBlock
	}
	payload, m, blocks = bertFragment(b.body, startNum, stepSize)
	return payload, m, blocks, nil
}

// AppendBlock appends one inbound block's payload to the assembly buffer and
// advances current_num (spec §4.2 steps 6-7). For szx==7 (BERT) the unit is
// 1024 bytes and current_num advances by payload_len/1024 (every
// intermediate sub-block must be exactly 1024 bytes; only the terminal one,
// m==false, may be shorter). For szx<=6 the unit is SizeOf(szx) and
// current_num advances by exactly 1 (plain RFC 7959).
func (b *Block1Status) AppendBlock(payload []byte, m bool, szx uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if szx == SZXBERT {
		if m && len(payload)%bertSubBlockSize != 0 {
			return ErrMalformedBlockOption
		}
		if err := b.appendBlock(payload); err != nil {
			return err
		}
		subBlocks := len(payload) / bertSubBlockSize
		if len(payload)%bertSubBlockSize != 0 {
			subBlocks++ // short terminal sub-block still advances the counter by one
		}
		b.currentNum.Add(uint32(subBlocks))
		return nil
	}

	if err := b.appendBlock(payload); err != nil {
		return err
	}
	b.currentNum.Add(1)
	return nil
}
