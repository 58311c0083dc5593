// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise

import (
	"sync"

	"go.uber.org/atomic"
)

// status holds the fields and locking shared by Block1Status and
// Block2Status (spec §3). It is never used directly; Block1Status and
// Block2Status embed it and add their direction-specific fields. This is
// composition, not a class hierarchy: both statuses share one concrete type
// and differ only in the handful of fields appended after it (etag,
// notification) per spec §9's instruction to avoid replicating inheritance.
type status struct {
	mu sync.Mutex

	key TransferKey

	body          []byte
	currentNum    atomic.Uint32
	szx           uint8
	contentFormat *uint16
	bufferSize    int
	complete      atomic.Bool

	// notified guards the registry's exactly-once removal notification
	// (spec §3: "a status is destroyed exactly once"). go-cache's OnEvicted
	// fires for both timer expiry and an explicit Delete, so whichever path
	// removes this status first wins the CompareAndSwap and the other is a
	// no-op; see Registry.onEvict and Registry.DeleteBlock1/DeleteBlock2.
	notified atomic.Bool
}

func newStatus(key TransferKey, bufferSize int) status {
	return status{
		key:        key,
		bufferSize: bufferSize,
	}
}

// markNotified reports whether this call is the one that should tell
// observers this status is gone -- true the first time it is called for a
// given status, false on every call after (whether the first caller was the
// registry's eviction callback or an explicit Delete).
func (s *status) markNotified() bool {
	return s.notified.CompareAndSwap(false, true)
}

// CurrentNum returns the next expected/sent block index.
func (s *status) CurrentNum() uint32 {
	return s.currentNum.Load()
}

// Complete reports whether the transfer has been marked done.
func (s *status) Complete() bool {
	return s.complete.Load()
}

// Key returns the TransferKey this status was created under.
func (s *status) Key() TransferKey {
	return s.key
}

// setCurrentNum forcibly sets current_num, used when the layer has already
// computed how many blocks/sub-blocks were consumed (e.g. after an outbound
// BERT pull). Callers must hold s.mu or otherwise know no concurrent mutator
// is running.
func (s *status) setCurrentNum(n uint32) {
	s.currentNum.Store(n)
}

// ContentFormat returns the content-format remembered from the first block,
// if any.
func (s *status) ContentFormat() *uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contentFormat
}

// Body returns a copy of the assembled/source body. Safe for concurrent use;
// callers must not rely on the returned slice reflecting later mutation.
func (s *status) Body() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.body))
	copy(out, s.body)
	return out
}

// Block1Status tracks an outgoing PUT/POST body or an incoming upload
// (spec §3).
type Block1Status struct {
	status
}

// NewBlock1Status creates a fresh Block1Status for key, with the given
// reassembly cap.
func NewBlock1Status(key TransferKey, bufferSize int) *Block1Status {
	return &Block1Status{status: newStatus(key, bufferSize)}
}

// SetBody installs the full request body to be fragmented and sent
// (outbound direction), replacing any assembly contents.
func (b *Block1Status) SetBody(body []byte, contentFormat *uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.body = body
	b.contentFormat = contentFormat
	b.currentNum.Store(0)
	b.complete.Store(false)
}

// reset discards partial state and restarts numbering at 0 (spec §4.2 step 3:
// peer restart, num==0 && current_num>0). No Size1 reconciliation is
// performed against any previously-seen hint -- the spec flags this as
// intentional, not an oversight (see SPEC_FULL.md EXP-7.2).
func (b *Block1Status) reset() {
	b.body = b.body[:0]
	b.currentNum.Store(0)
	b.contentFormat = nil
	b.complete.Store(false)
}

// appendBlock appends payload to the assembly buffer, enforcing bufferSize
// (spec §4.2 step 6). Caller must hold b.mu.
func (b *Block1Status) appendBlock(payload []byte) error {
	if len(b.body)+len(payload) > b.bufferSize {
		return ErrBodyTooLarge
	}
	b.body = append(b.body, payload...)
	return nil
}

// Block2Status tracks an outgoing response body or an incoming download
// (spec §3), plus an etag snapshot for freshness checks and a notification
// flag so observe updates can abandon a stale in-flight transfer.
type Block2Status struct {
	status

	etag         string
	notification bool
}

// NewBlock2Status creates a fresh Block2Status for key, with the given
// reassembly cap.
func NewBlock2Status(key TransferKey, bufferSize int) *Block2Status {
	return &Block2Status{status: newStatus(key, bufferSize)}
}

// SetBody installs the full response body to be served in blocks (outbound
// direction) and resets current_num to 0.
func (b *Block2Status) SetBody(body []byte, contentFormat *uint16, etag string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.body = body
	b.contentFormat = contentFormat
	b.etag = etag
	b.currentNum.Store(0)
	b.complete.Store(false)
}

// IsNotification reports whether this transfer originated from an observe
// notification (and should therefore be preempted by a newer notification
// rather than merged with it).
func (b *Block2Status) IsNotification() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notification
}

// MarkNotification flags this transfer as carrying an observe notification.
func (b *Block2Status) MarkNotification() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notification = true
}

// ETag returns the etag snapshot taken when the body was set.
func (b *Block2Status) ETag() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.etag
}
