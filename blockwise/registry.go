// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// NotifyFunc is invoked when a transfer is cancelled or times out, so
// observers (e.g. message observers attached by the upper layer) can be told
// the transfer is gone (spec §4.8, §5 Cancellation).
type NotifyFunc func(key TransferKey, cause error)

// Registry is the concurrent TransferKey -> status mapping of spec §2.4 and
// §5: "insertion, lookup, and removal are atomic... bounded lifetime and a
// cleanup timer". It is backed by github.com/patrickmn/go-cache, whose
// built-in per-entry expiration and eviction callback does the work spec
// §4.8 describes as "a background scheduler" and "one shared priority queue
// keyed by deadline" without this repo hand-rolling either.
type Registry struct {
	block1 *gocache.Cache
	block2 *gocache.Cache

	lifetime time.Duration
	notify   NotifyFunc

	mu sync.Mutex // serialises the check-then-act preemption sequence per family
}

// NewRegistry creates a Registry whose entries expire lifetime after their
// last touch. notify is called at most once per status: with
// ErrTransferTimeout when the cleanup timer expires it (on go-cache's janitor
// goroutine), or with ErrPeerAbort when StartBlock1/StartBlock2 preempts it
// (on the caller's goroutine). DeleteBlock1/DeleteBlock2 never call it.
// go-cache's OnEvicted callback fires for both timer expiry and an explicit
// Delete, so Block1Status/Block2Status.markNotified decides which path
// reports the removal (spec §3: "a status is destroyed exactly once").
func NewRegistry(lifetime time.Duration, notify NotifyFunc) *Registry {
	r := &Registry{
		block1:   gocache.New(lifetime, lifetime/2),
		block2:   gocache.New(lifetime, lifetime/2),
		lifetime: lifetime,
		notify:   notify,
	}
	r.block1.OnEvicted(func(k string, v interface{}) {
		s := v.(*Block1Status)
		if s.markNotified() {
			r.onEvict(s.key, ErrTransferTimeout)
		}
	})
	r.block2.OnEvicted(func(k string, v interface{}) {
		s := v.(*Block2Status)
		if s.markNotified() {
			r.onEvict(s.key, ErrTransferTimeout)
		}
	})
	return r
}

func (r *Registry) onEvict(key TransferKey, cause error) {
	if r.notify == nil {
		return
	}
	// A panicking observer must not take down go-cache's janitor goroutine.
	defer func() { recover() }() //nolint:errcheck // notify must never panic the janitor
	r.notify(key, cause)
}

// GetBlock1 looks up the active Block1 transfer for key, if any.
func (r *Registry) GetBlock1(key TransferKey) (*Block1Status, bool) {
	v, ok := r.block1.Get(key.String())
	if !ok {
		return nil, false
	}
	return v.(*Block1Status), true
}

// GetBlock2 looks up the active Block2 transfer for key, if any.
func (r *Registry) GetBlock2(key TransferKey) (*Block2Status, bool) {
	v, ok := r.block2.Get(key.String())
	if !ok {
		return nil, false
	}
	return v.(*Block2Status), true
}

// StartBlock1 installs a fresh Block1Status for key, aborting and notifying
// any previous one first (RFC 7959 §2.4: "at most one active Block1...
// transfer"). Returns the new status.
func (r *Registry) StartBlock1(key TransferKey, bufferSize int) *Block1Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.block1.Get(key.String()); ok {
		ps := prev.(*Block1Status)
		// Claim the notification before Delete, whose OnEvicted callback
		// would otherwise report the preemption as a timeout.
		aborted := ps.markNotified()
		r.block1.Delete(key.String())
		if aborted {
			r.onEvict(ps.key, ErrPeerAbort)
		}
	}
	s := NewBlock1Status(key, bufferSize)
	r.block1.Set(key.String(), s, r.lifetime)
	return s
}

// StartBlock2 installs a fresh Block2Status for key, aborting and notifying
// any previous one first (RFC 7959 §2.4, and spec §8 scenario 5: observe
// preemption).
func (r *Registry) StartBlock2(key TransferKey, bufferSize int) *Block2Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.block2.Get(key.String()); ok {
		ps := prev.(*Block2Status)
		aborted := ps.markNotified()
		r.block2.Delete(key.String())
		if aborted {
			r.onEvict(ps.key, ErrPeerAbort)
		}
	}
	s := NewBlock2Status(key, bufferSize)
	r.block2.Set(key.String(), s, r.lifetime)
	return s
}

// TouchBlock1 resets the cleanup deadline for key's Block1 transfer, if any.
func (r *Registry) TouchBlock1(key TransferKey) {
	if s, ok := r.GetBlock1(key); ok {
		r.block1.Set(key.String(), s, r.lifetime)
	}
}

// TouchBlock2 resets the cleanup deadline for key's Block2 transfer, if any.
func (r *Registry) TouchBlock2(key TransferKey) {
	if s, ok := r.GetBlock2(key); ok {
		r.block2.Set(key.String(), s, r.lifetime)
	}
}

// DeleteBlock1 removes key's Block1 transfer without notifying observers
// (the caller -- completion or a fatal error response -- already knows the
// outcome; spec §3 invariant: "a status is destroyed exactly once"). Marking
// the status notified before deleting it makes go-cache's own OnEvicted
// firing for this Delete a no-op.
func (r *Registry) DeleteBlock1(key TransferKey) {
	if v, ok := r.block1.Get(key.String()); ok {
		v.(*Block1Status).markNotified()
	}
	r.block1.Delete(key.String())
}

// DeleteBlock2 removes key's Block2 transfer without notifying observers.
func (r *Registry) DeleteBlock2(key TransferKey) {
	if v, ok := r.block2.Get(key.String()); ok {
		v.(*Block2Status).markNotified()
	}
	r.block2.Delete(key.String())
}

// Block1Count returns the number of active Block1 transfers, for tests and
// metrics.
func (r *Registry) Block1Count() int {
	return r.block1.ItemCount()
}

// Block2Count returns the number of active Block2 transfers, for tests and
// metrics.
func (r *Registry) Block2Count() int {
	return r.block2.ItemCount()
}
