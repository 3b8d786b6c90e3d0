/*
Copyright 2025 The slowpoll Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package polltimer tracks, per executor thread, whether the thread is
// currently inside an instrumented poll and since when. The state is written
// only by the owning thread and read by a sampling handler that interrupts
// that same thread, so the hot paths use plain atomics: no locks, no
// allocation, nothing a signal handler can't do.
package polltimer

import (
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// numSlots bounds how many executor threads can be registered at once.
// Power of two so the probe mask is a single AND.
const numSlots = 256

const (
	tidFree      = 0
	tidTombstone = -1
)

// ErrRegistryFull is returned when all timer slots are claimed.
var ErrRegistryFull = errors.New("polltimer: registry full")

var base = time.Now()

// Now returns nanoseconds on the process-local monotonic clock. Timestamps
// from Now are only comparable within this process.
func Now() int64 {
	return int64(time.Since(base))
}

// slot is one thread's timer state. The write discipline is the whole
// contract: Enter stores start before setting inPoll, Exit clears inPoll
// before start is ever overwritten, so any reader that observes
// inPoll == true observes a committed start.
type slot struct {
	tid    atomic.Int64
	start  atomic.Int64
	inPoll atomic.Bool
}

// Registry maps OS thread ids to timer slots. Lookup is a lock-free linear
// probe over a fixed array; it never allocates, so it is safe from a signal
// handler. Registration is ordinary (non-signal) code and may allocate.
type Registry struct {
	slots [numSlots]slot
}

// NewRegistry returns an empty timer registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Timer is the per-thread enter/exit handle. It is owned by the thread that
// registered it; only that thread may call Enter, Exit or Unregister.
type Timer struct {
	s *slot
}

// Register claims a slot for the calling OS thread and returns its Timer.
// The caller must have pinned itself with runtime.LockOSThread: the slot is
// keyed by the thread id, and a migrating goroutine would leave its timer
// behind on the wrong thread.
func (r *Registry) Register() (*Timer, error) {
	tid := int64(unix.Gettid())

	for i, idx := 0, probe(tid); i < numSlots; i, idx = i+1, (idx+1)&(numSlots-1) {
		s := &r.slots[idx]
		old := s.tid.Load()
		if old == tid {
			// Re-registration after an Unregister/Register cycle on the
			// same thread reuses the slot.
			return &Timer{s: s}, nil
		}
		if old != tidFree && old != tidTombstone {
			continue
		}
		if s.tid.CompareAndSwap(old, tid) {
			s.inPoll.Store(false)
			klog.V(1).Infof("registered poll timer for thread %d (slot %d)", tid, idx)
			return &Timer{s: s}, nil
		}
		// Lost the race for this slot; keep probing.
	}

	return nil, ErrRegistryFull
}

// Enter marks the calling thread as inside a poll, starting now.
func (t *Timer) Enter() {
	t.s.start.Store(Now())
	t.s.inPoll.Store(true)
}

// Exit marks the calling thread as no longer inside a poll.
func (t *Timer) Exit() {
	t.s.inPoll.Store(false)
}

// Unregister releases the slot. The thread must not be inside a poll.
func (t *Timer) Unregister() {
	t.s.inPoll.Store(false)
	t.s.tid.Store(tidTombstone)
}

// Elapsed reports how long thread tid has been inside its current poll as of
// now, or false if the thread is not in a poll or is not registered.
// Elapsed is read-only, lock-free and allocation-free; it is the read half
// of the signal-time contract.
func (r *Registry) Elapsed(tid int, now int64) (time.Duration, bool) {
	s := r.lookup(int64(tid))
	if s == nil {
		return 0, false
	}
	if !s.inPoll.Load() {
		return 0, false
	}
	start := s.start.Load()
	if now < start {
		// A sample raced with Enter on another clock read; treat as not yet
		// measurable rather than reporting a negative duration.
		return 0, false
	}
	return time.Duration(now - start), true
}

func (r *Registry) lookup(tid int64) *slot {
	for i, idx := 0, probe(tid); i < numSlots; i, idx = i+1, (idx+1)&(numSlots-1) {
		s := &r.slots[idx]
		switch s.tid.Load() {
		case tid:
			return s
		case tidFree:
			return nil
		}
		// Tombstones and other threads: keep probing.
	}
	return nil
}

func probe(tid int64) int {
	// Fibonacci hashing; thread ids are often sequential.
	return int((uint64(tid) * 0x9e3779b97f4a7c15 >> 32) & (numSlots - 1))
}
