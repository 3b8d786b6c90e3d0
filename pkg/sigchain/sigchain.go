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

// Package sigchain publishes poll timing into an external sampling
// profiler's event stream. The profiler already delivers a periodic
// sampling signal; this package chains into that delivery: it annotates the
// sample the profiler is about to record with the elapsed time of the
// current poll, then forwards the sample to whatever handler was installed
// before it. It never replaces the profiler's handler, it augments it.
//
// Everything on the sample path runs in signal context: no allocation, no
// locks, no blocking, and the forward to the previous handler is the final,
// unconditional action even under reentrant delivery.
package sigchain

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/slowpoll/slowpoll/pkg/polltimer"
)

// Sample is the profiler's view of one sampling-signal delivery, as handed
// to its handler on the interrupted thread. StackID is opaque here: the
// profiler captures and resolves stacks itself. Annotation is the per-sample
// word the profiler embeds next to the stack; this package fills it with the
// elapsed nanoseconds of the in-flight poll, or leaves it untouched.
type Sample struct {
	TID        int
	Time       int64
	StackID    uint64
	Annotation uint64
}

// Handler handles one sample in signal context.
type Handler func(*Sample)

// ErrInstalled is returned by Install when a chain is already installed.
var ErrInstalled = errors.New("sigchain: already installed")

// Attach builds the chained handler: read the sampled thread's poll timer,
// annotate if inside a poll, then invoke next exactly once. next is the
// handler that was installed for the sampling signal before this layer;
// it must not be nil. Attach itself may allocate (it runs at setup time);
// the returned handler must not and does not.
func Attach(reg *polltimer.Registry, next Handler) Handler {
	return func(s *Sample) {
		if d, ok := reg.Elapsed(s.TID, s.Time); ok {
			s.Annotation = uint64(d)
		}
		// Last and unconditional: the profiler's own sampling logic runs
		// exactly as if this layer were absent.
		next(s)
	}
}

// Helper returns the per-sample annotation callback for profilers that pull
// the annotation word themselves (asprof_set_helper style). The profiler
// calls it on the sampled thread during the sampling signal; it returns the
// elapsed nanoseconds of the current poll, or 0 when the thread is not
// inside one.
func Helper(reg *polltimer.Registry) func() uint64 {
	return func() uint64 {
		d, ok := reg.Elapsed(unix.Gettid(), polltimer.Now())
		if !ok {
			return 0
		}
		return uint64(d)
	}
}

// installed holds the previously installed handler, captured once by
// Install and handed back by Restore.
var installed atomic.Pointer[Handler]

// Install captures prev as the handler that was responsible for the
// sampling signal until now and returns the chained replacement to hand to
// the profiler. At most one chain may be installed per process; a second
// Install fails rather than silently stacking.
func Install(reg *polltimer.Registry, prev Handler) (Handler, error) {
	if !installed.CompareAndSwap(nil, &prev) {
		return nil, ErrInstalled
	}
	return Attach(reg, prev), nil
}

// Restore tears the chain down, returning the handler captured at Install
// time so the caller can reinstate it with the profiler. Returns nil if
// nothing is installed.
func Restore() Handler {
	p := installed.Swap(nil)
	if p == nil {
		return nil
	}
	return *p
}
