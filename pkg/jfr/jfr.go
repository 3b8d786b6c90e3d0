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

// Package jfr reads the sampling profiler's chunked recording format: a
// fixed header followed by length-delimited chunks tagged as metadata,
// constant pool or event stream. Constant pools are cumulative across
// chunks, and events may reference pool entries that only arrive in a later
// chunk, so resolution is deferred until the whole file has been read.
//
// The byte layout is owned by the profiler; this package only ever reads
// it. All integers are little-endian.
package jfr

import (
	"errors"
	"fmt"
	"time"
)

// ErrCorruptTrace reports a recording whose declared structure disagrees
// with its actual bytes. Corruption fails the whole file: a partial report
// could hide exactly the long poll being looked for.
var ErrCorruptTrace = errors.New("jfr: corrupt trace")

func corruptf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCorruptTrace, fmt.Sprintf(format, args...))
}

// Chunk tags.
const (
	TagMetadata     = 0
	TagConstantPool = 1
	TagEvents       = 2
)

// Event kinds within an event-stream chunk.
const (
	// EventPoll is the custom poll-duration event:
	// u64 timestamp ns, u32 thread id, u64 duration ns, u64 stack id.
	EventPoll = 0
)

// Magic and Version identify the container header: 4 magic bytes and a
// little-endian u32 version.
var Magic = [4]byte{'F', 'L', 'R', 0}

const Version = 1

// maxChunkSize rejects absurd declared lengths before attempting to buffer
// a chunk. Chunk sizes are bounded by the profiler; files are not.
const maxChunkSize = 64 << 20

// Frame is one call frame from the constant pool. If the profiler could not
// symbolize the frame, Resolved is false and the id (the raw address) is
// shown instead of a name.
type Frame struct {
	ID       uint64
	Symbol   string
	Resolved bool
}

// Name returns the symbol, or the raw address placeholder for frames the
// profiler could not resolve.
func (f Frame) Name() string {
	if f.Resolved {
		return f.Symbol
	}
	return fmt.Sprintf("0x%x", f.ID)
}

// PollEvent is one raw poll-duration record: the sampled thread, when the
// poll started relative to the recording, how long it had been running, and
// the profiler's stack id for the sample. StackID resolution happens later,
// against the accumulated constant pool.
type PollEvent struct {
	Timestamp time.Duration
	TID       uint32
	Duration  time.Duration
	StackID   uint64
}

// Recording is the decoded in-memory index of one trace file: metadata,
// the accumulated constant pool, and every poll event in file order.
type Recording struct {
	Meta  map[string]string
	Pool  *ConstantPool
	Polls []PollEvent
}
