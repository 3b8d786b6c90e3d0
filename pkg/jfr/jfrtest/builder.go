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

// Package jfrtest builds syntactically valid (and deliberately invalid)
// recordings in the profiler's container format. The decoder under test
// never writes this format, so its tests and the demo profiler stand-in
// need a writer of their own.
package jfrtest

import (
	"bytes"
	"encoding/binary"
	"sort"
	"time"

	"github.com/slowpoll/slowpoll/pkg/jfr"
)

// Builder accumulates a recording chunk by chunk, in the exact order the
// chunk methods are called. That order is part of what reader tests
// exercise: pools may arrive after the events that reference them.
type Builder struct {
	buf bytes.Buffer
}

// NewBuilder starts a recording with a valid header.
func NewBuilder() *Builder {
	b := &Builder{}
	b.buf.Write(jfr.Magic[:])
	p32(&b.buf, jfr.Version)
	return b
}

// MetaChunk appends a metadata chunk. Pairs are written in sorted key order
// so traces are reproducible.
func (b *Builder) MetaChunk(pairs map[string]string) *Builder {
	var payload bytes.Buffer
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	p32(&payload, uint32(len(keys)))
	for _, k := range keys {
		pstr(&payload, k)
		pstr(&payload, pairs[k])
	}
	return b.chunk(jfr.TagMetadata, payload.Bytes())
}

// PoolChunk appends one constant-pool chunk populated by fn.
func (b *Builder) PoolChunk(fn func(c *PoolChunk)) *Builder {
	c := &PoolChunk{}
	fn(c)
	var payload bytes.Buffer
	p32(&payload, uint32(len(c.frames)))
	for _, f := range c.frames {
		p64(&payload, f.ID)
		if f.Resolved {
			payload.WriteByte(1)
		} else {
			payload.WriteByte(0)
		}
		pstr(&payload, f.Symbol)
	}
	p32(&payload, uint32(len(c.stacks)))
	for _, s := range c.stacks {
		p64(&payload, s.id)
		p32(&payload, uint32(len(s.frameIDs)))
		for _, fid := range s.frameIDs {
			p64(&payload, fid)
		}
	}
	return b.chunk(jfr.TagConstantPool, payload.Bytes())
}

// EventChunk appends one event-stream chunk populated by fn.
func (b *Builder) EventChunk(fn func(c *EventChunk)) *Builder {
	c := &EventChunk{}
	fn(c)
	return b.chunk(jfr.TagEvents, c.buf.Bytes())
}

// RawChunk appends an arbitrary chunk, e.g. an unknown tag.
func (b *Builder) RawChunk(tag byte, payload []byte) *Builder {
	return b.chunk(tag, payload)
}

// TruncatedChunk appends a chunk whose declared length exceeds the bytes
// that follow, for corruption tests.
func (b *Builder) TruncatedChunk(tag byte, declared uint32, payload []byte) *Builder {
	b.buf.WriteByte(tag)
	p32(&b.buf, declared)
	b.buf.Write(payload)
	return b
}

// Bytes returns the encoded recording.
func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}

func (b *Builder) chunk(tag byte, payload []byte) *Builder {
	b.buf.WriteByte(tag)
	p32(&b.buf, uint32(len(payload)))
	b.buf.Write(payload)
	return b
}

// PoolChunk collects constant-pool entries for one chunk.
type PoolChunk struct {
	frames []jfr.Frame
	stacks []stackEntry
}

type stackEntry struct {
	id       uint64
	frameIDs []uint64
}

// Frame adds a symbolized frame entry.
func (c *PoolChunk) Frame(id uint64, symbol string) *PoolChunk {
	c.frames = append(c.frames, jfr.Frame{ID: id, Symbol: symbol, Resolved: true})
	return c
}

// UnresolvedFrame adds a frame the profiler could not symbolize.
func (c *PoolChunk) UnresolvedFrame(id uint64) *PoolChunk {
	c.frames = append(c.frames, jfr.Frame{ID: id})
	return c
}

// Stack adds a stack entry, frame ids leaf first.
func (c *PoolChunk) Stack(id uint64, frameIDs ...uint64) *PoolChunk {
	c.stacks = append(c.stacks, stackEntry{id: id, frameIDs: frameIDs})
	return c
}

// EventChunk collects event records for one chunk.
type EventChunk struct {
	buf bytes.Buffer
}

// Poll appends a poll-duration event.
func (c *EventChunk) Poll(ts time.Duration, tid uint32, dur time.Duration, stackID uint64) *EventChunk {
	const size = 8 + 8 + 4 + 8 + 8
	p32(&c.buf, size)
	p32(&c.buf, jfr.EventPoll)
	p64(&c.buf, uint64(ts))
	p32(&c.buf, tid)
	p64(&c.buf, uint64(dur))
	p64(&c.buf, stackID)
	return c
}

// Raw appends an event of an arbitrary kind with the given body, as newer
// or foreign profilers would.
func (c *EventChunk) Raw(kind uint32, body []byte) *EventChunk {
	p32(&c.buf, uint32(8+len(body)))
	p32(&c.buf, kind)
	c.buf.Write(body)
	return c
}

func p32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func p64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func pstr(buf *bytes.Buffer, s string) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(len(s)))
	buf.Write(b[:])
	buf.WriteString(s)
}
