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

package jfr_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowpoll/slowpoll/pkg/jfr"
	"github.com/slowpoll/slowpoll/pkg/jfr/jfrtest"
)

func TestReadRecording(t *testing.T) {
	raw := jfrtest.NewBuilder().
		MetaChunk(map[string]string{"profiler": "asprof", "clock": "monotonic"}).
		PoolChunk(func(c *jfrtest.PoolChunk) {
			c.Frame(1, "do_work")
			c.Frame(2, "runtime.schedule")
			c.Stack(10, 1, 2)
		}).
		EventChunk(func(c *jfrtest.EventChunk) {
			c.Poll(100*time.Millisecond, 7, 6*time.Millisecond, 10)
			c.Poll(250*time.Millisecond, 9, 2*time.Millisecond, 10)
		}).
		Bytes()

	rec, err := jfr.Read(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "asprof", rec.Meta["profiler"])
	assert.Equal(t, "monotonic", rec.Meta["clock"])

	require.Len(t, rec.Polls, 2)
	assert.Equal(t, jfr.PollEvent{
		Timestamp: 100 * time.Millisecond,
		TID:       7,
		Duration:  6 * time.Millisecond,
		StackID:   10,
	}, rec.Polls[0])
	assert.Equal(t, uint32(9), rec.Polls[1].TID)

	frames, ok := rec.Pool.Stack(10)
	require.True(t, ok)
	require.Len(t, frames, 2)
	assert.Equal(t, "do_work", frames[0].Name(), "leaf first")
	assert.Equal(t, "runtime.schedule", frames[1].Name())
}

// Constant pools may arrive after the events that reference them, and a
// later pool chunk extends the pool rather than replacing it.
func TestPoolAccumulationAcrossChunks(t *testing.T) {
	raw := jfrtest.NewBuilder().
		PoolChunk(func(c *jfrtest.PoolChunk) {
			c.Frame(1, "early_frame")
		}).
		EventChunk(func(c *jfrtest.EventChunk) {
			c.Poll(time.Second, 3, 9*time.Millisecond, 42)
		}).
		PoolChunk(func(c *jfrtest.PoolChunk) {
			c.Frame(2, "late_frame")
			c.Stack(42, 2, 1)
		}).
		Bytes()

	rec, err := jfr.Read(bytes.NewReader(raw))
	require.NoError(t, err)

	require.Len(t, rec.Polls, 1)
	frames, ok := rec.Pool.Stack(rec.Polls[0].StackID)
	require.True(t, ok, "stack defined after its referencing event still resolves")
	require.Len(t, frames, 2)
	assert.Equal(t, "late_frame", frames[0].Name())
	assert.Equal(t, "early_frame", frames[1].Name(), "earlier chunk survives the merge")
}

func TestTruncatedChunkIsCorrupt(t *testing.T) {
	raw := jfrtest.NewBuilder().
		EventChunk(func(c *jfrtest.EventChunk) {
			c.Poll(time.Second, 1, 10*time.Millisecond, 1)
		}).
		TruncatedChunk(jfr.TagEvents, 4096, []byte{1, 2, 3}).
		Bytes()

	rec, err := jfr.Read(bytes.NewReader(raw))
	assert.ErrorIs(t, err, jfr.ErrCorruptTrace)
	assert.Nil(t, rec, "no partial report from a corrupt file")
}

func TestBadHeader(t *testing.T) {
	_, err := jfr.Read(bytes.NewReader([]byte("not a recording at all")))
	assert.ErrorIs(t, err, jfr.ErrCorruptTrace)

	_, err = jfr.Read(bytes.NewReader([]byte{'F', 'L', 'R', 0}))
	assert.ErrorIs(t, err, jfr.ErrCorruptTrace, "header shorter than declared")

	bad := jfrtest.NewBuilder().Bytes()
	bad[4] = 99 // version
	_, err = jfr.Read(bytes.NewReader(bad))
	assert.ErrorIs(t, err, jfr.ErrCorruptTrace)
}

func TestUnknownChunksAndEventsAreSkipped(t *testing.T) {
	raw := jfrtest.NewBuilder().
		RawChunk(9, []byte("future chunk kind")).
		EventChunk(func(c *jfrtest.EventChunk) {
			c.Raw(0x1234, []byte{0xde, 0xad})
			c.Poll(time.Second, 5, 7*time.Millisecond, 1)
			c.Raw(0x5678, nil)
		}).
		Bytes()

	rec, err := jfr.Read(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, rec.Polls, 1)
	assert.Equal(t, uint32(5), rec.Polls[0].TID)
}

func TestEventSizeTooSmall(t *testing.T) {
	raw := jfrtest.NewBuilder().
		RawChunk(jfr.TagEvents, []byte{4, 0, 0, 0}). // size=4 < header size
		Bytes()

	_, err := jfr.Read(bytes.NewReader(raw))
	assert.ErrorIs(t, err, jfr.ErrCorruptTrace)
}

func TestEmptyRecording(t *testing.T) {
	rec, err := jfr.Read(bytes.NewReader(jfrtest.NewBuilder().Bytes()))
	require.NoError(t, err)
	assert.Empty(t, rec.Polls)
}
