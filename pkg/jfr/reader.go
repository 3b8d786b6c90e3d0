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

package jfr

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"k8s.io/klog/v2"
)

// Read decodes a recording, streaming it chunk by chunk. It returns the
// full event index and constant pool; any structural inconsistency fails
// the file with an error wrapping ErrCorruptTrace.
func Read(r io.Reader) (*Recording, error) {
	br := bufio.NewReader(r)

	var hdr [8]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, corruptf("short header: %v", err)
	}
	if !bytes.Equal(hdr[:4], Magic[:]) {
		return nil, corruptf("bad magic %q", hdr[:4])
	}
	if v := binary.LittleEndian.Uint32(hdr[4:]); v != Version {
		return nil, corruptf("unsupported container version %d", v)
	}

	rec := &Recording{
		Meta: map[string]string{},
		Pool: NewConstantPool(),
	}

	for {
		tag, err := br.ReadByte()
		if err == io.EOF {
			return rec, nil
		}
		if err != nil {
			return nil, corruptf("read chunk tag: %v", err)
		}

		var lenb [4]byte
		if _, err := io.ReadFull(br, lenb[:]); err != nil {
			return nil, corruptf("read chunk length: %v", err)
		}
		length := binary.LittleEndian.Uint32(lenb[:])
		if length > maxChunkSize {
			return nil, corruptf("chunk tag %d declares %d bytes, limit is %d", tag, length, maxChunkSize)
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, corruptf("chunk tag %d declares %d bytes: %v", tag, length, err)
		}

		switch tag {
		case TagMetadata:
			err = rec.readMeta(payload)
		case TagConstantPool:
			err = rec.Pool.merge(payload)
		case TagEvents:
			err = rec.readEvents(payload)
		default:
			// Unknown chunk kinds are self-delimited; skip them.
			klog.V(1).Infof("skipping unknown chunk tag %d (%d bytes)", tag, length)
		}
		if err != nil {
			return nil, err
		}
	}
}

func (rec *Recording) readMeta(payload []byte) error {
	c := cursor{b: payload, what: "metadata chunk"}
	n := c.u32()
	for i := uint32(0); i < n && c.err == nil; i++ {
		key := c.str(int(c.u16()))
		val := c.str(int(c.u16()))
		if c.err == nil {
			rec.Meta[key] = val
		}
	}
	return c.err
}

func (rec *Recording) readEvents(payload []byte) error {
	c := cursor{b: payload, what: "event chunk"}
	for c.err == nil && c.remaining() > 0 {
		size := c.u32()
		if c.err != nil {
			break
		}
		if size < 8 {
			return corruptf("event size %d smaller than its own header", size)
		}
		kind := c.u32()
		body := c.bytes(int(size) - 8)
		if c.err != nil {
			break
		}
		switch kind {
		case EventPoll:
			// Events may grow trailing fields in newer profilers; require
			// only the fields this decoder knows.
			ec := cursor{b: body, what: "poll event"}
			ts := ec.u64()
			tid := ec.u32()
			dur := ec.u64()
			stack := ec.u64()
			if ec.err != nil {
				return ec.err
			}
			rec.Polls = append(rec.Polls, PollEvent{
				Timestamp: time.Duration(ts),
				TID:       tid,
				Duration:  time.Duration(dur),
				StackID:   stack,
			})
		default:
			klog.V(2).Infof("skipping unknown event kind %d (%d bytes)", kind, size)
		}
	}
	return c.err
}

// cursor walks a chunk payload with saturating bounds checks: the first
// overrun poisons every later read, so parse code can read a whole record
// and check err once.
type cursor struct {
	b    []byte
	off  int
	what string
	err  error
}

func (c *cursor) remaining() int { return len(c.b) - c.off }

func (c *cursor) bytes(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.remaining() < n {
		c.err = corruptf("%s: need %d bytes, have %d", c.what, n, c.remaining())
		return nil
	}
	s := c.b[c.off : c.off+n]
	c.off += n
	return s
}

func (c *cursor) u8() byte {
	b := c.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *cursor) u16() uint16 {
	b := c.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (c *cursor) u32() uint32 {
	b := c.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (c *cursor) u64() uint64 {
	b := c.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (c *cursor) str(n int) string {
	return string(c.bytes(n))
}
