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

// Package pollrec reads and writes the compact poll-record format: a flat
// stream of size-prefixed little-endian records for machine consumption.
// Each record is `u32 size, u32 kind, body`, size covering the whole
// record, so readers skip kinds they don't know. Kind 0 is a poll:
// u64 timestamp ns, u32 thread id, u64 duration ns, u64 stack id.
package pollrec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// Record kinds.
const (
	KindPoll = 0
)

const (
	headerSize   = 4 + 4
	pollBodySize = 8 + 4 + 8 + 8
	pollSize     = headerSize + pollBodySize
)

// ErrShortRecord reports a record whose declared size cannot hold its own
// fields.
var ErrShortRecord = errors.New("pollrec: record size too small")

// Poll is one retained poll event. Symbol resolution is deferred to the
// consumer of this format; only the stack id travels with the record.
type Poll struct {
	Timestamp time.Duration
	TID       uint32
	Duration  time.Duration
	StackID   uint64
}

// Encoder writes poll records to w.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WritePoll appends one poll record.
func (e *Encoder) WritePoll(p Poll) error {
	var b [pollSize]byte
	binary.LittleEndian.PutUint32(b[0:], pollSize)
	binary.LittleEndian.PutUint32(b[4:], KindPoll)
	binary.LittleEndian.PutUint64(b[8:], uint64(p.Timestamp))
	binary.LittleEndian.PutUint32(b[16:], p.TID)
	binary.LittleEndian.PutUint64(b[20:], uint64(p.Duration))
	binary.LittleEndian.PutUint64(b[28:], p.StackID)
	_, err := e.w.Write(b[:])
	return err
}

// Decoder reads poll records from r, skipping record kinds it does not
// know about.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next poll record, or (nil, nil) at a clean end of
// stream. Unknown kinds are skipped by their declared size.
func (d *Decoder) Next() (*Poll, error) {
	for {
		var hdr [headerSize]byte
		if _, err := io.ReadFull(d.r, hdr[:1]); err == io.EOF {
			return nil, nil
		} else if err != nil {
			return nil, fmt.Errorf("pollrec: read record header: %w", err)
		}
		if _, err := io.ReadFull(d.r, hdr[1:]); err != nil {
			return nil, fmt.Errorf("pollrec: read record header: %w", err)
		}

		size := binary.LittleEndian.Uint32(hdr[0:])
		kind := binary.LittleEndian.Uint32(hdr[4:])
		if size < headerSize {
			return nil, fmt.Errorf("%w: %d", ErrShortRecord, size)
		}

		if kind != KindPoll {
			if err := d.skip(int64(size) - headerSize); err != nil {
				return nil, err
			}
			continue
		}
		if size < pollSize {
			return nil, fmt.Errorf("%w: poll record of %d bytes", ErrShortRecord, size)
		}

		var body [pollBodySize]byte
		if _, err := io.ReadFull(d.r, body[:]); err != nil {
			return nil, fmt.Errorf("pollrec: read poll record: %w", err)
		}
		// Newer writers may append fields; skip what we don't know.
		if err := d.skip(int64(size) - pollSize); err != nil {
			return nil, err
		}

		return &Poll{
			Timestamp: time.Duration(binary.LittleEndian.Uint64(body[0:])),
			TID:       binary.LittleEndian.Uint32(body[8:]),
			Duration:  time.Duration(binary.LittleEndian.Uint64(body[12:])),
			StackID:   binary.LittleEndian.Uint64(body[20:]),
		}, nil
	}
}

func (d *Decoder) skip(n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, d.r, n); err != nil {
		return fmt.Errorf("pollrec: skip %d bytes: %w", n, err)
	}
	return nil
}
