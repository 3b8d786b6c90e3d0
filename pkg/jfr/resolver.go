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

// ConstantPool is the union of every constant-pool chunk in a file: frame
// id to symbol, stack id to leaf-first frame ids. Pools never outlive the
// decode of their file. Lookups are pure and read-only.
type ConstantPool struct {
	frames map[uint64]Frame
	stacks map[uint64][]uint64
}

// NewConstantPool returns an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{
		frames: map[uint64]Frame{},
		stacks: map[uint64][]uint64{},
	}
}

// merge folds one constant-pool chunk into the accumulated pool. Later
// chunks extend earlier ones; an id redefined later wins, matching the
// profiler's cumulative-dictionary semantics.
func (p *ConstantPool) merge(payload []byte) error {
	c := cursor{b: payload, what: "constant-pool chunk"}

	nframes := c.u32()
	for i := uint32(0); i < nframes && c.err == nil; i++ {
		id := c.u64()
		resolved := c.u8() != 0
		sym := c.str(int(c.u16()))
		if c.err == nil {
			p.frames[id] = Frame{ID: id, Symbol: sym, Resolved: resolved}
		}
	}

	nstacks := c.u32()
	for i := uint32(0); i < nstacks && c.err == nil; i++ {
		id := c.u64()
		n := c.u32()
		if c.err != nil {
			break
		}
		ids := make([]uint64, 0, n)
		for j := uint32(0); j < n && c.err == nil; j++ {
			ids = append(ids, c.u64())
		}
		if c.err == nil {
			p.stacks[id] = ids
		}
	}

	return c.err
}

// Frame resolves one frame id. Missing entries come back as an unresolved
// placeholder carrying the id, never an error: a single unsymbolized frame
// must not fail its stack.
func (p *ConstantPool) Frame(id uint64) Frame {
	if f, ok := p.frames[id]; ok {
		return f
	}
	return Frame{ID: id}
}

// Stack resolves a stack id to its frames, leaf (innermost) first. It
// reports false when the pool has no entry for the id; the caller reports
// the event with an unresolvable-stack marker rather than dropping it.
func (p *ConstantPool) Stack(id uint64) ([]Frame, bool) {
	ids, ok := p.stacks[id]
	if !ok {
		return nil, false
	}
	frames := make([]Frame, len(ids))
	for i, fid := range ids {
		frames[i] = p.Frame(fid)
	}
	return frames, true
}

// Frames returns the number of frame entries in the pool.
func (p *ConstantPool) Frames() int { return len(p.frames) }

// Stacks returns the number of stack entries in the pool.
func (p *ConstantPool) Stacks() int { return len(p.stacks) }
