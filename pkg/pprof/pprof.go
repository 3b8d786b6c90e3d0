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

// Package pprof is for rendering retained long polls into a pprof profile.
package pprof

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/pprof/profile"

	"github.com/slowpoll/slowpoll/pkg/extract"
	"github.com/slowpoll/slowpoll/pkg/jfr"
)

// Render outputs a pprof protobuf of the retained long polls: one sample
// per poll event valued as [count, poll duration]. Unresolved frames keep
// their raw address so downstream tooling can still symbolize them.
func Render(polls []extract.Longpoll) ([]byte, error) {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "polls", Unit: "count"},
			{Type: "latency", Unit: "nanoseconds"},
		},
		TimeNanos: time.Now().UnixNano(),
	}

	fns := map[uint64]*profile.Function{}
	locs := map[uint64]*profile.Location{}

	locate := func(fr jfr.Frame) *profile.Location {
		if l, ok := locs[fr.ID]; ok {
			return l
		}
		l := &profile.Location{ID: uint64(len(locs) + 1)}
		if fr.Resolved {
			fn := &profile.Function{
				ID:         uint64(len(fns) + 1),
				Name:       fr.Name(),
				SystemName: fr.Name(),
			}
			fns[fr.ID] = fn
			p.Function = append(p.Function, fn)
			l.Line = []profile.Line{{Function: fn}}
		} else {
			l.Address = fr.ID
		}
		locs[fr.ID] = l
		p.Location = append(p.Location, l)
		return l
	}

	for _, lp := range polls {
		sample := &profile.Sample{
			Value: []int64{1, int64(lp.Duration)},
			Label: map[string][]string{
				"thread": {fmt.Sprintf("%d", lp.TID)},
			},
		}
		for _, fr := range lp.Frames {
			sample.Location = append(sample.Location, locate(fr))
		}
		p.Sample = append(p.Sample, sample)
	}

	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		return nil, fmt.Errorf("write profile: %w", err)
	}
	return buf.Bytes(), nil
}
