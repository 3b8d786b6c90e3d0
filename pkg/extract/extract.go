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

// Package extract turns a decoded recording into the set of long polls:
// a pure, single-pass filter over the event index with stacks joined
// against the constant pool. Nothing is merged or deduplicated; one record
// per retained poll event.
package extract

import (
	"sort"
	"time"

	"github.com/slowpoll/slowpoll/pkg/jfr"
)

// Longpoll is one reported poll event with its stack resolved. Frames are
// leaf first. StackOK is false when the constant pool had no entry for the
// event's stack id; the event is reported anyway, with a marker.
type Longpoll struct {
	Timestamp time.Duration
	TID       uint32
	Duration  time.Duration
	StackID   uint64
	Frames    []jfr.Frame
	StackOK   bool
}

// Longpolls returns every poll event of rec whose duration is at least
// threshold, ordered by timestamp with ties broken by thread id. The sort
// is stable, so within one thread the trace's own order is authoritative.
func Longpolls(rec *jfr.Recording, threshold time.Duration) []Longpoll {
	polls := []Longpoll{}

	for _, e := range rec.Polls {
		if e.Duration < threshold {
			continue
		}
		frames, ok := rec.Pool.Stack(e.StackID)
		polls = append(polls, Longpoll{
			Timestamp: e.Timestamp,
			TID:       e.TID,
			Duration:  e.Duration,
			StackID:   e.StackID,
			Frames:    frames,
			StackOK:   ok,
		})
	}

	sort.SliceStable(polls, func(i, j int) bool {
		if polls[i].Timestamp != polls[j].Timestamp {
			return polls[i].Timestamp < polls[j].Timestamp
		}
		return polls[i].TID < polls[j].TID
	})

	return polls
}
