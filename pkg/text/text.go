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

// Package text is for rendering long-poll reports into text form.
package text

import (
	"fmt"
	"io"
	"time"

	"github.com/slowpoll/slowpoll/pkg/extract"
)

// Report writes one block per long poll: a timestamped, thread-tagged
// header row followed by the stack truncated to depth frames, with a count
// of elided frames and the flag needed to reveal them. depth <= 0 shows
// every frame.
func Report(w io.Writer, polls []extract.Longpoll, depth int) error {
	for _, p := range polls {
		secs := p.Timestamp / time.Second
		micros := (p.Timestamp % time.Second) / time.Microsecond
		if _, err := fmt.Fprintf(w, "[%d.%06d] thread %d - poll of %dus\n",
			secs, micros, p.TID, p.Duration.Microseconds()); err != nil {
			return err
		}

		if !p.StackOK {
			if _, err := fmt.Fprintf(w, " - <unresolvable stack 0x%x>\n\n", p.StackID); err != nil {
				return err
			}
			continue
		}

		for i, f := range p.Frames {
			if depth > 0 && i == depth {
				if _, err := fmt.Fprintf(w, " - %3d more frame(s) (pass --stack-depth=%d to show)\n",
					len(p.Frames)-depth, len(p.Frames)); err != nil {
					return err
				}
				break
			}
			if _, err := fmt.Fprintf(w, " - %3d: %s\n", i+1, f.Name()); err != nil {
				return err
			}
		}

		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
