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

package text_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowpoll/slowpoll/pkg/extract"
	"github.com/slowpoll/slowpoll/pkg/jfr"
	"github.com/slowpoll/slowpoll/pkg/text"
)

func frames(n int) []jfr.Frame {
	fs := make([]jfr.Frame, n)
	for i := range fs {
		fs[i] = jfr.Frame{ID: uint64(i + 1), Symbol: fmt.Sprintf("frame_%d", i+1), Resolved: true}
	}
	return fs
}

func TestReportRow(t *testing.T) {
	var sb strings.Builder
	err := text.Report(&sb, []extract.Longpoll{{
		Timestamp: 12*time.Second + 345678*time.Microsecond,
		TID:       7,
		Duration:  6 * time.Millisecond,
		Frames:    frames(2),
		StackOK:   true,
	}}, 5)
	require.NoError(t, err)

	assert.Contains(t, sb.String(), "[12.345678] thread 7 - poll of 6000us\n")
	assert.Contains(t, sb.String(), " -   1: frame_1\n")
	assert.Contains(t, sb.String(), " -   2: frame_2\n")
	assert.NotContains(t, sb.String(), "more frame(s)")
}

// A 60-frame stack at depth 5 shows 5 frames plus "55 more frame(s)" and
// the flag value that would reveal them.
func TestDepthTruncation(t *testing.T) {
	var sb strings.Builder
	err := text.Report(&sb, []extract.Longpoll{{
		Timestamp: time.Second,
		TID:       1,
		Duration:  10 * time.Millisecond,
		Frames:    frames(60),
		StackOK:   true,
	}}, 5)
	require.NoError(t, err)

	out := sb.String()
	assert.Contains(t, out, " -   5: frame_5\n")
	assert.NotContains(t, out, "frame_6")
	assert.Contains(t, out, " -  55 more frame(s) (pass --stack-depth=60 to show)\n")
}

func TestDepthCoversWholeStack(t *testing.T) {
	for _, depth := range []int{60, 100, 0} {
		var sb strings.Builder
		err := text.Report(&sb, []extract.Longpoll{{
			Timestamp: time.Second,
			TID:       1,
			Duration:  10 * time.Millisecond,
			Frames:    frames(60),
			StackOK:   true,
		}}, depth)
		require.NoError(t, err)
		assert.Contains(t, sb.String(), " -  60: frame_60\n", "depth %d", depth)
		assert.NotContains(t, sb.String(), "more frame(s)", "depth %d", depth)
	}
}

func TestUnresolvableStackMarker(t *testing.T) {
	var sb strings.Builder
	err := text.Report(&sb, []extract.Longpoll{{
		Timestamp: time.Second,
		TID:       3,
		Duration:  9 * time.Millisecond,
		StackID:   0x194,
	}}, 5)
	require.NoError(t, err)

	assert.Contains(t, sb.String(), "[1.000000] thread 3 - poll of 9000us\n")
	assert.Contains(t, sb.String(), " - <unresolvable stack 0x194>\n")
}

func TestTimestampSubSecond(t *testing.T) {
	var sb strings.Builder
	err := text.Report(&sb, []extract.Longpoll{{
		Timestamp: 42 * time.Microsecond,
		TID:       1,
		Duration:  5 * time.Millisecond,
		StackOK:   true,
	}}, 5)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "[0.000042]")
}
