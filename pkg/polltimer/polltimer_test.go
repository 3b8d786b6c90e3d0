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

package polltimer

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestEnterExitElapsed(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	reg := NewRegistry()
	timer, err := reg.Register()
	require.NoError(t, err)
	defer timer.Unregister()

	tid := unix.Gettid()

	_, ok := reg.Elapsed(tid, Now())
	assert.False(t, ok, "not in poll before Enter")

	timer.Enter()
	d, ok := reg.Elapsed(tid, Now())
	require.True(t, ok, "in poll after Enter")
	assert.GreaterOrEqual(t, d, time.Duration(0))

	time.Sleep(2 * time.Millisecond)
	d2, ok := reg.Elapsed(tid, Now())
	require.True(t, ok)
	assert.Greater(t, d2, d, "elapsed grows while in poll")

	timer.Exit()
	_, ok = reg.Elapsed(tid, Now())
	assert.False(t, ok, "not in poll after Exit")
}

func TestElapsedUnknownThread(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Elapsed(123456, Now())
	assert.False(t, ok)
}

func TestReregisterReusesSlot(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	reg := NewRegistry()
	a, err := reg.Register()
	require.NoError(t, err)
	a.Unregister()

	b, err := reg.Register()
	require.NoError(t, err)
	defer b.Unregister()

	b.Enter()
	_, ok := reg.Elapsed(unix.Gettid(), Now())
	assert.True(t, ok, "slot usable after unregister/register cycle")
	b.Exit()
}

// TestConcurrentSnapshot hammers Elapsed from another goroutine while the
// owning thread brackets polls. Any observed in-poll snapshot must carry a
// committed start; the race detector keeps the atomics honest.
func TestConcurrentSnapshot(t *testing.T) {
	reg := NewRegistry()

	tidc := make(chan int)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		timer, err := reg.Register()
		if err != nil {
			t.Error(err)
			close(tidc)
			return
		}
		defer timer.Unregister()
		tidc <- unix.Gettid()

		for {
			select {
			case <-stop:
				return
			default:
			}
			timer.Enter()
			timer.Exit()
		}
	}()

	tid, open := <-tidc
	require.True(t, open)

	for i := 0; i < 10000; i++ {
		if d, ok := reg.Elapsed(tid, Now()); ok {
			assert.GreaterOrEqual(t, d, time.Duration(0))
		}
	}
	close(stop)
	wg.Wait()
}

func TestElapsedDoesNotAllocate(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	reg := NewRegistry()
	timer, err := reg.Register()
	require.NoError(t, err)
	defer timer.Unregister()
	timer.Enter()
	defer timer.Exit()

	tid := unix.Gettid()
	allocs := testing.AllocsPerRun(1000, func() {
		reg.Elapsed(tid, Now())
	})
	assert.Zero(t, allocs, "signal-time read path must not allocate")
}
