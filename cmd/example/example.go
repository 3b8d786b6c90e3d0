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

// A toy thread-per-core executor with poll instrumentation wired up: two
// pinned workers run wrapped tasks, a stand-in sampler interrupts them the
// way a profiler would, and polls that overstay the threshold are printed
// and streamed to POLLREC_PATH.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/slowpoll/slowpoll/pkg/jfr/jfrtest"
	"github.com/slowpoll/slowpoll/pkg/pollrec"
	"github.com/slowpoll/slowpoll/pkg/polltimer"
	"github.com/slowpoll/slowpoll/pkg/pollwrap"
	"github.com/slowpoll/slowpoll/pkg/sigchain"
)

const (
	threshold     = 5 * time.Millisecond
	recordingPath = "example.flr"
	demoStackID   = 1
)

func main() {
	p := profile.Start(profile.TraceProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	defer p.Stop()

	rec := pollrec.MustStartFromEnv("POLLREC_PATH")
	defer rec.Stop()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		glog.Errorf("metrics: %v", http.ListenAndServe("localhost:2112", nil))
	}()

	reg := polltimer.NewRegistry()

	s, err := newSampler(reg, rec)
	if err != nil {
		glog.Exitf("sampler: %v", err)
	}
	defer s.stop()

	fmt.Println("start")

	var g errgroup.Group
	g.Go(func() error { return worker(reg, s, 200*time.Microsecond, 2000) })
	g.Go(func() error { return worker(reg, s, 10*time.Millisecond, 40) })

	if err := g.Wait(); err != nil {
		glog.Exitf("worker: %v", err)
	}

	fmt.Println("end")
}

// worker pins itself to an OS thread, registers a poll timer, then polls a
// task that holds the thread for delay on every call. A profiler would see
// the delay==10ms worker as the culprit.
func worker(reg *polltimer.Registry, s *sampler, delay time.Duration, polls int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	t, err := reg.Register()
	if err != nil {
		return err
	}
	defer t.Unregister()

	s.watch(unix.Gettid())

	n := 0
	task := pollwrap.Wrap(pollwrap.PollFunc(func(ctx context.Context) (bool, error) {
		time.Sleep(delay)
		n++

		return n >= polls, nil
	}), t)

	ctx := context.Background()

	for {
		done, err := task.Poll(ctx)
		if err != nil {
			return err
		}

		if done {
			return nil
		}
	}
}

// sampler stands in for the external profiler: it interrupts every watched
// thread once a millisecond and hands the chained handler a sample, exactly
// as a sampling signal would. On stop it writes everything it kept as a
// recording that `slowpoll longpolls` can decode.
type sampler struct {
	handler sigchain.Handler
	ticker  *time.Ticker
	done    chan struct{}
	stopped chan struct{}
	kept    []pollrec.Poll

	mu   sync.Mutex
	tids []int
}

func newSampler(reg *polltimer.Registry, rec *pollrec.Recorder) (*sampler, error) {
	s := &sampler{
		ticker:  time.NewTicker(time.Millisecond),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	// The profiler's own handler: keep any poll that overstays the
	// threshold. A real profiler would capture a stack here; the stand-in
	// tags everything with one synthetic stack.
	base := func(sm *sigchain.Sample) {
		if time.Duration(sm.Annotation) < threshold {
			return
		}

		fmt.Printf("thread %d has been polling for %dus\n", sm.TID, time.Duration(sm.Annotation).Microseconds())

		p := pollrec.Poll{
			Timestamp: time.Duration(sm.Time),
			TID:       uint32(sm.TID),
			Duration:  time.Duration(sm.Annotation),
			StackID:   demoStackID,
		}
		s.kept = append(s.kept, p)
		rec.Record(p)
	}

	h, err := sigchain.Install(reg, base)
	if err != nil {
		return nil, err
	}

	s.handler = h
	go s.loop()

	return s, nil
}

func (s *sampler) watch(tid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tids = append(s.tids, tid)
}

func (s *sampler) loop() {
	defer close(s.stopped)

	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			s.mu.Lock()
			tids := append([]int{}, s.tids...)
			s.mu.Unlock()

			for _, tid := range tids {
				s.handler(&sigchain.Sample{TID: tid, Time: polltimer.Now()})
			}
		}
	}
}

func (s *sampler) stop() {
	s.ticker.Stop()
	close(s.done)
	<-s.stopped
	sigchain.Restore()

	b := jfrtest.NewBuilder().
		MetaChunk(map[string]string{"profiler": "example-standin"}).
		EventChunk(func(c *jfrtest.EventChunk) {
			for _, p := range s.kept {
				c.Poll(p.Timestamp, p.TID, p.Duration, p.StackID)
			}
		}).
		PoolChunk(func(c *jfrtest.PoolChunk) {
			c.Frame(1, "example::task::poll")
			c.Frame(2, "example::worker::run")
			c.Stack(demoStackID, 1, 2)
		})

	if err := os.WriteFile(recordingPath, b.Bytes(), 0o644); err != nil {
		glog.Errorf("write %s: %v", recordingPath, err)
		return
	}

	fmt.Printf("kept %d poll sample(s); decode with: slowpoll longpolls --min-poll %s %s\n",
		len(s.kept), threshold, recordingPath)
}
