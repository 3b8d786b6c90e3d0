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

package pollrec

import (
	"bufio"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"k8s.io/klog/v2"
)

var (
	recordsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slowpoll_pollrec_records_written_total",
		Help: "Poll records written by the in-process recorder.",
	})
	recordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slowpoll_pollrec_records_dropped_total",
		Help: "Poll records dropped because the recorder buffer was full.",
	})
)

// Config defines how to configure an in-process poll recorder.
type Config struct {
	Path          string
	FlushInterval time.Duration
	Buffer        int
}

// Recorder streams poll records from instrumented workers to a file
// through a buffered channel and one background writer goroutine. Workers
// never block on the recorder: when the buffer is full, or the recorder is
// stopping, the record is dropped and counted. The channel is never
// closed — Record may race Stop, so shutdown is signalled through quit and
// the writer drains whatever is buffered before closing the file.
type Recorder struct {
	ch      chan Poll
	quit    chan struct{}
	done    chan struct{}
	stopped atomic.Bool
	f       io.WriteCloser
	path    string
	ticker  *time.Ticker
}

// Start begins recording polls to an output file.
func Start(c Config) (*Recorder, error) {
	if c.FlushInterval == 0 {
		c.FlushInterval = time.Second
	}
	if c.Buffer == 0 {
		c.Buffer = 4096
	}
	if c.Path == "" {
		c.Path = "poll.rec"
	}

	f, err := os.Create(c.Path)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		ch:     make(chan Poll, c.Buffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		f:      f,
		path:   c.Path,
		ticker: time.NewTicker(c.FlushInterval),
	}
	go r.loop()
	klog.Infof("recording polls to %s, flushing every %s", c.Path, c.FlushInterval)
	return r, nil
}

// MustStartFromEnv starts a recorder if env names a path in the
// environment, and returns nil otherwise. The returned *Recorder is
// nil-safe: Record and Stop on a nil recorder are no-ops, so callers can
// unconditionally `defer r.Stop()`.
func MustStartFromEnv(env string) *Recorder {
	path := os.Getenv(env)
	if path == "" {
		return nil
	}
	r, err := Start(Config{Path: path})
	if err != nil {
		klog.Fatalf("pollrec: %v", err)
	}
	return r
}

// Record queues one poll record. It never blocks and is safe to call at
// any point relative to Stop: a full buffer or a stopping recorder drops
// the record and increments the drop counter.
func (r *Recorder) Record(p Poll) {
	if r == nil {
		return
	}
	if r.stopped.Load() {
		recordsDropped.Inc()
		return
	}
	select {
	case r.ch <- p:
	default:
		recordsDropped.Inc()
	}
}

// Stop drains the buffer, flushes and closes the output file. Stop is
// idempotent; records arriving after it are dropped, not written.
func (r *Recorder) Stop() {
	if r == nil {
		return
	}
	if r.stopped.Swap(true) {
		return
	}
	r.ticker.Stop()
	close(r.quit)
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)

	bw := bufio.NewWriter(r.f)
	enc := NewEncoder(bw)
	written := 0

	flush := func() {
		if err := bw.Flush(); err != nil {
			klog.Errorf("pollrec: flush %s: %v", r.path, err)
		}
	}

	write := func(p Poll) {
		if err := enc.WritePoll(p); err != nil {
			klog.Errorf("pollrec: write %s: %v", r.path, err)
			return
		}
		written++
		recordsWritten.Inc()
	}

	for {
		select {
		case p := <-r.ch:
			write(p)
		case <-r.ticker.C:
			flush()
		case <-r.quit:
			// Drain what workers managed to queue before Stop.
			for {
				select {
				case p := <-r.ch:
					write(p)
				default:
					flush()
					if err := r.f.Close(); err != nil {
						klog.Errorf("pollrec: close %s: %v", r.path, err)
					}
					klog.Infof("recorder stopped, wrote %d records to %s", written, r.path)
					return
				}
			}
		}
	}
}
