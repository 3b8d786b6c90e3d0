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

package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/browser"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/slowpoll/slowpoll/pkg/config"
	"github.com/slowpoll/slowpoll/pkg/extract"
	"github.com/slowpoll/slowpoll/pkg/jfr"
	"github.com/slowpoll/slowpoll/pkg/pollrec"
	"github.com/slowpoll/slowpoll/pkg/pprof"
	"github.com/slowpoll/slowpoll/pkg/text"
	"github.com/slowpoll/slowpoll/pkg/web"
)

var (
	configPath   = pflag.String("config", "", "Path to a YAML settings file (flags override it)")
	minPoll      = pflag.Duration("min-poll", 0, "Report polls at least this long (e.g. 5ms)")
	stackDepth   = pflag.Int("stack-depth", 5, "Frames to show per poll (0 for unlimited)")
	exportPath   = pflag.String("export", "", "Path to output compact poll records to")
	pprofPath    = pflag.String("pprof", "", "Path to output pprof content to")
	htmlPath     = pflag.String("html", "", "Path to output an HTML timeline to")
	httpEndpoint = pflag.String("http", "", "HTTP endpoint to serve the timeline at")
	openBrowser  = pflag.Bool("open", false, "Open a browser at the --http endpoint")
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: slowpoll longpolls [flags] <trace> [trace ...]")
	pflag.PrintDefaults()
	os.Exit(64) // EX_USAGE
}

func main() {
	pflag.Usage = usage
	pflag.Parse()

	args := pflag.Args()
	if len(args) < 2 || args[0] != "longpolls" {
		usage()
	}

	c := settings()
	files := args[1:]

	polls, failed := decode(files, time.Duration(c.MinPoll))

	if err := text.Report(os.Stdout, polls, c.StackDepth); err != nil {
		glog.Fatalf("report: %v", err)
	}

	if c.Export.Records != "" {
		if err := exportRecords(c.Export.Records, polls); err != nil {
			glog.Fatalf("records: %v", err)
		}
	}

	if c.Export.Pprof != "" {
		bs, err := pprof.Render(polls)
		if err != nil {
			glog.Fatalf("render: %v", err)
		}

		if err := os.WriteFile(c.Export.Pprof, bs, 0o644); err != nil {
			glog.Fatalf("write: %v", err)
		}
	}

	if c.Export.HTML != "" {
		w, err := os.Create(c.Export.HTML)
		if err != nil {
			glog.Exitf("open failed: %v", err)
		}
		defer w.Close()

		if err := web.Render(w, polls); err != nil {
			glog.Fatalf("render: %v", err)
		}
	}

	if failed {
		os.Exit(1)
	}

	if c.HTTP != "" {
		if *openBrowser {
			go func() {
				time.Sleep(time.Second)

				url := fmt.Sprintf("http://%s/", c.HTTP)
				if err := browser.OpenURL(url); err != nil {
					glog.Errorf("browser: %v", err)
				}
			}()
		}

		if err := web.Serve(c.HTTP, polls); err != nil {
			glog.Exitf("serve: %v", err)
		}
	}
}

// settings merges the optional config file with flags, flags winning.
func settings() *config.Config {
	c := config.Default()

	if *configPath != "" {
		var err error
		if c, err = config.Load(*configPath); err != nil {
			glog.Exitf("config: %v", err)
		}
	}

	if pflag.CommandLine.Changed("min-poll") {
		c.MinPoll = config.Duration(*minPoll)
	}

	if pflag.CommandLine.Changed("stack-depth") {
		c.StackDepth = *stackDepth
	}

	if *exportPath != "" {
		c.Export.Records = *exportPath
	}

	if *pprofPath != "" {
		c.Export.Pprof = *pprofPath
	}

	if *htmlPath != "" {
		c.Export.HTML = *htmlPath
	}

	if *httpEndpoint != "" {
		c.HTTP = *httpEndpoint
	}

	if c.MinPoll <= 0 {
		fmt.Fprintln(os.Stderr, "a poll threshold is required: pass --min-poll or set min_poll in --config")
		os.Exit(64) // EX_USAGE
	}

	return c
}

// decode reads every trace concurrently. A bad file doesn't suppress the
// report from its siblings; it flips the failure flag instead.
func decode(files []string, threshold time.Duration) ([]extract.Longpoll, bool) {
	perFile := make([][]extract.Longpoll, len(files))
	errs := make([]error, len(files))

	var g errgroup.Group

	for i, path := range files {
		i, path := i, path

		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				errs[i] = err
				return nil
			}
			defer f.Close()

			rec, err := jfr.Read(f)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", path, err)
				return nil
			}

			perFile[i] = extract.Longpolls(rec, threshold)

			return nil
		})
	}

	// Failures land in errs; the goroutines themselves never error.
	_ = g.Wait()

	failed := false

	for _, err := range errs {
		if err != nil {
			glog.Errorf("decode: %v", err)

			failed = true
		}
	}

	polls := []extract.Longpoll{}
	for _, ps := range perFile {
		polls = append(polls, ps...)
	}

	sort.SliceStable(polls, func(i, j int) bool {
		if polls[i].Timestamp != polls[j].Timestamp {
			return polls[i].Timestamp < polls[j].Timestamp
		}

		return polls[i].TID < polls[j].TID
	})

	return polls, failed
}

func exportRecords(path string, polls []extract.Longpoll) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := pollrec.NewEncoder(f)
	for _, p := range polls {
		if err := enc.WritePoll(pollrec.Poll{
			Timestamp: p.Timestamp,
			TID:       p.TID,
			Duration:  p.Duration,
			StackID:   p.StackID,
		}); err != nil {
			f.Close()
			return err
		}
	}

	return f.Close()
}
