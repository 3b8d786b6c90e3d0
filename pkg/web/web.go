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

// Package web is for generating HTML visualizations of long polls
package web

import (
	"fmt"
	"image/color"
	"io"
	"strings"
	"text/template"
	"time"

	"golang.org/x/image/colornames"

	"github.com/slowpoll/slowpoll/pkg/extract"
)

var ganttTemplate = `
<html>
  <head>
    <script type="text/javascript" src="https://www.gstatic.com/charts/loader.js"></script>
    <script type="text/javascript">
      google.charts.load('current', {'packages': ['timeline', 'controls']});
      google.charts.setOnLoadCallback(drawTimeline);

      function dataTable() {
        var dataTable = new google.visualization.DataTable();

        dataTable.addColumn({ type: 'string', id: 'Thread' });
        dataTable.addColumn({ type: 'string', id: 'Poll' });
        dataTable.addColumn({ type: 'string', role: 'tooltip' });
        dataTable.addColumn({ type: 'string', id: 'style', role: 'style' });
        dataTable.addColumn({ type: 'date', id: 'Start' });
        dataTable.addColumn({ type: 'date', id: 'End' });

        dataTable.addRows([
          {{ range .Polls }}
            [ 'thread {{ .TID }}', '{{ . | Label }}', '{{ . | Tooltip }}', '{{ . | Color }}', new Date({{ .Timestamp | Milliseconds }}), new Date({{ . | EndMilliseconds }}) ],
          {{ end }}
        ]);
        return dataTable;
      }

      function drawTimeline() {
        var container = document.getElementById('dashboard');
        var dashboard = new google.visualization.Dashboard(container);
        var picker = new google.visualization.ControlWrapper({
            controlType: 'CategoryFilter',
            containerId: 'picker',
            options: {
              filterColumnIndex: 0,
              ui: {
                selectedValuesLayout: 'below',
                label: "Threads to display:",
                sortValues: false,
              },
            },
          }
        );

        var timeline = new google.visualization.ChartWrapper({
          chartType: 'Timeline',
          containerId: 'timeline',
        });

        dashboard.bind(picker, timeline);
        var options = {
          avoidOverlappingGridLines: false,
        };
        dashboard.draw(dataTable(), options);
      }
    </script>
  </head>
  <body>
    <h1>slowpoll: {{ len .Polls }} long poll(s) across {{ .Threads }} thread(s) over {{ .Span }}</h1>
    <div id="dashboard">
      <div id="picker"></div>
      <div id="timeline" style="width: 3200px; height: 1024px;"></div>
    </div>
  </body>
</html>
`

// Render renders an HTML page representing a timeline of long polls.
func Render(w io.Writer, polls []extract.Longpoll) error {
	updateColorMap(polls, colorMap)

	fmap := template.FuncMap{
		"Milliseconds":    milliseconds,
		"EndMilliseconds": endMilliseconds,
		"Label":           label,
		"Tooltip":         tooltip,
		"Color":           pollColor,
	}

	t, err := template.New("timeline").Funcs(fmap).Parse(ganttTemplate)
	if err != nil {
		return fmt.Errorf("template: %w", err)
	}

	rc := struct {
		Polls   []extract.Longpoll
		Threads int
		Span    time.Duration
	}{
		Polls:   polls,
		Threads: threads(polls),
		Span:    span(polls),
	}

	err = t.ExecuteTemplate(w, "timeline", rc)
	if err != nil {
		return fmt.Errorf("execute template: %w", err)
	}

	return nil
}

func milliseconds(d time.Duration) string {
	return fmt.Sprintf("%d", d.Milliseconds())
}

func endMilliseconds(p extract.Longpoll) string {
	return fmt.Sprintf("%d", (p.Timestamp + p.Duration).Milliseconds())
}

// label names a poll by its innermost frame, falling back to the stack id
// when there is no frame to name it by. Never empty: the color map indexes
// into it.
func label(p extract.Longpoll) string {
	if p.StackOK && len(p.Frames) > 0 {
		if n := p.Frames[0].Name(); n != "" {
			return n
		}
	}

	return fmt.Sprintf("stack 0x%x", p.StackID)
}

func tooltip(p extract.Longpoll) string {
	return fmt.Sprintf("%s (%dus)", label(p), p.Duration.Microseconds())
}

func threads(polls []extract.Longpoll) int {
	seen := map[uint32]bool{}
	for _, p := range polls {
		seen[p.TID] = true
	}

	return len(seen)
}

func span(polls []extract.Longpoll) time.Duration {
	if len(polls) == 0 {
		return 0
	}

	end := polls[0].Timestamp + polls[0].Duration
	for _, p := range polls[1:] {
		if e := p.Timestamp + p.Duration; e > end {
			end = e
		}
	}

	return end - polls[0].Timestamp
}

func updateColorMap(polls []extract.Longpoll, cm map[string]color.RGBA) {
	chosen := map[string]bool{}

	for _, p := range polls {
		l := label(p)

		_, ok := cm[l]
		if ok {
			continue
		}

		// gimmick: if a frame is named after a color, use it
		for _, name := range colornames.Names {
			if strings.Contains(name, "white") {
				continue
			}

			if name[0] != l[0] {
				continue
			}

			if !chosen[name] {
				chosen[name] = true
				cm[l] = colornames.Map[name]

				break
			}
		}

		_, ok = cm[l]
		if ok {
			continue
		}

		// Giveup
		for _, name := range colornames.Names {
			if strings.Contains(name, "white") {
				continue
			}

			if !chosen[name] {
				chosen[name] = true
				cm[l] = colornames.Map[name]

				break
			}
		}
	}
}

func pollColor(p extract.Longpoll) string {
	c := colorMap[label(p)]
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
