// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package cclog

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ccharness/ccharness/pkg/osutil"
)

type Chart struct {
	ID      string
	Title   string
	XLabel  string
	YLabel  string
	Scatter bool
	Headers []string
	Rows    []Row
	// XMax clips the horizontal axis, 0 means auto.
	XMax float64
}

// Row is one x value. NaN values are gaps. Rows with a Note mark events.
type Row struct {
	X    float64
	Vals []float64
	Note string
}

func (c *Chart) add(x float64, vals ...float64) {
	c.Rows = append(c.Rows, Row{X: x, Vals: vals})
}

func (c *Chart) mark(x float64, note string) {
	vals := make([]float64, len(c.Headers))
	for i := range vals {
		vals[i] = math.NaN()
	}
	c.Rows = append(c.Rows, Row{X: x, Vals: vals, Note: note})
}

func (c *Chart) sort() {
	sort.SliceStable(c.Rows, func(i, j int) bool { return c.Rows[i].X < c.Rows[j].X })
}

const (
	// Rescaling of bbr_full_bw: BW_SCALE, MSS and bits per byte.
	bwUnit    = 1 << 24
	bwMSS     = 1308
	jitter    = 0.05
	axisSlack = 0.5
)

// Plot returns the charts of one loaded log.
func Plot(l *Log) []*Chart {
	if l.Series.Profile.Name == "bbr" {
		return plotBBR(l)
	}
	return plotSearch(l)
}

func plotBBR(l *Log) []*Chart {
	s := l.Series
	now := s.Values[Now]
	maxBw := &Chart{
		ID:      fmt.Sprintf("bbr_max_bw_%v", l.Num),
		Title:   "BBR Max Bandwidth Over Time",
		XLabel:  "time (s)",
		YLabel:  MaxBw,
		Headers: []string{MaxBw},
	}
	fullBw := &Chart{
		ID:      fmt.Sprintf("bbr_full_bw_%v", l.Num),
		Title:   "BBR Full Bandwidth Over Time",
		XLabel:  "time (s)",
		YLabel:  "Bandwidth (Mb/s)",
		Headers: []string{FullBw},
	}
	for i, v := range s.Values[MaxBw] {
		if i < len(now) {
			maxBw.add(now[i], v)
		}
	}
	for i, v := range s.Values[FullBw] {
		if i < len(now) {
			fullBw.add(now[i], v/bwUnit*bwMSS*8)
		}
	}
	var cnts []int
	for cnt := range l.FullBwCnt {
		cnts = append(cnts, cnt)
	}
	sort.Ints(cnts)
	for _, c := range []*Chart{maxBw, fullBw} {
		for i, t := range l.RoundStarts {
			c.mark(t, noteOnce(RoundStart, i))
		}
		for _, cnt := range cnts {
			for i, t := range l.FullBwCnt[cnt] {
				c.mark(t+jitter, noteOnce(fmt.Sprintf("full_bw_cnt=%v", cnt), i))
			}
		}
		if l.HasLoss {
			c.mark(l.Loss, LossHappen)
			c.XMax = l.Loss + axisSlack
		}
		c.sort()
	}
	return []*Chart{maxBw, fullBw}
}

func plotSearch(l *Log) []*Chart {
	s := l.Series
	delivered := &Chart{
		ID:      fmt.Sprintf("delivered_%v", l.Num),
		Title:   "Delivered Bandwidth Over Time",
		XLabel:  "time (s)",
		YLabel:  "delivered (Mbps)",
		Headers: []string{CurrDelv, PrevDelv},
	}
	norm := &Chart{
		ID:      fmt.Sprintf("norm_%v", l.Num),
		Title:   "Norm Over Time",
		XLabel:  "time (s)",
		YLabel:  Norm,
		Headers: []string{Norm},
	}
	prev := s.Values[PrevDelv]
	for i, t := range s.Times[CurrDelv] {
		p := math.NaN()
		if i < len(prev) {
			p = prev[i]
		}
		delivered.add(t, s.Values[CurrDelv][i], p)
	}
	for i, t := range s.Times[Norm] {
		norm.add(t, s.Values[Norm][i]/100)
	}
	for _, c := range []*Chart{delivered, norm} {
		if l.HasLoss {
			c.mark(l.Loss, LossHappen)
			c.XMax = l.Loss + axisSlack
		}
		if l.HasExit {
			c.mark(l.Exit, "exit_slow_start")
			c.XMax = l.Exit + axisSlack
		}
		c.sort()
	}
	return []*Chart{delivered, norm}
}

func noteOnce(note string, i int) string {
	if i == 0 {
		return note
	}
	return " "
}

// Together charts loss and exit time of every log, one point per case.
func Together(logs []*Log, p *Profile) *Chart {
	c := &Chart{
		ID:      "together",
		Title:   "Loss Time and " + p.Exit + " Time",
		XLabel:  "Test Case",
		YLabel:  "Time (s)",
		Scatter: true,
		Headers: []string{"Loss Time", p.Exit},
	}
	for i, l := range logs {
		loss, exit := math.NaN(), math.NaN()
		if l.HasLoss {
			loss = l.Loss
		}
		if l.HasExit {
			exit = l.Exit
		}
		c.add(float64(i+1), loss, exit)
	}
	return c
}

type page struct {
	Title  string
	Charts []*Chart
}

// RenderHTML writes a page with the charts.
func RenderHTML(w io.Writer, title string, charts []*Chart) error {
	return htmlTemplate.Execute(w, page{Title: title, Charts: charts})
}

// WriteHTML renders the charts of every log into figDir, one page per log,
// plus together.html.
func WriteHTML(figDir string, logs []*Log, p *Profile) ([]string, error) {
	if err := osutil.MkdirAll(figDir); err != nil {
		return nil, err
	}
	var files []string
	write := func(name, title string, charts []*Chart) error {
		buf := new(bytes.Buffer)
		if err := RenderHTML(buf, title, charts); err != nil {
			return err
		}
		file := filepath.Join(figDir, name)
		files = append(files, file)
		return osutil.WriteFile(file, buf.Bytes())
	}
	for _, l := range logs {
		base := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(l.File), ".xz"), ".txt")
		if err := write(base+".html", base, Plot(l)); err != nil {
			return files, err
		}
	}
	if err := write("together.html", p.Name, []*Chart{Together(logs, p)}); err != nil {
		return files, err
	}
	return files, nil
}

var htmlTemplate = template.Must(template.New("").Funcs(template.FuncMap{
	"num": func(v float64) template.JS {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "null"
		}
		return template.JS(strconv.FormatFloat(v, 'g', -1, 64))
	},
}).Parse(`
<!doctype html>
<html>
  <head>
    <title>{{.Title}}</title>
    <script type="text/javascript" src="https://www.gstatic.com/charts/loader.js"></script>
    <script type="text/javascript">
      google.charts.load("current", {packages:["corechart"]});
      google.charts.setOnLoadCallback(drawCharts);
      function drawCharts() {
        {{range $id, $graph := .Charts}}
        {
          var data = new google.visualization.DataTable();
          data.addColumn({type: 'number', label: {{$graph.XLabel}}});
          {{range $graph.Headers}}
            data.addColumn({type: 'number', label: {{.}}});
          {{end}}
          data.addColumn({type: 'string', role: 'annotation'});
          data.addRows([
            {{range $graph.Rows}} [ {{num .X}}, {{range .Vals}} {{num .}}, {{end}} {{if .Note}}{{.Note}}{{else}}null{{end}} ],
            {{end}}
          ]);
          var chart = {{if $graph.Scatter}}google.visualization.ScatterChart{{else}}google.visualization.LineChart{{end}};
          new chart(document.getElementById('graph_div_{{$id}}')).
            draw(data, {
              title: {{$graph.Title}},
              width: "100%",
              height: document.documentElement.clientHeight * 0.48,
              legend: {position: "in"},
              interpolateNulls: true,
              annotations: {style: "line"},
              hAxis: {title: {{$graph.XLabel}}{{if $graph.XMax}}, viewWindow: {max: {{num $graph.XMax}}}{{end}}},
              vAxis: {title: {{$graph.YLabel}}},
              chartArea: {left: "5%", top: "5%", width: "90%", height:"85%"}
            })
        }
        {{end}}
      }
    </script>
</head>
<body>
  {{range $id, $graph := .Charts}}
  <div id="graph_div_{{$id}}" title="{{$graph.ID}}"></div>
  {{end}}
</body>
</html>
`))
