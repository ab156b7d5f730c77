package agent

import (
	"bytes"
	"context"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/f9-o/sensorhub/internal/sensors"
)

const fragmentStyle = `<style>
.sh-table{border-collapse:collapse;margin:.3em 0}
.sh-table th,.sh-table td{border:1px solid #ccc;padding:.2em .6em;text-align:left}
.sh-table th{background:#eee}
</style>
`

var fragments = template.Must(template.New("system").Parse(fragmentStyle + `<table class="sh-table sh-system">
<tr><th>Hostname</th><td>{{ .Hostname }}</td></tr>
<tr><th>Agent version</th><td>{{ .Version }}</td></tr>
<tr><th>Operating system</th><td>{{ .Info.OS }} {{ .Info.Platform }} {{ .Info.PlatformVersion }}</td></tr>
<tr><th>Kernel</th><td>{{ .Info.KernelVersion }}</td></tr>
<tr><th>CPU</th><td>{{ .Info.CPUModel }} ({{ .Info.CPUCores }} cores)</td></tr>
<tr><th>Memory</th><td>{{ .Memory }}</td></tr>
<tr><th>Disk</th><td>{{ .Disk }}</td></tr>
<tr><th>Uptime</th><td>{{ .Uptime }}</td></tr>
<tr><th>Recorded database</th><td>{{ .DatabaseSize }}</td></tr>
</table>
`))

func init() {
	template.Must(fragments.New("config").Parse(fragmentStyle + `<table class="sh-table sh-config">
{{ range .Rows }}<tr><th>{{ .Key }}</th><td>{{ .Value }}</td></tr>
{{ end }}</table>
`))
	template.Must(fragments.New("readings").Parse(fragmentStyle + `<table class="sh-table sh-readings">
<tr><th>Sensor</th><th>Reading</th></tr>
{{ range .Rows }}<tr><td>{{ .Key }}</td><td>{{ .Value }}</td></tr>
{{ else }}<tr><td colspan="2">No sensors installed</td></tr>
{{ end }}</table>
<p>{{ .Recorded }} recorded snapshots{{ if .LastRecorded }}, last at {{ .LastRecorded }}{{ end }}</p>
`))
	template.Must(fragments.New("latency").Parse(fragmentStyle + `<table class="sh-table sh-latency">
<tr><th>Sensor</th><th>Read time</th></tr>
{{ range .Rows }}<tr><td>{{ .Key }}</td><td>{{ .Value }}</td></tr>
{{ end }}</table>
`))
}

type row struct{ Key, Value string }

func sortedRows(m map[string]string) []row {
	rows := make([]row, 0, len(m))
	for k, v := range m {
		rows = append(rows, row{k, v})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

func render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := fragments.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) systemReport(ctx context.Context) ([]byte, error) {
	info := sensors.HostInfo(ctx)
	uptime := "unknown"
	if v, ok := s.sensors.Read(ctx, "Uptime"); ok {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			now := time.Now()
			uptime = strings.TrimSpace(humanize.RelTime(now.Add(-d), now, "", ""))
		}
	}
	dbSize := "unavailable"
	if s.db != nil {
		if n, err := s.db.Size(); err == nil {
			dbSize = humanize.IBytes(uint64(n))
		}
	}
	return render("system", map[string]any{
		"Hostname":     s.Hostname(),
		"Version":      s.opts.Version,
		"Info":         info,
		"Memory":       humanize.IBytes(info.MemoryTotal),
		"Disk":         humanize.IBytes(info.DiskTotal),
		"Uptime":       uptime,
		"DatabaseSize": dbSize,
	})
}

func (s *Server) configReport(context.Context) ([]byte, error) {
	cfg := map[string]string{"hostname": s.Hostname()}
	for k, v := range s.opts.Config {
		cfg[k] = v
	}
	return render("config", map[string]any{"Rows": sortedRows(cfg)})
}

func (s *Server) readingsReport(ctx context.Context) ([]byte, error) {
	data := map[string]any{"Rows": sortedRows(s.sensors.ReadAll(ctx)), "Recorded": 0, "LastRecorded": ""}
	if s.db != nil {
		if snaps, err := s.db.ListReadings(time.Time{}); err == nil {
			data["Recorded"] = len(snaps)
			if len(snaps) > 0 {
				data["LastRecorded"] = snaps[len(snaps)-1].Timestamp.UTC().Format(time.RFC3339)
			}
		}
	}
	return render("readings", data)
}

func (s *Server) latencyReport(ctx context.Context) ([]byte, error) {
	rows := map[string]string{}
	for _, m := range s.sensors.Metrics() {
		start := time.Now()
		_, ok := s.sensors.Read(ctx, m)
		if !ok {
			rows[m] = "failed"
			continue
		}
		rows[m] = time.Since(start).Round(time.Microsecond).String()
	}
	return render("latency", map[string]any{"Rows": sortedRows(rows)})
}
