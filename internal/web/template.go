package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/sensor-loop/internal/logic"
	"github.com/sweeney/sensor-loop/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"verdict": func(v logic.Verdict) string {
		return status.VerdictLabel(v)
	},
	"verdictClass": func(v logic.Verdict) string {
		switch v {
		case logic.VerdictNormal:
			return "normal"
		case logic.VerdictBelow, logic.VerdictAbove:
			return "alert"
		}
		return "unknown"
	},
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sensor Loop</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.normal { color: green; font-weight: bold; }
.alert { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Sensor Loop</h1>

{{range .Loops}}
<h2>{{.Name}}</h2>
<table>
<tr><th>Verdict</th><td class="{{verdictClass .Verdict}}">{{verdict .Verdict}}</td></tr>
<tr><th>Value</th><td>{{if .HasReading}}{{.Value}} {{.Unit}}{{else}}-{{end}}</td></tr>
<tr><th>Thresholds</th><td>{{.Thresholds.Low}} .. {{.Thresholds.High}} (hysteresis {{.Thresholds.Hysteresis}})</td></tr>
<tr><th>Actuator {{.ActuatorPin}}</th><td>{{onOff .Actuator}}</td></tr>
<tr><th>Enabled</th><td>{{if .Enabled}}yes{{else}}no{{end}}</td></tr>
<tr><th>Hold</th><td>{{if .Hold}}yes{{else}}no{{end}}</td></tr>
<tr><th>Worker</th><td>{{.WorkerState}}</td></tr>
<tr><th>Cycles / skipped / transitions</th><td>{{.Cycles}} / {{.Skipped}} / {{.Transitions}}</td></tr>
<tr><th>Missed periods</th><td>{{.Missed}}</td></tr>
</table>
{{else}}
<p>No loops reported yet.</p>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Config</th><td>{{.Config.ConfigPath}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
