package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/gpio-node/internal/status"
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
	"deref": func(b *bool) bool { return b != nil && *b },
	"onOff": func(v bool) string {
		if v {
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
<title>GPIO Node {{.NodeID}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>GPIO Node <small>{{.NodeID}}</small></h1>

{{range .Devices}}
<h2>{{.Name}} <small>({{.Kind}}{{if .Button}}, button {{if deref .Button}}installed{{else}}unavailable{{end}}{{end}})</small></h2>
<table>
{{range $param, $on := .Params}}<tr><th>{{$param}}</th><td class="{{if $on}}on{{else}}off{{end}}">{{onOff $on}}</td></tr>
{{end}}</table>
{{else}}
<p>No devices configured.</p>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Config.LocalBroker}}<tr><th>Local broker</th><td>{{.Config.LocalBroker}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Writes</th><td>{{.Counts.Writes}}</td></tr>
<tr><th>Dropped writes</th><td>{{.Counts.DroppedWrites}}</td></tr>
<tr><th>Reports</th><td>{{.Counts.Reports}}</td></tr>
<tr><th>Alerts</th><td>{{.Counts.Alerts}}</td></tr>
<tr><th>Button events</th><td>{{.Counts.ButtonEvents}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>GPIO</th><td>{{.Config.GPIOBackend}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/params">params</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Devices []status.DeviceJSON
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Devices:  status.Devices(snap),
	}
	return indexTmpl.Execute(w, data)
}
