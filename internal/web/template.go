package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/amp-sequencer/internal/sequencer"
	"github.com/sweeney/amp-sequencer/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"stateClass": func(s sequencer.State) string {
		switch s {
		case sequencer.StateOn:
			return "on"
		case sequencer.StateOff:
			return "off"
		default:
			return "busy"
		}
	},
	"micros": func(d time.Duration) int64 {
		return d.Microseconds()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Amp Sequencer</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.busy { color: orange; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Amp Sequencer</h1>

<h2>Power</h2>
<table>
<tr><th>State</th><td id="state" class="{{stateClass .Sequencer.State}}">{{.Sequencer.State}}</td></tr>
<tr><th>Phase timer</th><td>{{.Sequencer.Timer}}</td></tr>
<tr><th>LED</th><td>{{if .Sequencer.LED}}on{{else}}off{{end}}</td></tr>
{{range .Relays}}<tr><th>{{.Name}}</th><td class="{{if .On}}on{{else}}off{{end}}">{{if .On}}energized{{else}}open{{end}}</td></tr>
{{end}}</table>

<h2>Scheduler</h2>
<table>
<tr><th>Tick</th><td>{{.TickMs}}ms</td></tr>
<tr><th>Steps</th><td>{{.Sequencer.Steps}}</td></tr>
<tr><th>Transitions</th><td>{{.Transitions}}</td></tr>
{{if .Last}}<tr><th>Last</th><td>{{.Last.From}} &rarr; {{.Last.To}} at {{.Last.Tick}}ms</td></tr>{{end}}
{{if .Sequencer.Resets}}<tr><th>Resets</th><td class="disconnected">{{.Sequencer.Resets}}</td></tr>{{end}}
</table>
<table>
<tr><th>Task</th><th>Period</th><th>Runs</th><th>Coalesced</th><th>Last run</th></tr>
{{range .Tasks}}<tr><td>{{.Name}}</td><td>{{.Period}}</td><td>{{.Runs}}</td><td>{{.Coalesced}}</td><td>{{micros .LastDuration}}&micro;s</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Dropped</th><td>{{.QueueDropped}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Step</th><td>{{.Config.StepMs}}ms</td></tr>
<tr><th>Phases</th><td>{{.Config.LiveResistorSteps}} / {{.Config.PrechargeSteps}} / {{.Config.ShutdownBlinkSteps}} steps</td></tr>
<tr><th>Settle</th><td>{{.Config.SettleMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func formatUptime(d time.Duration) string {
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
}

type relayRow struct {
	Name string
	On   bool
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Relays []relayRow
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	for _, r := range sequencer.Relays {
		data.Relays = append(data.Relays, relayRow{Name: r.String(), On: snap.Sequencer.Relay(r)})
	}
	indexTmpl.Execute(w, data)
}
