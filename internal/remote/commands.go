// Package remote talks to sensor nodes: the command catalog, the per-call
// node client, the fan-out coordinator, the node registry and heartbeats.
package remote

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// LoginPath is the node endpoint that opens an authenticated session.
const LoginPath = "/atpro/login"

// Login form field names.
const (
	LoginUserField     = "login_username"
	LoginPasswordField = "login_password"
)

// AuthErrorMarker is the content signature a node returns when a request
// lacks a valid session.
const AuthErrorMarker = "Login Required - Sensor Authentication Failed"

// NoSensor is the sentinel body a node returns for a metric it cannot read.
const NoSensor = "NoSensor"

// Command identifies one node operation. Commands are defined at process
// start and never change.
type Command struct {
	Name      string // also the URL path segment
	Method    string
	NeedsAuth bool
	File      bool // payload is raw file content; uses the long file timeout
}

// Path returns the URL path for the command.
func (c Command) Path() string { return "/" + c.Name }

func (c Command) String() string { return c.Name }

func get(name string) Command     { return Command{Name: name, Method: http.MethodGet} }
func getAuth(name string) Command { return Command{Name: name, Method: http.MethodGet, NeedsAuth: true} }
func file(name string) Command {
	return Command{Name: name, Method: http.MethodGet, NeedsAuth: true, File: true}
}
func put(name string) Command { return Command{Name: name, Method: http.MethodPut, NeedsAuth: true} }

// Commands that skip the login handshake.
var (
	CmdCheckOnline    = get("CheckOnlineStatus")
	CmdGetHostName    = get("GetHostName")
	CmdSensorReadings = get("GetSensorReadings")
)

// Authenticated read commands.
var (
	CmdTestLogin        = getAuth("TestLogin")
	CmdSystemReport     = getAuth("GetSystemReport")
	CmdConfigReport     = getAuth("GetConfigReport")
	CmdReadingsReport   = getAuth("GetReadingsReport")
	CmdLatencyReport    = getAuth("GetLatencyReport")
	CmdDatabaseSize     = getAuth("GetDatabaseSize")
	CmdZippedLogsSize   = getAuth("GetZippedLogsSize")
	CmdDownloadDatabase = file("DownloadDatabase")
	CmdDownloadLogs     = file("DownloadZippedLogs")
)

// Node control commands.
var (
	CmdRestartServices = put("RestartServices")
	CmdRebootSystem    = put("RebootSystem")
	CmdShutdownSystem  = put("ShutdownSystem")
	CmdUpgradeOnline   = put("UpgradeOnline")
	CmdSetHostName     = put("SetHostName")
)

// Metrics that can be read individually, e.g. by live graphs.
var Metrics = []string{
	"CPUTemperature",
	"CPUUsage",
	"MemoryUsage",
	"DiskUsage",
	"LoadAverage",
	"Uptime",
	"EnvTemperature",
	"Pressure",
	"Altitude",
	"Humidity",
	"DewPoint",
	"Distance",
	"GasIndex",
	"ParticulateMatter",
	"Lumen",
	"UltraViolet",
	"Accelerometer",
	"Magnetometer",
	"Gyroscope",
}

var catalog = map[string]Command{}

func init() {
	for _, c := range []Command{
		CmdCheckOnline, CmdGetHostName, CmdSensorReadings,
		CmdTestLogin, CmdSystemReport, CmdConfigReport, CmdReadingsReport, CmdLatencyReport,
		CmdDatabaseSize, CmdZippedLogsSize, CmdDownloadDatabase, CmdDownloadLogs,
		CmdRestartServices, CmdRebootSystem, CmdShutdownSystem, CmdUpgradeOnline, CmdSetHostName,
	} {
		catalog[strings.ToLower(c.Name)] = c
	}
	for _, m := range Metrics {
		c := MetricCommand(m)
		catalog[strings.ToLower(c.Name)] = c
	}
}

// MetricCommand returns the unauthenticated single-value read for metric.
func MetricCommand(metric string) Command {
	return get("Get" + metric)
}

// IsMetric reports whether metric is a known single-value metric.
func IsMetric(metric string) bool {
	for _, m := range Metrics {
		if strings.EqualFold(m, metric) {
			return true
		}
	}
	return false
}

// Lookup finds a catalog command by name, case-insensitively.
func Lookup(name string) (Command, error) {
	c, ok := catalog[strings.ToLower(strings.TrimPrefix(name, "/"))]
	if !ok {
		return Command{}, fmt.Errorf("unknown node command %q", name)
	}
	return c, nil
}

// CatalogSize is the number of node commands the console knows, metrics included.
func CatalogSize() int { return len(catalog) }

// ControlCommands returns the PUT commands, sorted by name.
func ControlCommands() []Command {
	var out []Command
	for _, c := range catalog {
		if c.Method == http.MethodPut {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
