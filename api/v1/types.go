// Package v1 defines the public data types shared across all sensorhub layers.
package v1

import (
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Status enumerations
// ─────────────────────────────────────────────────────────────────────────────

// ResultStatus classifies the outcome of contacting a single node.
type ResultStatus string

const (
	ResultOK           ResultStatus = "ok"
	ResultAuthFailed   ResultStatus = "auth_failed"
	ResultOffline      ResultStatus = "offline"
	ResultUnknownError ResultStatus = "unknown_error"
)

// NodeStatus represents the connectivity state of a registered node.
type NodeStatus string

const (
	NodeOnline   NodeStatus = "online"
	NodeOffline  NodeStatus = "offline"
	NodeDegraded NodeStatus = "degraded"
)

// ReportKind identifies one of the combined HTML reports.
type ReportKind string

const (
	ReportSystem   ReportKind = "system"
	ReportConfig   ReportKind = "config"
	ReportReadings ReportKind = "readings"
	ReportLatency  ReportKind = "latency"
	ReportCombo    ReportKind = "combo"
)

// ReportKinds lists the four per-node report kinds in combo order.
var ReportKinds = []ReportKind{ReportSystem, ReportConfig, ReportReadings, ReportLatency}

// ArchiveKind identifies one of the combined zip archives.
type ArchiveKind string

const (
	ArchiveDatabases ArchiveKind = "databases"
	ArchiveLogs      ArchiveKind = "logs"
	ArchiveBigZip    ArchiveKind = "bigzip"
	ArchiveReports   ArchiveKind = "reports"
)

// ArchiveKinds lists every archive kind.
var ArchiveKinds = []ArchiveKind{ArchiveDatabases, ArchiveLogs, ArchiveBigZip, ArchiveReports}

// ─────────────────────────────────────────────────────────────────────────────
// Fan-out results
// ─────────────────────────────────────────────────────────────────────────────

// NodeResult is the outcome of one node call within a fan-out batch.
// It is created once by a worker and never mutated afterwards.
type NodeResult struct {
	Address      string        `json:"address"`
	DisplayName  string        `json:"display_name"`
	Payload      []byte        `json:"payload,omitempty"`
	Status       ResultStatus  `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
	Err          string        `json:"error,omitempty"`
}

// OK reports whether the node answered successfully.
func (r NodeResult) OK() bool { return r.Status == ResultOK }

// Less orders results by response time, then by address.
func (r NodeResult) Less(o NodeResult) bool {
	if r.ResponseTime != o.ResponseTime {
		return r.ResponseTime < o.ResponseTime
	}
	return r.Address < o.Address
}

// Credentials authenticate outbound calls to nodes that require a login.
type Credentials struct {
	Username string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"-"        yaml:"password" mapstructure:"password"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Runtime state types (persisted in BoltDB)
// ─────────────────────────────────────────────────────────────────────────────

// NodeInfo is the persisted runtime record for a registered node.
type NodeInfo struct {
	Address      string        `json:"address"`
	DisplayName  string        `json:"display_name"`
	Status       NodeStatus    `json:"status"`
	LastSeen     time.Time     `json:"last_seen"`
	ResponseTime time.Duration `json:"response_time"`
	FailCount    int           `json:"fail_count"`
}

// GenerationRecord is an immutable history entry for one report or archive
// regeneration.
type GenerationRecord struct {
	ID          string    `json:"id"`
	Artifact    string    `json:"artifact"` // report | archive
	Kind        string    `json:"kind"`
	Nodes       int       `json:"nodes"`
	Failed      int       `json:"failed"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Result      string    `json:"result"` // success | failure
	DurationMS  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
}

// ReadingSnapshot is one recorded set of sensor readings on a node.
type ReadingSnapshot struct {
	Timestamp time.Time         `json:"ts"`
	Values    map[string]string `json:"values"`
}

// LiveSample is a single polled value for the live graph.
type LiveSample struct {
	Timestamp time.Time `json:"timestamp"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Present   bool      `json:"present"`
}
