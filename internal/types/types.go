package types

import (
	"errors"
	"strings"
	"time"
)

// TimeLayout is how timestamps are written to every artifact (CSV, report, store)
const TimeLayout = "2006-01-02 15:04:05-07:00"

// Fatal input conditions. A run that hits one of these stops with a non-zero exit.
var (
	ErrMissingInput    = errors.New("input not found")
	ErrUnreadableInput = errors.New("input unreadable")
	ErrEmptyInput      = errors.New("input contains no records")
)

// RequestRecord is one decoded access log line
type RequestRecord struct {
	IP     string    `json:"ip"`
	Time   time.Time `json:"time"`
	Method string    `json:"method"`
	URL    string    `json:"url"`
	Status int       `json:"status"`
	Size   int64     `json:"size"`
}

// IsFailedAuth reports whether the response was 401 or 403
func (r RequestRecord) IsFailedAuth() bool {
	return r.Status == 401 || r.Status == 403
}

// Reason tags why a record was flagged
type Reason int

const (
	ReasonFailedLogin Reason = iota
	ReasonBruteForceBurst
	ReasonSQLInjection
	ReasonXSS
	ReasonDoS
)

// Reasons lists every reason in rule-application order.
var Reasons = []Reason{
	ReasonFailedLogin,
	ReasonBruteForceBurst,
	ReasonSQLInjection,
	ReasonXSS,
	ReasonDoS,
}

var reasonTags = [...]string{"FailedLogin", "BruteForceBurst", "SQLInjection", "XSS", "DoS"}

var reasonLabels = [...]string{
	"Failed login / brute-force",
	"Brute-force attempt (burst detection)",
	"SQL Injection attempt",
	"XSS attempt",
	"DoS - High traffic from single IP",
}

// String returns the stable tag stored in the reason column
func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonTags) {
		return "Unknown"
	}
	return reasonTags[r]
}

// Label returns the human readable description used in reports
func (r Reason) Label() string {
	if r < 0 || int(r) >= len(reasonLabels) {
		return "Unknown"
	}
	return reasonLabels[r]
}

// ParseReason maps a tag (case-insensitive) back to its Reason
func ParseReason(s string) (Reason, bool) {
	for i, tag := range reasonTags {
		if strings.EqualFold(tag, s) {
			return Reason(i), true
		}
	}
	return 0, false
}

// SuspiciousEvent is a record tagged with the single rule it matched
type SuspiciousEvent struct {
	RequestRecord
	Reason Reason `json:"reason"`
}

// Key identifies an event across every output field, reason included.
type Key struct {
	IP     string
	Time   string
	Method string
	URL    string
	Status int
	Size   int64
	Reason Reason
}

// Key returns the dedup key of the event
func (e SuspiciousEvent) Key() Key {
	return Key{
		IP:     e.IP,
		Time:   e.Time.Format(time.RFC3339Nano),
		Method: e.Method,
		URL:    e.URL,
		Status: e.Status,
		Size:   e.Size,
		Reason: e.Reason,
	}
}

// ReportSection lists the leading events for one reason
type ReportSection struct {
	Reason Reason
	Events []SuspiciousEvent
}

// IncidentReport summarizes a detection run. It is derived from the event set
// and never stored as the source of truth.
type IncidentReport struct {
	TotalEvents int
	DistinctIPs int
	Sections    []ReportSection
}

// Config represents the application configuration
type Config struct {
	Input struct {
		LogPath string `yaml:"log_path"`
	} `yaml:"input"`

	Output struct {
		ReportsDir   string `yaml:"reports_dir"`
		DBPath       string `yaml:"db_path"`
		MetricsPath  string `yaml:"metrics_path"`
		AuditLogPath string `yaml:"audit_log_path"`
	} `yaml:"output"`

	Detection struct {
		BurstWindow    time.Duration `yaml:"burst_window"`
		BurstThreshold int           `yaml:"burst_threshold"` // flagged when count > threshold
		DoSThreshold   int           `yaml:"dos_threshold"`   // flagged when count > threshold
		ReportTopN     int           `yaml:"report_top_n"`
	} `yaml:"detection"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text, json
	} `yaml:"logging"`
}
