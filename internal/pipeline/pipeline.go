// Package pipeline wires the parse and detect stages to their artifacts: the
// interchange tables, the incident report, run history, metrics and the audit
// trail.
package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"logwarden/internal/audit"
	"logwarden/internal/detect"
	"logwarden/internal/feature"
	"logwarden/internal/metrics"
	"logwarden/internal/parser"
	"logwarden/internal/report"
	"logwarden/internal/state"
	"logwarden/internal/tabular"
	"logwarden/internal/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Artifact names inside the reports directory
const (
	ParsedFile     = "parsed_logs.csv"
	SuspiciousFile = "suspicious_logs.csv"
	ReportFile     = "incident_report.txt"
)

// Pipeline runs the stages for one configuration
type Pipeline struct {
	cfg     *types.Config
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	audit   *audit.Logger

	newID func() string
	now   func() time.Time
}

// New creates a pipeline. cfg must already carry defaults (see config.LoadConfig).
func New(cfg *types.Config, log logrus.FieldLogger) *Pipeline {
	if log == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		log = l
	}
	return &Pipeline{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		audit:   audit.NewLogger(cfg.Output.AuditLogPath),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// ParsedPath is where the parse stage writes records
func (p *Pipeline) ParsedPath() string {
	return filepath.Join(p.cfg.Output.ReportsDir, ParsedFile)
}

// SuspiciousPath is where the detect stage writes events
func (p *Pipeline) SuspiciousPath() string {
	return filepath.Join(p.cfg.Output.ReportsDir, SuspiciousFile)
}

// ReportPath is where the detect stage writes the incident report
func (p *Pipeline) ReportPath() string {
	return filepath.Join(p.cfg.Output.ReportsDir, ReportFile)
}

// ParseResult is the outcome of the parse stage
type ParseResult struct {
	Input   string
	Output  string
	Records []types.RequestRecord
	Stats   parser.Stats
}

// DetectResult is the outcome of the detect stage
type DetectResult struct {
	RunID   string
	Records []types.RequestRecord
	Events  []types.SuspiciousEvent
	Report  types.IncidentReport
	Profile *feature.Accumulator
}

// Parse reads the access log and writes the parsed-record table. A missing or
// unreadable log is returned as types.ErrMissingInput / types.ErrUnreadableInput.
func (p *Pipeline) Parse() (*ParseResult, error) {
	input := p.cfg.Input.LogPath
	log := p.log.WithField("path", input)

	ap := parser.NewAccessParser(log)
	seq, err := ap.ParseFile(input)
	if err != nil {
		return nil, err
	}

	records := slices.Collect(seq)
	stats := ap.Stats()

	out := p.ParsedPath()
	if err := tabular.SaveRecords(out, records); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"lines":            stats.Lines,
		"records":          stats.Records,
		"grammar_mismatch": stats.GrammarMismatch,
		"bad_timestamp":    stats.BadTimestamp,
		"output":           out,
	}).Info("Parsed access log")

	p.metrics.ObserveParse(stats)
	p.writeMetrics()

	return &ParseResult{Input: input, Output: out, Records: records, Stats: stats}, nil
}

// Detect loads the parsed-record table and runs detection over it. The table
// being missing, unreadable or empty is fatal.
func (p *Pipeline) Detect() (*DetectResult, error) {
	return p.detect("detect", nil)
}

// Run parses the log, then detects over the fresh table
func (p *Pipeline) Run() (*ParseResult, *DetectResult, error) {
	parsed, err := p.Parse()
	if err != nil {
		return nil, nil, err
	}
	detected, err := p.detect("run", &parsed.Stats)
	if err != nil {
		return parsed, nil, err
	}
	return parsed, detected, nil
}

// detect runs detection. stats is nil when this process did not parse the log,
// in which case the skipped-line count is unknown and left out.
func (p *Pipeline) detect(stage string, stats *parser.Stats) (*DetectResult, error) {
	start := p.now()
	runID := p.newID()
	log := p.log.WithFields(logrus.Fields{"run_id": runID, "stage": stage})

	records, err := tabular.LoadRecords(p.ParsedPath())
	if err != nil {
		return nil, err
	}

	engine := detect.NewEngine(
		detect.WithBurstWindow(p.cfg.Detection.BurstWindow),
		detect.WithBurstThreshold(p.cfg.Detection.BurstThreshold),
		detect.WithDoSThreshold(p.cfg.Detection.DoSThreshold),
	)
	events := engine.Detect(records)

	if err := p.saveEvents(log, events); err != nil {
		return nil, err
	}

	rep := report.Build(events, p.cfg.Detection.ReportTopN)
	if err := p.writeReport(rep); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"records":      len(records),
		"events":       rep.TotalEvents,
		"distinct_ips": rep.DistinctIPs,
		"report":       p.ReportPath(),
	}).Info("Incident report saved")

	profile := feature.NewAccumulator()
	profile.AddAll(records)

	var skipped *int
	if stats != nil {
		n := stats.Skipped()
		skipped = &n
	}

	run := state.Run{
		ID:          runID,
		StartedAt:   start,
		Input:       p.ParsedPath(),
		Records:     len(records),
		Skipped:     skipped,
		Events:      len(events),
		DistinctIPs: rep.DistinctIPs,
	}
	p.saveRun(log, run, events, profile.GetAll())

	p.metrics.ObserveReport(len(records), events, rep)
	p.metrics.LastRunTime.Set(float64(p.now().Unix()))
	p.metrics.LastRunDuration.Set(p.now().Sub(start).Seconds())
	p.writeMetrics()

	entry := audit.Entry{
		RunID:       runID,
		Timestamp:   start.UTC(),
		Stage:       stage,
		Input:       p.ParsedPath(),
		Records:     len(records),
		Skipped:     skipped,
		Events:      len(events),
		DistinctIPs: rep.DistinctIPs,
		Reasons:     reasonCounts(events),
		Report:      p.ReportPath(),
	}
	if err := p.audit.Log(entry); err != nil {
		log.WithError(err).Warn("Failed to write to audit log")
	} else {
		log.WithField("audit", p.audit.Path()).Debug("Audit entry written")
	}

	return &DetectResult{
		RunID:   runID,
		Records: records,
		Events:  events,
		Report:  rep,
		Profile: profile,
	}, nil
}

// Stats summarizes the current parsed-record and suspicious-event tables
func (p *Pipeline) Stats() (feature.Summary, error) {
	records, err := tabular.LoadRecords(p.ParsedPath())
	if err != nil {
		return feature.Summary{}, err
	}
	events, err := tabular.LoadEvents(p.SuspiciousPath())
	if err != nil {
		return feature.Summary{}, fmt.Errorf("%w: %v", types.ErrUnreadableInput, err)
	}

	acc := feature.NewAccumulator()
	acc.AddAll(records)
	return acc.Summarize(events, p.cfg.Detection.ReportTopN, p.cfg.Detection.DoSThreshold), nil
}

// History returns the most recent runs and the IPs flagged most across them
func (p *Pipeline) History(limit int) ([]state.Run, []state.TopAttacker, error) {
	store, err := state.NewStore(p.cfg.Output.DBPath)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	runs, err := store.ListRuns(limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list runs: %w", err)
	}
	top, err := store.TopAttackers(limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load top attackers: %w", err)
	}
	return runs, top, nil
}

// RunSummary rebuilds the statistics of a stored run from its events and IP
// profiles. Status and per-minute counts are not stored and come back empty.
func (p *Pipeline) RunSummary(id string) (state.Run, feature.Summary, error) {
	store, err := state.NewStore(p.cfg.Output.DBPath)
	if err != nil {
		return state.Run{}, feature.Summary{}, err
	}
	defer store.Close()

	run, err := store.LoadRun(id)
	if err != nil {
		return state.Run{}, feature.Summary{}, err
	}
	events, err := store.LoadEvents(id)
	if err != nil {
		return state.Run{}, feature.Summary{}, fmt.Errorf("failed to load events of %s: %w", id, err)
	}
	profiles, err := store.LoadProfiles(id)
	if err != nil {
		return state.Run{}, feature.Summary{}, fmt.Errorf("failed to load profiles of %s: %w", id, err)
	}

	acc := feature.NewAccumulator()
	acc.ReplaceAll(profiles)
	return run, acc.Summarize(events, p.cfg.Detection.ReportTopN, p.cfg.Detection.DoSThreshold), nil
}

// saveEvents writes the suspicious-event table. With no events the table is
// not written and a stale one from an earlier run is removed.
func (p *Pipeline) saveEvents(log logrus.FieldLogger, events []types.SuspiciousEvent) error {
	path := p.SuspiciousPath()
	if len(events) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale %s: %w", path, err)
		}
		log.Info("No suspicious logs detected.")
		return nil
	}
	if err := tabular.SaveEvents(path, events); err != nil {
		return err
	}
	log.WithField("path", path).Info("Suspicious logs saved")
	return nil
}

func (p *Pipeline) writeReport(rep types.IncidentReport) error {
	path := p.ReportPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := report.Write(f, rep); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// saveRun records the run in the history store. History is best effort: a
// failing store never fails the run.
func (p *Pipeline) saveRun(log logrus.FieldLogger, run state.Run, events []types.SuspiciousEvent, vectors []*feature.FeatureVector) {
	store, err := state.NewStore(p.cfg.Output.DBPath)
	if err != nil {
		log.WithError(err).Error("Failed to initialize state store")
		return
	}
	defer store.Close()

	if err := store.SaveRun(run, events, vectors); err != nil {
		log.WithError(err).Error("Failed to save run")
		return
	}
	log.WithField("db", p.cfg.Output.DBPath).Debug("Run saved")
}

func (p *Pipeline) writeMetrics() {
	if err := p.metrics.WriteFile(p.cfg.Output.MetricsPath); err != nil {
		p.log.WithError(err).Warn("Failed to write metrics")
	}
}

func reasonCounts(events []types.SuspiciousEvent) map[string]int {
	if len(events) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.Reason.String()]++
	}
	return counts
}
