// Package metrics exposes run counters in the Prometheus text format. The
// batch tool has no listener; the registry is written to a file for the node
// exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"logwarden/internal/parser"
	"logwarden/internal/types"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of one process. The parse collectors are only
// registered once a parse pass is observed, so a detect-only process never
// reports zero lines read.
type Metrics struct {
	registry  *prometheus.Registry
	parseOnce sync.Once

	LinesRead       prometheus.Counter
	RecordsParsed   prometheus.Counter
	LinesSkipped    *prometheus.CounterVec
	RecordsAnalyzed prometheus.Gauge
	EventsDetected  *prometheus.CounterVec
	DistinctIPs     prometheus.Gauge
	LastRunTime     prometheus.Gauge
	LastRunDuration prometheus.Gauge
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LinesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "lines_read_total",
			Help:      "Access log lines read",
		}),
		RecordsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "records_parsed_total",
			Help:      "Lines decoded into request records",
		}),
		LinesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "lines_skipped_total",
			Help:      "Lines dropped by cause",
		}, []string{"cause"}),
		RecordsAnalyzed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "logwarden",
			Name:      "records_analyzed",
			Help:      "Parsed records the last detection run analyzed",
		}),
		EventsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "events_detected_total",
			Help:      "Suspicious events after deduplication, by reason",
		}, []string{"reason"}),
		DistinctIPs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "logwarden",
			Name:      "suspicious_ips",
			Help:      "Distinct IPs among the events of the last run",
		}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "logwarden",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		LastRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "logwarden",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
	}

	m.registry.MustRegister(
		m.RecordsAnalyzed,
		m.EventsDetected,
		m.DistinctIPs,
		m.LastRunTime,
		m.LastRunDuration,
	)
	return m
}

// ObserveParse adds the counters of one parse pass
func (m *Metrics) ObserveParse(s parser.Stats) {
	m.parseOnce.Do(func() {
		m.registry.MustRegister(m.LinesRead, m.RecordsParsed, m.LinesSkipped)
	})
	m.LinesRead.Add(float64(s.Lines))
	m.RecordsParsed.Add(float64(s.Records))
	m.LinesSkipped.WithLabelValues("grammar").Add(float64(s.GrammarMismatch))
	m.LinesSkipped.WithLabelValues("timestamp").Add(float64(s.BadTimestamp))
}

// ObserveReport records the outcome of a detection run over records
func (m *Metrics) ObserveReport(records int, events []types.SuspiciousEvent, r types.IncidentReport) {
	m.RecordsAnalyzed.Set(float64(records))
	for _, reason := range types.Reasons {
		m.EventsDetected.WithLabelValues(reason.String())
	}
	for _, e := range events {
		m.EventsDetected.WithLabelValues(e.Reason.String()).Inc()
	}
	m.DistinctIPs.Set(float64(r.DistinctIPs))
}

// WriteFile atomically writes the registry to path
func (m *Metrics) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
