package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"logwarden/internal/types"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultLogPath        = "data/sample.log"
	DefaultReportsDir     = "reports"
	DefaultBurstWindow    = 5 * time.Minute
	DefaultBurstThreshold = 3
	DefaultDoSThreshold   = 30
	DefaultReportTopN     = 10
)

// LoadConfig reads the configuration from the given path. A missing file is not
// an error: defaults and environment overrides still apply.
func LoadConfig(path string) (*types.Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg types.Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults only
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	applyEnv(&cfg)
	validateConfig(&cfg)
	if err := checkConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or environment is present
func Default() *types.Config {
	var cfg types.Config
	validateConfig(&cfg)
	return &cfg
}

func applyEnv(cfg *types.Config) {
	if v := getEnv("LOGWARDEN_INPUT"); v != "" {
		cfg.Input.LogPath = v
	}
	if v := getEnv("LOGWARDEN_REPORTS_DIR"); v != "" {
		cfg.Output.ReportsDir = v
	}
	if v := getEnv("LOGWARDEN_DB_PATH"); v != "" {
		cfg.Output.DBPath = v
	}
	if v := getEnv("LOGWARDEN_METRICS_PATH"); v != "" {
		cfg.Output.MetricsPath = v
	}
	if v := getEnv("LOGWARDEN_AUDIT_LOG_PATH"); v != "" {
		cfg.Output.AuditLogPath = v
	}
	if v := getEnv("LOGWARDEN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getEnv("LOGWARDEN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := getEnv("LOGWARDEN_BURST_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detection.BurstWindow = d
		}
	}
	if v := getEnv("LOGWARDEN_BURST_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detection.BurstThreshold = n
		}
	}
	if v := getEnv("LOGWARDEN_DOS_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detection.DoSThreshold = n
		}
	}
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// validateConfig applies defaults
func validateConfig(cfg *types.Config) {
	if cfg.Input.LogPath == "" {
		cfg.Input.LogPath = DefaultLogPath
	}
	if cfg.Output.ReportsDir == "" {
		cfg.Output.ReportsDir = DefaultReportsDir
	}
	if cfg.Output.DBPath == "" {
		cfg.Output.DBPath = filepath.Join(cfg.Output.ReportsDir, "logwarden.db")
	}
	if cfg.Output.MetricsPath == "" {
		cfg.Output.MetricsPath = filepath.Join(cfg.Output.ReportsDir, "logwarden.prom")
	}
	if cfg.Output.AuditLogPath == "" {
		cfg.Output.AuditLogPath = filepath.Join(cfg.Output.ReportsDir, "audit.log")
	}

	if cfg.Detection.BurstWindow == 0 {
		cfg.Detection.BurstWindow = DefaultBurstWindow
	}
	if cfg.Detection.BurstThreshold == 0 {
		cfg.Detection.BurstThreshold = DefaultBurstThreshold
	}
	if cfg.Detection.DoSThreshold == 0 {
		cfg.Detection.DoSThreshold = DefaultDoSThreshold
	}
	if cfg.Detection.ReportTopN == 0 {
		cfg.Detection.ReportTopN = DefaultReportTopN
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// checkConfig rejects values no run can work with
func checkConfig(cfg *types.Config) error {
	if cfg.Detection.BurstWindow < 0 {
		return fmt.Errorf("detection.burst_window must be positive, got %s", cfg.Detection.BurstWindow)
	}
	if cfg.Detection.BurstThreshold < 0 || cfg.Detection.DoSThreshold < 0 {
		return fmt.Errorf("detection thresholds must not be negative")
	}
	if cfg.Detection.ReportTopN < 0 {
		return fmt.Errorf("detection.report_top_n must not be negative")
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	return nil
}
