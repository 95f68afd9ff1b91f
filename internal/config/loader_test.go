package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logwarden.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultLogPath, cfg.Input.LogPath)
	assert.Equal(t, DefaultReportsDir, cfg.Output.ReportsDir)
	assert.Equal(t, filepath.Join("reports", "logwarden.db"), cfg.Output.DBPath)
	assert.Equal(t, 5*time.Minute, cfg.Detection.BurstWindow)
	assert.Equal(t, 3, cfg.Detection.BurstThreshold)
	assert.Equal(t, 30, cfg.Detection.DoSThreshold)
	assert.Equal(t, 10, cfg.Detection.ReportTopN)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultLogPath, cfg.Input.LogPath)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfig(t, `
input:
  log_path: /var/log/nginx/access.log
output:
  reports_dir: /tmp/out
detection:
  burst_window: 10m
  burst_threshold: 5
  dos_threshold: 100
logging:
  level: debug
  format: json
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/log/nginx/access.log", cfg.Input.LogPath)
	assert.Equal(t, "/tmp/out", cfg.Output.ReportsDir)
	assert.Equal(t, filepath.Join("/tmp/out", "audit.log"), cfg.Output.AuditLogPath)
	assert.Equal(t, 10*time.Minute, cfg.Detection.BurstWindow)
	assert.Equal(t, 5, cfg.Detection.BurstThreshold)
	assert.Equal(t, 100, cfg.Detection.DoSThreshold)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("LOGWARDEN_INPUT", "/data/other.log")
	t.Setenv("LOGWARDEN_BURST_WINDOW", "1m")
	t.Setenv("LOGWARDEN_DOS_THRESHOLD", "7")
	t.Setenv("LOGWARDEN_LOG_LEVEL", " warn ")

	cfg, err := LoadConfig(writeConfig(t, "input:\n  log_path: /from/file.log\n"))
	require.NoError(t, err)

	assert.Equal(t, "/data/other.log", cfg.Input.LogPath)
	assert.Equal(t, time.Minute, cfg.Detection.BurstWindow)
	assert.Equal(t, 7, cfg.Detection.DoSThreshold)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":       "input: [",
		"bad format":     "logging:\n  format: xml\n",
		"negative dos":   "detection:\n  dos_threshold: -1\n",
		"negative burst": "detection:\n  burst_window: -5m\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultReportTopN, cfg.Detection.ReportTopN)
	assert.Equal(t, filepath.Join("reports", "logwarden.prom"), cfg.Output.MetricsPath)
}
