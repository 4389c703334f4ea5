package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uebaguard.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))
	require.Equal(t, 15, cfg.Detection.WindowMinutes)
	require.Equal(t, 120.0, cfg.Detection.RateSpikePerMinute)
	require.Equal(t, 0.25, cfg.Detection.ErrorRateThreshold)
	require.Equal(t, int64(200000), cfg.Detection.PayloadSizeBytes)
	require.Equal(t, 0.5, cfg.Detection.SequenceMismatchRatio)
	require.Equal(t, -0.15, cfg.Detection.AnomalyScoreThreshold)
	require.Equal(t, 0.05, cfg.Detection.Contamination)
	require.Equal(t, int64(42), cfg.Detection.Seed)
	require.Contains(t, cfg.Policy.ResourceMap, "SchedulingAgent")
	require.Equal(t, []string{"/ingest", "/analyze", "/report"}, cfg.Policy.NormalSequences["DataAnalysisAgent"])
	require.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
detection:
  window_minutes: 30
  rate_spike_per_minute: 60
storage:
  driver: file
  dsn: /tmp/ueba
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 30, cfg.Detection.WindowMinutes)
	require.Equal(t, 60.0, cfg.Detection.RateSpikePerMinute)
	// Untouched fields keep their defaults.
	require.Equal(t, 0.25, cfg.Detection.ErrorRateThreshold)
	require.Equal(t, -0.15, cfg.Detection.AnomalyScoreThreshold)
	require.Equal(t, "file", cfg.Storage.Driver)
	require.Contains(t, cfg.Policy.ResourceMap, "UEBAAgent")
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, `{"detection": {"window_minutes": 5}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Detection.WindowMinutes)
	require.Equal(t, 120.0, cfg.Detection.RateSpikePerMinute)
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeConfig(t, "   \n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detection.Contamination = 0.9
	require.Error(t, Validate(cfg))

	cfg = DefaultConfig()
	cfg.Detection.AnomalyScoreThreshold = 0.1
	require.Error(t, Validate(cfg))

	cfg = DefaultConfig()
	cfg.Ingest.Kafka.Enabled = true
	require.Error(t, Validate(cfg))

	cfg = DefaultConfig()
	cfg.API.Enabled = true
	cfg.API.Addr = ""
	require.Error(t, Validate(cfg))
}

func TestStaticManager(t *testing.T) {
	mgr := NewStaticManager(nil)
	require.NotNil(t, mgr.Get())
	require.Equal(t, "", mgr.Path())

	needs, err := mgr.NeedsReload()
	require.NoError(t, err)
	require.False(t, needs)

	cfg, err := mgr.Reload()
	require.NoError(t, err)
	require.Same(t, mgr.Get(), cfg)
}

func TestManagerReload(t *testing.T) {
	path := writeConfig(t, "detection:\n  window_minutes: 10\n")
	mgr, err := NewManager(path)
	require.NoError(t, err)
	require.Equal(t, 10, mgr.Get().Detection.WindowMinutes)

	require.NoError(t, os.WriteFile(path, []byte("detection:\n  window_minutes: 20\n"), 0o644))
	cfg, err := mgr.Reload()
	require.NoError(t, err)
	require.Equal(t, 20, cfg.Detection.WindowMinutes)
	require.Equal(t, 20, mgr.Get().Detection.WindowMinutes)
}
