package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	API       APIConfig       `json:"api" yaml:"api"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Policy    PolicyConfig    `json:"policy" yaml:"policy"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type IngestConfig struct {
	Kafka KafkaConfig `json:"kafka" yaml:"kafka"`
	NATS  NATSConfig  `json:"nats" yaml:"nats"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type NATSConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
	Subject string `json:"subject" yaml:"subject"`
}

type DetectionConfig struct {
	// WindowMinutes is the default scan lookback when the caller does
	// not supply one.
	WindowMinutes int `json:"window_minutes" yaml:"window_minutes"`

	// RateSpikePerMinute fires rate_spike when an agent's request rate
	// strictly exceeds it. 120 is the primary detection pass default;
	// 60 is the conservative general-purpose value.
	RateSpikePerMinute    float64 `json:"rate_spike_per_minute" yaml:"rate_spike_per_minute"`
	ErrorRateThreshold    float64 `json:"error_rate_threshold" yaml:"error_rate_threshold"`
	PayloadSizeBytes      int64   `json:"payload_size_bytes" yaml:"payload_size_bytes"`
	SequenceMismatchRatio float64 `json:"sequence_mismatch_ratio" yaml:"sequence_mismatch_ratio"`

	// AnomalyScoreThreshold is in the decision function's native
	// units; vectors scoring below it are flagged.
	AnomalyScoreThreshold float64 `json:"anomaly_score_threshold" yaml:"anomaly_score_threshold"`
	Contamination         float64 `json:"contamination" yaml:"contamination"`
	Trees                 int     `json:"trees" yaml:"trees"`
	SampleSize            int     `json:"sample_size" yaml:"sample_size"`
	Seed                  int64   `json:"seed" yaml:"seed"`

	// ScanInterval enables the built-in periodic scan when > 0.
	ScanInterval time.Duration `json:"scan_interval" yaml:"scan_interval"`
}

// PolicyConfig carries the per-agent behavior baselines: which
// resources each agent_name may touch and, where known, the endpoint
// order a healthy run follows.
type PolicyConfig struct {
	ResourceMap     map[string][]string `json:"resource_map" yaml:"resource_map"`
	NormalSequences map[string][]string `json:"normal_sequences" yaml:"normal_sequences"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		API:      APIConfig{Enabled: true, Addr: ":8090"},
		Ingest: IngestConfig{
			Kafka: KafkaConfig{Enabled: false},
			NATS:  NATSConfig{Enabled: false, URL: "nats://127.0.0.1:4222", Subject: "agents.activity"},
		},
		Detection: DetectionConfig{
			WindowMinutes:         15,
			RateSpikePerMinute:    120,
			ErrorRateThreshold:    0.25,
			PayloadSizeBytes:      200000,
			SequenceMismatchRatio: 0.5,
			AnomalyScoreThreshold: -0.15,
			Contamination:         0.05,
			Trees:                 100,
			SampleSize:            256,
			Seed:                  42,
		},
		Policy: PolicyConfig{
			ResourceMap: map[string][]string{
				"DataAnalysisAgent":       {"telematics_api", "vectorstore", "maintenance_db"},
				"DiagnosisAgent":          {"vectorstore", "maintenance_db", "rca_db"},
				"SchedulingAgent":         {"scheduler_db", "service_center_api"},
				"CustomerEngagementAgent": {"sms_api", "voice_api", "customer_db"},
				"FeedbackAgent":           {"feedback_db", "maintenance_db"},
				"RCAAgent":                {"rca_db", "vectorstore", "manufacturing_db"},
				"UEBAAgent":               {"alert_db"},
			},
			NormalSequences: map[string][]string{
				"DataAnalysisAgent": {"/ingest", "/analyze", "/report"},
				"DiagnosisAgent":    {"/analyze", "/search_rca", "/report"},
				"SchedulingAgent":   {"/availability", "/book_slot", "/confirm"},
			},
		},
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:uebaguard.db?_pragma=busy_timeout(5000)"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Detection.WindowMinutes <= 0 {
		cfg.Detection.WindowMinutes = def.Detection.WindowMinutes
	}
	if cfg.Detection.RateSpikePerMinute <= 0 {
		cfg.Detection.RateSpikePerMinute = def.Detection.RateSpikePerMinute
	}
	if cfg.Detection.ErrorRateThreshold <= 0 {
		cfg.Detection.ErrorRateThreshold = def.Detection.ErrorRateThreshold
	}
	if cfg.Detection.PayloadSizeBytes <= 0 {
		cfg.Detection.PayloadSizeBytes = def.Detection.PayloadSizeBytes
	}
	if cfg.Detection.SequenceMismatchRatio <= 0 {
		cfg.Detection.SequenceMismatchRatio = def.Detection.SequenceMismatchRatio
	}
	if cfg.Detection.AnomalyScoreThreshold == 0 {
		cfg.Detection.AnomalyScoreThreshold = def.Detection.AnomalyScoreThreshold
	}
	if cfg.Detection.Contamination <= 0 {
		cfg.Detection.Contamination = def.Detection.Contamination
	}
	if cfg.Detection.Trees <= 0 {
		cfg.Detection.Trees = def.Detection.Trees
	}
	if cfg.Detection.SampleSize <= 0 {
		cfg.Detection.SampleSize = def.Detection.SampleSize
	}
	if cfg.Policy.ResourceMap == nil {
		cfg.Policy.ResourceMap = def.Policy.ResourceMap
	}
	if cfg.Policy.NormalSequences == nil {
		cfg.Policy.NormalSequences = def.Policy.NormalSequences
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = def.Storage.Driver
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Ingest.NATS.Enabled {
		if cfg.Ingest.NATS.URL == "" || cfg.Ingest.NATS.Subject == "" {
			return errors.New("ingest.nats requires url and subject")
		}
	}
	if cfg.Detection.Contamination <= 0 || cfg.Detection.Contamination >= 0.5 {
		return fmt.Errorf("detection.contamination must be in (0, 0.5): %v", cfg.Detection.Contamination)
	}
	if cfg.Detection.AnomalyScoreThreshold >= 0 {
		return errors.New("detection.anomaly_score_threshold must be negative")
	}
	if cfg.Detection.SequenceMismatchRatio <= 0 || cfg.Detection.SequenceMismatchRatio >= 1 {
		return errors.New("detection.sequence_mismatch_ratio must be in (0, 1)")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if info, err := os.Stat(path); err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
