package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"uebaguard/internal/model"
)

// fileStore keeps each sequence as a JSON array on disk, the format
// the original agent data files use. Appends rewrite the whole file;
// the detector serializes access so the read-modify-write cycle never
// interleaves.
type fileStore struct {
	dir string
}

func NewFile(dsn string) (Store, error) {
	if dsn == "" {
		dsn = "data"
	}
	return &fileStore{dir: dsn}, nil
}

func (s *fileStore) Init(ctx context.Context) error {
	return os.MkdirAll(s.dir, 0o755)
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) activityPath() string {
	return filepath.Join(s.dir, "agent_activity_logs.json")
}

func (s *fileStore) alertPath() string {
	return filepath.Join(s.dir, "ueba_alerts.json")
}

func (s *fileStore) AppendActivity(ctx context.Context, rec model.ActivityRecord) error {
	records, err := s.ReadActivities(ctx)
	if err != nil {
		return err
	}
	records = append(records, rec)
	return writeJSONFile(s.activityPath(), records)
}

func (s *fileStore) ReadActivities(ctx context.Context) ([]model.ActivityRecord, error) {
	var records []model.ActivityRecord
	if err := readJSONFile(s.activityPath(), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *fileStore) AppendAlert(ctx context.Context, alert model.Alert) error {
	alerts, err := s.ReadAlerts(ctx)
	if err != nil {
		return err
	}
	alerts = append(alerts, alert)
	return writeJSONFile(s.alertPath(), alerts)
}

func (s *fileStore) ReadAlerts(ctx context.Context) ([]model.Alert, error) {
	var alerts []model.Alert
	if err := readJSONFile(s.alertPath(), &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// readJSONFile treats a missing file as an empty sequence, not an
// error.
func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSONFile(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
