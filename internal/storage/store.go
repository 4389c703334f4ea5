// Package storage persists the two append-only sequences the detector
// depends on: activity records and alerts. Every driver honors the
// same contract: appends preserve insertion order, reads return the
// full history in append order, and an uninitialized store reads as
// empty rather than failing.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"uebaguard/internal/config"
	"uebaguard/internal/model"
)

type Store interface {
	Init(ctx context.Context) error
	Close() error
	AppendActivity(ctx context.Context, rec model.ActivityRecord) error
	ReadActivities(ctx context.Context) ([]model.ActivityRecord, error)
	AppendAlert(ctx context.Context, alert model.Alert) error
	ReadAlerts(ctx context.Context) ([]model.Alert, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	case "redis":
		return NewRedis(cfg.DSN)
	case "file":
		return NewFile(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver: " + cfg.Driver)
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func decodeExtra(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" || raw == "null" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
