package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"uebaguard/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:uebaguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activity_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			action TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			target_resource TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			payload_size INTEGER NOT NULL,
			latency_ms INTEGER NOT NULL,
			extra_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_agent ON activity_logs(agent_name)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			severity TEXT NOT NULL,
			evidence_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) AppendActivity(ctx context.Context, rec model.ActivityRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_logs (ts, agent_name, agent_id, action, endpoint, target_resource, status_code, payload_size, latency_ms, extra_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp,
		rec.AgentName,
		rec.AgentID,
		rec.Action,
		rec.Endpoint,
		rec.TargetResource,
		rec.StatusCode,
		rec.PayloadSize,
		rec.LatencyMS,
		encodeJSON(rec.Extra),
	)
	return err
}

func (s *sqliteStore) ReadActivities(ctx context.Context) ([]model.ActivityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, agent_name, agent_id, action, endpoint, target_resource, status_code, payload_size, latency_ms, extra_json
		FROM activity_logs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ActivityRecord
	for rows.Next() {
		var rec model.ActivityRecord
		var extraJSON string
		if err := rows.Scan(
			&rec.Timestamp,
			&rec.AgentName,
			&rec.AgentID,
			&rec.Action,
			&rec.Endpoint,
			&rec.TargetResource,
			&rec.StatusCode,
			&rec.PayloadSize,
			&rec.LatencyMS,
			&extraJSON,
		); err != nil {
			return nil, err
		}
		rec.Extra = decodeExtra(extraJSON)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendAlert(ctx context.Context, alert model.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (alert_id, ts, agent_name, agent_id, reason, severity, evidence_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		alert.AlertID,
		alert.Timestamp.UTC().Format(time.RFC3339Nano),
		alert.AgentName,
		alert.AgentID,
		alert.Reason,
		alert.Severity,
		encodeJSON(alert.Evidence),
	)
	return err
}

func (s *sqliteStore) ReadAlerts(ctx context.Context) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT alert_id, ts, agent_name, agent_id, reason, severity, evidence_json
		FROM alerts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Alert
	for rows.Next() {
		var alert model.Alert
		var ts, evidenceJSON string
		if err := rows.Scan(
			&alert.AlertID,
			&ts,
			&alert.AgentName,
			&alert.AgentID,
			&alert.Reason,
			&alert.Severity,
			&evidenceJSON,
		); err != nil {
			return nil, err
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			alert.Timestamp = parsed.UTC()
		}
		_ = json.Unmarshal([]byte(evidenceJSON), &alert.Evidence)
		out = append(out, alert)
	}
	return out, rows.Err()
}
