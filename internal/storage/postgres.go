package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"uebaguard/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/uebaguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activity_logs (
			id BIGSERIAL PRIMARY KEY,
			ts TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			action TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			target_resource TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			payload_size BIGINT NOT NULL,
			latency_ms BIGINT NOT NULL,
			extra_json JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_agent ON activity_logs(agent_name)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			alert_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			agent_name TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			severity TEXT NOT NULL,
			evidence_json JSONB NOT NULL
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

func (s *postgresStore) AppendActivity(ctx context.Context, rec model.ActivityRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_logs (ts, agent_name, agent_id, action, endpoint, target_resource, status_code, payload_size, latency_ms, extra_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
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

func (s *postgresStore) ReadActivities(ctx context.Context) ([]model.ActivityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, agent_name, agent_id, action, endpoint, target_resource, status_code, payload_size, latency_ms, COALESCE(extra_json::text, '')
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

func (s *postgresStore) AppendAlert(ctx context.Context, alert model.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (alert_id, ts, agent_name, agent_id, reason, severity, evidence_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		alert.AlertID,
		alert.Timestamp.UTC(),
		alert.AgentName,
		alert.AgentID,
		alert.Reason,
		alert.Severity,
		encodeJSON(alert.Evidence),
	)
	return err
}

func (s *postgresStore) ReadAlerts(ctx context.Context) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT alert_id, ts, agent_name, agent_id, reason, severity, evidence_json::text
		FROM alerts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Alert
	for rows.Next() {
		var alert model.Alert
		var ts time.Time
		var evidenceJSON string
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
		alert.Timestamp = ts.UTC()
		_ = json.Unmarshal([]byte(evidenceJSON), &alert.Evidence)
		out = append(out, alert)
	}
	return out, rows.Err()
}
