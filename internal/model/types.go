package model

import (
	"fmt"
	"time"
)

const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// Reason tags identify which detector raised an alert. ML anomaly
// alerts carry the score inline, see MLAnomalyReason.
const (
	ReasonUnauthorizedAccess = "unauthorized_resource_access"
	ReasonRateSpike          = "rate_spike"
	ReasonHighErrorRate      = "high_error_rate"
	ReasonLargePayload       = "large_payload_possible_exfiltration"
	ReasonUnusualSequence    = "unusual_endpoint_sequence"
)

// MLAnomalyReason formats the reason tag for a baseline-model anomaly,
// carrying the decision-function score to three decimal places.
func MLAnomalyReason(score float64) string {
	return fmt.Sprintf("ml_anomaly_score=%.3f", score)
}

// ActivityRecord is one logged request/action by a worker agent. The
// timestamp is kept in its wire form; Time parses it on demand so a
// malformed value degrades to exclusion from time-based computations
// instead of failing a scan.
type ActivityRecord struct {
	Timestamp      string         `json:"timestamp"`
	AgentName      string         `json:"agent_name"`
	AgentID        string         `json:"agent_id"`
	Action         string         `json:"action"`
	Endpoint       string         `json:"endpoint"`
	TargetResource string         `json:"target_resource"`
	StatusCode     int            `json:"status_code"`
	PayloadSize    int64          `json:"payload_size"`
	LatencyMS      int64          `json:"latency_ms"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Time parses the record timestamp in UTC. ok is false when the value
// is missing or unparseable.
func (r ActivityRecord) Time() (time.Time, bool) {
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

// IsError reports whether the record outcome is an error status.
func (r ActivityRecord) IsError() bool {
	return r.StatusCode >= 400
}

// Alert is one persisted detection. Alerts are write-once: composed
// inside a scan, appended to the alert store, never edited.
type Alert struct {
	AlertID   string         `json:"alert_id"`
	Timestamp time.Time      `json:"timestamp"`
	AgentName string         `json:"agent_name"`
	AgentID   string         `json:"agent_id"`
	Reason    string         `json:"reason"`
	Severity  string         `json:"severity"`
	Evidence  ActivityRecord `json:"evidence"`
}
