package validate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValidRecord(t *testing.T) {
	v, err := NewRecordValidator()
	require.NoError(t, err)

	rec, err := v.Parse([]byte(`{
		"timestamp": "2026-08-20T10:00:00Z",
		"agent_name": "SchedulingAgent",
		"agent_id": "sch-1",
		"action": "invoke",
		"endpoint": "/book_slot",
		"target_resource": "scheduler_db",
		"status_code": 200,
		"payload_size": 128,
		"latency_ms": 12
	}`))
	require.NoError(t, err)
	require.Equal(t, "SchedulingAgent", rec.AgentName)
	require.Equal(t, 200, rec.StatusCode)
	require.Equal(t, int64(128), rec.PayloadSize)
}

func TestParseOptionalFieldsDefaultToZero(t *testing.T) {
	v, err := NewRecordValidator()
	require.NoError(t, err)

	rec, err := v.Parse([]byte(`{
		"timestamp": "2026-08-20T10:00:00Z",
		"agent_name": "FeedbackAgent",
		"agent_id": "fb-1",
		"action": "invoke",
		"endpoint": "/feedback",
		"target_resource": "feedback_db",
		"status_code": 200
	}`))
	require.NoError(t, err)
	require.Zero(t, rec.PayloadSize)
	require.Zero(t, rec.LatencyMS)
}

func TestParseRejects(t *testing.T) {
	v, err := NewRecordValidator()
	require.NoError(t, err)

	cases := map[string]string{
		"not json":         `{"timestamp":`,
		"missing required": `{"timestamp": "2026-08-20T10:00:00Z", "agent_name": "A"}`,
		"wrong type":       `{"timestamp": "2026-08-20T10:00:00Z", "agent_name": "A", "agent_id": "a-1", "action": "x", "endpoint": "/e", "target_resource": "r", "status_code": "200"}`,
		"unknown field":    `{"timestamp": "2026-08-20T10:00:00Z", "agent_name": "A", "agent_id": "a-1", "action": "x", "endpoint": "/e", "target_resource": "r", "status_code": 200, "color": "red"}`,
		"empty agent_name": `{"timestamp": "2026-08-20T10:00:00Z", "agent_name": "", "agent_id": "a-1", "action": "x", "endpoint": "/e", "target_resource": "r", "status_code": 200}`,
		"bad timestamp":    `{"timestamp": "the day before", "agent_name": "A", "agent_id": "a-1", "action": "x", "endpoint": "/e", "target_resource": "r", "status_code": 200}`,
		"negative payload": `{"timestamp": "2026-08-20T10:00:00Z", "agent_name": "A", "agent_id": "a-1", "action": "x", "endpoint": "/e", "target_resource": "r", "status_code": 200, "payload_size": -1}`,
	}
	for name, raw := range cases {
		_, err := v.Parse([]byte(raw))
		require.Error(t, err, name)
	}
}
