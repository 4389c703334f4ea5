package detector

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"uebaguard/internal/config"
	"uebaguard/internal/model"
	"uebaguard/internal/storage"
)

func newTestDetector(t *testing.T) (*Detector, storage.Store) {
	t.Helper()
	store, err := storage.NewStore(config.StorageConfig{Driver: "file", DSN: t.TempDir()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	mgr := config.NewStaticManager(config.DefaultConfig())
	return New(mgr, nil, store, nil), store
}

func seedRecord(agent, endpoint, resource string, status int, payload int64, ts time.Time) model.ActivityRecord {
	return model.ActivityRecord{
		Timestamp:      ts.UTC().Format(time.RFC3339),
		AgentName:      agent,
		AgentID:        agent + "-01",
		Action:         "invoke",
		Endpoint:       endpoint,
		TargetResource: resource,
		StatusCode:     status,
		PayloadSize:    payload,
	}
}

func TestScanUnauthorizedAccess(t *testing.T) {
	det, store := newTestDetector(t)
	ctx := context.Background()

	rec := seedRecord("SchedulingAgent", "/book_slot", "customer_db", 200, 100, time.Now().UTC().Add(-2*time.Minute))
	if err := store.AppendActivity(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	alerts, err := det.Scan(ctx, 15)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d: %+v", len(alerts), alerts)
	}
	a := alerts[0]
	if a.Reason != model.ReasonUnauthorizedAccess {
		t.Fatalf("reason = %q, want %q", a.Reason, model.ReasonUnauthorizedAccess)
	}
	if a.Severity != model.SeverityHigh {
		t.Fatalf("severity = %q, want high", a.Severity)
	}
	if a.AgentName != "SchedulingAgent" || a.AgentID != "SchedulingAgent-01" {
		t.Fatalf("agent identity not copied from evidence: %+v", a)
	}
	if !reflect.DeepEqual(a.Evidence, rec) {
		t.Fatalf("evidence mismatch:\n got %+v\nwant %+v", a.Evidence, rec)
	}
	if a.AlertID == "" {
		t.Fatalf("alert_id must be generated")
	}

	stored, err := store.ReadAlerts(ctx)
	if err != nil {
		t.Fatalf("read alerts: %v", err)
	}
	if len(stored) != 1 || stored[0].AlertID != a.AlertID {
		t.Fatalf("alert store should hold exactly the raised alert, got %+v", stored)
	}
}

func TestScanEmptyStore(t *testing.T) {
	det, store := newTestDetector(t)
	ctx := context.Background()

	alerts, err := det.Scan(ctx, 15)
	if err != nil {
		t.Fatalf("scan over an empty store must not fail: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts, got %d", len(alerts))
	}
	stored, err := store.ReadAlerts(ctx)
	if err != nil {
		t.Fatalf("read alerts: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("alert store should stay empty")
	}
}

func TestScanWindowExcludesOldRecords(t *testing.T) {
	det, store := newTestDetector(t)
	ctx := context.Background()

	// Unauthorized, but two hours stale.
	rec := seedRecord("SchedulingAgent", "/book_slot", "customer_db", 200, 100, time.Now().UTC().Add(-2*time.Hour))
	if err := store.AppendActivity(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
	alerts, err := det.Scan(ctx, 15)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("records outside the window must not alert, got %+v", alerts)
	}
}

func TestScanSkipsUnparseableTimestamps(t *testing.T) {
	det, store := newTestDetector(t)
	ctx := context.Background()

	rec := seedRecord("SchedulingAgent", "/book_slot", "customer_db", 200, 100, time.Now().UTC())
	rec.Timestamp = "yesterday-ish"
	if err := store.AppendActivity(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
	alerts, err := det.Scan(ctx, 15)
	if err != nil {
		t.Fatalf("a malformed timestamp must never fail the scan: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("malformed-timestamp records are excluded from the window, got %+v", alerts)
	}
}

func TestScanRateSpike(t *testing.T) {
	det, store := newTestDetector(t)
	ctx := context.Background()

	// 121 authorized requests over one minute: 121/min exceeds 120.
	// FeedbackAgent has no sequence profile, so only rate_spike fires.
	base := time.Now().UTC().Add(-5 * time.Minute)
	var last model.ActivityRecord
	for i := 0; i <= 120; i++ {
		last = seedRecord("FeedbackAgent", "/feedback", "feedback_db", 200, 50, base.Add(time.Duration(i)*500*time.Millisecond))
		if err := store.AppendActivity(ctx, last); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	alerts, err := det.Scan(ctx, 15)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var spikes []model.Alert
	for _, a := range alerts {
		if a.Reason == model.ReasonRateSpike {
			spikes = append(spikes, a)
		}
		if a.Reason == model.ReasonHighErrorRate || a.Reason == model.ReasonUnauthorizedAccess {
			t.Fatalf("unexpected alert %q", a.Reason)
		}
	}
	if len(spikes) != 1 {
		t.Fatalf("expected exactly one rate_spike alert, got %d (%+v)", len(spikes), alerts)
	}
	if spikes[0].Severity != model.SeverityHigh {
		t.Fatalf("rate_spike severity = %q, want high", spikes[0].Severity)
	}
	if !reflect.DeepEqual(spikes[0].Evidence, last) {
		t.Fatalf("window-level rules use the last record as evidence")
	}
}

func TestScanHighErrorRate(t *testing.T) {
	det, store := newTestDetector(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-3 * time.Minute)
	statuses := []int{200, 500, 503, 200}
	for i, status := range statuses {
		rec := seedRecord("FeedbackAgent", "/feedback", "feedback_db", status, 50, base.Add(time.Duration(i)*10*time.Second))
		if err := store.AppendActivity(ctx, rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	alerts, err := det.Scan(ctx, 15)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d: %+v", len(alerts), alerts)
	}
	if alerts[0].Reason != model.ReasonHighErrorRate || alerts[0].Severity != model.SeverityMedium {
		t.Fatalf("got %q/%q, want high_error_rate/medium", alerts[0].Reason, alerts[0].Severity)
	}
}

func TestScanLargePayload(t *testing.T) {
	det, store := newTestDetector(t)
	ctx := context.Background()

	rec := seedRecord("FeedbackAgent", "/feedback", "feedback_db", 200, 200001, time.Now().UTC().Add(-time.Minute))
	if err := store.AppendActivity(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
	alerts, err := det.Scan(ctx, 15)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d: %+v", len(alerts), alerts)
	}
	if alerts[0].Reason != model.ReasonLargePayload || alerts[0].Severity != model.SeverityHigh {
		t.Fatalf("got %q/%q, want large payload/high", alerts[0].Reason, alerts[0].Severity)
	}
}

func TestScanSequenceMismatch(t *testing.T) {
	det, store := newTestDetector(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-4 * time.Minute)
	// Last three endpoints hit /ingest, /report, /analyze against the
	// profile /ingest, /analyze, /report: 2 of 3 positions off.
	for i, ep := range []string{"/ingest", "/report", "/analyze"} {
		rec := seedRecord("DataAnalysisAgent", ep, "vectorstore", 200, 50, base.Add(time.Duration(i)*20*time.Second))
		if err := store.AppendActivity(ctx, rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	alerts, err := det.Scan(ctx, 15)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var seq int
	for _, a := range alerts {
		if a.Reason == model.ReasonUnusualSequence {
			seq++
			if a.Severity != model.SeverityMedium {
				t.Fatalf("sequence severity = %q, want medium", a.Severity)
			}
		}
	}
	if seq != 1 {
		t.Fatalf("expected exactly one unusual_endpoint_sequence alert, got %d (%+v)", seq, alerts)
	}
}

func TestScanNoMLAlertsWithoutHistory(t *testing.T) {
	det, _ := newTestDetector(t)
	ctx := context.Background()

	alerts, err := det.Scan(ctx, 15)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	for _, a := range alerts {
		if len(a.Reason) > 3 && a.Reason[:3] == "ml_" {
			t.Fatalf("absent baseline must never raise ML alerts: %+v", a)
		}
	}
}

func TestIngestAppends(t *testing.T) {
	det, store := newTestDetector(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := seedRecord("FeedbackAgent", "/feedback", "feedback_db", 200, int64(i), time.Now().UTC())
		rec.AgentID = fmt.Sprintf("fb-%d", i)
		if err := det.Ingest(ctx, rec); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}
	logs, err := store.ReadActivities(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(logs))
	}
	for i, rec := range logs {
		if rec.AgentID != fmt.Sprintf("fb-%d", i) {
			t.Fatalf("append order not preserved: %+v", logs)
		}
	}
}
