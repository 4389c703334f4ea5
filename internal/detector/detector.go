// Package detector runs the UEBA scan cycle: load the activity log,
// window and group it by agent, rebuild the baseline model from full
// history, apply the rule engine and the anomaly scorer per agent, and
// persist every alert as it is composed.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"uebaguard/internal/baseline"
	"uebaguard/internal/config"
	"uebaguard/internal/features"
	"uebaguard/internal/metrics"
	"uebaguard/internal/model"
	"uebaguard/internal/rules"
	"uebaguard/internal/storage"
)

type Detector struct {
	cfg     *config.Manager
	logger  *slog.Logger
	store   storage.Store
	metrics *metrics.Metrics

	// One scan at a time. The lock also covers ingest appends because
	// the file driver's append is a read-modify-write cycle.
	mu sync.Mutex
}

func New(cfg *config.Manager, logger *slog.Logger, store storage.Store, m *metrics.Metrics) *Detector {
	return &Detector{cfg: cfg, logger: logger, store: store, metrics: m}
}

// Ingest appends one validated activity record to the log store.
func (d *Detector) Ingest(ctx context.Context, rec model.ActivityRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.AppendActivity(ctx, rec); err != nil {
		return fmt.Errorf("append activity log: %w", err)
	}
	d.metrics.IncIngested()
	return nil
}

// Scan runs one detection cycle over the trailing windowMinutes of
// activity (the configured default when <= 0) and returns every alert
// raised. On a store failure the scan aborts with an error and no
// alert list; an empty list on success is a real result, not a
// failure.
func (d *Detector) Scan(ctx context.Context, windowMinutes int) ([]model.Alert, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg := d.cfg.Get()
	if windowMinutes <= 0 {
		windowMinutes = cfg.Detection.WindowMinutes
	}
	d.metrics.ScanStarted()
	started := time.Now()

	logs, err := d.store.ReadActivities(ctx)
	if err != nil {
		d.metrics.ScanFailed()
		return nil, fmt.Errorf("read activity logs: %w", err)
	}

	now := time.Now().UTC()
	cutoff := now.Add(-time.Duration(windowMinutes) * time.Minute)
	names, groups := windowByAgent(logs, cutoff)

	// The baseline trains on the full history so the scan window is
	// judged against long-term behavior, not against itself alone.
	forest := d.trainBaseline(logs, cfg)
	pol := rules.BuildPolicy(cfg.Policy.ResourceMap, cfg.Policy.NormalSequences)

	alerts := make([]model.Alert, 0)
	for _, name := range names {
		group := groups[name]
		raised, err := d.detectAgent(ctx, cfg, pol, forest, group)
		if err != nil {
			d.metrics.ScanFailed()
			return nil, err
		}
		alerts = append(alerts, raised...)
	}

	d.metrics.ObserveScan(time.Since(started).Seconds())
	if d.logger != nil {
		d.logger.Info("scan complete",
			"window_minutes", windowMinutes,
			"records_total", len(logs),
			"agents_in_window", len(names),
			"alerts", len(alerts),
		)
	}
	return alerts, nil
}

// windowByAgent keeps records at or after cutoff and partitions them
// by agent_name, preserving stored order within each group and the
// order in which agents first appear. Records whose timestamps do not
// parse are silently excluded.
func windowByAgent(logs []model.ActivityRecord, cutoff time.Time) ([]string, map[string][]model.ActivityRecord) {
	var names []string
	groups := make(map[string][]model.ActivityRecord)
	for _, rec := range logs {
		ts, ok := rec.Time()
		if !ok || ts.Before(cutoff) {
			continue
		}
		if _, seen := groups[rec.AgentName]; !seen {
			names = append(names, rec.AgentName)
		}
		groups[rec.AgentName] = append(groups[rec.AgentName], rec)
	}
	return names, groups
}

func (d *Detector) trainBaseline(logs []model.ActivityRecord, cfg *config.Config) *baseline.Forest {
	byAgent := make(map[string][]model.ActivityRecord)
	var order []string
	for _, rec := range logs {
		if _, seen := byAgent[rec.AgentName]; !seen {
			order = append(order, rec.AgentName)
		}
		byAgent[rec.AgentName] = append(byAgent[rec.AgentName], rec)
	}
	var training [][]float64
	for _, name := range order {
		training = append(training, features.Extract(byAgent[name])...)
	}
	return baseline.Train(training, baseline.Options{
		Trees:         cfg.Detection.Trees,
		SampleSize:    cfg.Detection.SampleSize,
		Contamination: cfg.Detection.Contamination,
		Seed:          cfg.Detection.Seed,
	})
}

func (d *Detector) detectAgent(ctx context.Context, cfg *config.Config, pol *rules.Policy, forest *baseline.Forest, group []model.ActivityRecord) ([]model.Alert, error) {
	if len(group) == 0 {
		return nil, nil
	}
	var alerts []model.Alert

	raise := func(evidence model.ActivityRecord, reason, severity, detectorTag string) error {
		alert, err := d.raiseAlert(ctx, evidence, reason, severity, detectorTag)
		if err != nil {
			return err
		}
		alerts = append(alerts, alert)
		return nil
	}

	last := group[len(group)-1]

	for _, rec := range group {
		if rules.UnauthorizedAccess(rec, pol) {
			if err := raise(rec, model.ReasonUnauthorizedAccess, model.SeverityHigh, model.ReasonUnauthorizedAccess); err != nil {
				return nil, err
			}
		}
		if rules.LargePayload(rec, cfg.Detection.PayloadSizeBytes) {
			if err := raise(rec, model.ReasonLargePayload, model.SeverityHigh, model.ReasonLargePayload); err != nil {
				return nil, err
			}
		}
	}

	if rules.RateSpike(group, cfg.Detection.RateSpikePerMinute) {
		if err := raise(last, model.ReasonRateSpike, model.SeverityHigh, model.ReasonRateSpike); err != nil {
			return nil, err
		}
	}
	if rules.HighErrorRate(group, cfg.Detection.ErrorRateThreshold) {
		if err := raise(last, model.ReasonHighErrorRate, model.SeverityMedium, model.ReasonHighErrorRate); err != nil {
			return nil, err
		}
	}
	if rules.UnusualEndpointSequence(group, pol, cfg.Detection.SequenceMismatchRatio) {
		if err := raise(last, model.ReasonUnusualSequence, model.SeverityMedium, model.ReasonUnusualSequence); err != nil {
			return nil, err
		}
	}

	for i, vector := range features.Extract(group) {
		score := forest.Score(vector)
		if score >= cfg.Detection.AnomalyScoreThreshold {
			continue
		}
		evidence := last
		if i < len(group) {
			evidence = group[i]
		}
		if err := raise(evidence, model.MLAnomalyReason(score), model.SeverityMedium, "ml_anomaly"); err != nil {
			return nil, err
		}
	}
	return alerts, nil
}

// raiseAlert composes an alert and appends it to the alert store in
// one step; composing is never separated from storing.
func (d *Detector) raiseAlert(ctx context.Context, evidence model.ActivityRecord, reason, severity, detectorTag string) (model.Alert, error) {
	alert := model.Alert{
		AlertID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		AgentName: evidence.AgentName,
		AgentID:   evidence.AgentID,
		Reason:    reason,
		Severity:  severity,
		Evidence:  evidence,
	}
	if err := d.store.AppendAlert(ctx, alert); err != nil {
		return model.Alert{}, fmt.Errorf("append alert: %w", err)
	}
	d.metrics.AlertRaised(detectorTag, severity)
	if d.logger != nil {
		d.logger.Warn("alert raised",
			"agent_name", alert.AgentName,
			"agent_id", alert.AgentID,
			"reason", alert.Reason,
			"severity", alert.Severity,
		)
	}
	return alert, nil
}
