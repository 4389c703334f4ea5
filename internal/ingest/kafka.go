// Package ingest feeds activity records from streaming sources into
// the log store. Sources only populate the store; detection stays a
// batch scan.
package ingest

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"uebaguard/internal/config"
	"uebaguard/internal/detector"
	"uebaguard/internal/metrics"
	"uebaguard/internal/validate"
)

func StartKafka(ctx context.Context, cfg *config.Manager, det *detector.Detector, validator *validate.RecordValidator, m *metrics.Metrics, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			rec, err := validator.Parse(msg.Value)
			if err != nil {
				m.IncRejected()
				if logger != nil {
					logger.Warn("kafka record rejected", "err", err)
				}
				continue
			}
			if err := det.Ingest(ctx, rec); err != nil {
				if logger != nil {
					logger.Error("kafka ingest failed", "err", err)
				}
			}
		}
	}()
}
