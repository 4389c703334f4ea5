package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"uebaguard/internal/config"
	"uebaguard/internal/detector"
	"uebaguard/internal/metrics"
	"uebaguard/internal/validate"
)

func StartNATS(ctx context.Context, cfg *config.Manager, det *detector.Detector, validator *validate.RecordValidator, m *metrics.Metrics, logger *slog.Logger) error {
	current := cfg.Get().Ingest.NATS
	if !current.Enabled {
		if logger != nil {
			logger.Info("nats ingest disabled")
		}
		return nil
	}
	nc, err := nats.Connect(current.URL)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	sub, err := nc.Subscribe(current.Subject, func(msg *nats.Msg) {
		rec, err := validator.Parse(msg.Data)
		if err != nil {
			m.IncRejected()
			if logger != nil {
				logger.Warn("nats record rejected", "err", err)
			}
			return
		}
		if err := det.Ingest(ctx, rec); err != nil {
			if logger != nil {
				logger.Error("nats ingest failed", "err", err)
			}
		}
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe %s: %w", current.Subject, err)
	}
	if logger != nil {
		logger.Info("nats ingest enabled", "url", current.URL, "subject", current.Subject)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		nc.Close()
	}()
	return nil
}
