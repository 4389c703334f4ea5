package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"uebaguard/internal/model"
)

// redisStore keeps each sequence as a Redis list. RPUSH preserves
// append order and LRANGE 0 -1 returns the full history, which is
// exactly the store contract.
type redisStore struct {
	client *redis.Client
	prefix string
}

func NewRedis(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "redis://127.0.0.1:6379/0"
	}
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse redis dsn: %w", err)
	}
	return &redisStore{client: redis.NewClient(opts), prefix: "uebaguard"}, nil
}

func (s *redisStore) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

func (s *redisStore) activityKey() string { return s.prefix + ":activity_logs" }
func (s *redisStore) alertKey() string    { return s.prefix + ":alerts" }

func (s *redisStore) AppendActivity(ctx context.Context, rec model.ActivityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.activityKey(), data).Err()
}

func (s *redisStore) ReadActivities(ctx context.Context) ([]model.ActivityRecord, error) {
	items, err := s.client.LRange(ctx, s.activityKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.ActivityRecord, 0, len(items))
	for _, item := range items {
		var rec model.ActivityRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *redisStore) AppendAlert(ctx context.Context, alert model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.alertKey(), data).Err()
}

func (s *redisStore) ReadAlerts(ctx context.Context) ([]model.Alert, error) {
	items, err := s.client.LRange(ctx, s.alertKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.Alert, 0, len(items))
	for _, item := range items {
		var alert model.Alert
		if err := json.Unmarshal([]byte(item), &alert); err != nil {
			continue
		}
		out = append(out, alert)
	}
	return out, nil
}
