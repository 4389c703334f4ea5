// Package features converts one agent's chronological record window
// into per-minute feature vectors for the baseline model.
package features

import (
	"sort"
	"time"

	"uebaguard/internal/model"
)

// Dim is the feature vector width: request count, mean payload size,
// mean latency, error ratio, distinct endpoint count.
const Dim = 5

// Extract buckets the records by minute (seconds truncated) and emits
// one vector per non-empty bucket in chronological bucket order.
// Records with unparseable timestamps are skipped. Gaps between
// buckets produce no vectors.
func Extract(records []model.ActivityRecord) [][]float64 {
	if len(records) == 0 {
		return nil
	}
	buckets := make(map[time.Time][]model.ActivityRecord)
	for _, rec := range records {
		ts, ok := rec.Time()
		if !ok {
			continue
		}
		key := ts.Truncate(time.Minute)
		buckets[key] = append(buckets[key], rec)
	}
	if len(buckets) == 0 {
		return nil
	}
	keys := make([]time.Time, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	vectors := make([][]float64, 0, len(keys))
	for _, key := range keys {
		vectors = append(vectors, bucketVector(buckets[key]))
	}
	return vectors
}

func bucketVector(recs []model.ActivityRecord) []float64 {
	count := len(recs)
	var payloadSum, latencySum float64
	errors := 0
	endpoints := make(map[string]struct{}, count)
	for _, rec := range recs {
		payloadSum += float64(rec.PayloadSize)
		latencySum += float64(rec.LatencyMS)
		if rec.IsError() {
			errors++
		}
		endpoints[rec.Endpoint] = struct{}{}
	}
	return []float64{
		float64(count),
		payloadSum / float64(count),
		latencySum / float64(count),
		float64(errors) / float64(count),
		float64(len(endpoints)),
	}
}
