// Package rules holds the five stateless detection predicates. Each
// operates on either a single activity record or one agent's record
// window in stored chronological order; none keeps state between
// calls.
package rules

import (
	"time"

	"uebaguard/internal/model"
)

// UnauthorizedAccess reports whether the record touched a resource
// outside its agent's allow-list.
func UnauthorizedAccess(rec model.ActivityRecord, pol *Policy) bool {
	return !pol.AllowsResource(rec.AgentName, rec.TargetResource)
}

// RateSpike reports whether the window's request rate strictly exceeds
// perMinute. The elapsed span is floored at one second so a window
// whose records share a single timestamp still yields a finite rate.
func RateSpike(window []model.ActivityRecord, perMinute float64) bool {
	if len(window) == 0 {
		return false
	}
	var earliest, latest time.Time
	count := 0
	for _, rec := range window {
		ts, ok := rec.Time()
		if !ok {
			continue
		}
		if count == 0 || ts.Before(earliest) {
			earliest = ts
		}
		if count == 0 || ts.After(latest) {
			latest = ts
		}
		count++
	}
	if count == 0 {
		return false
	}
	elapsed := latest.Sub(earliest).Minutes()
	if elapsed < 1.0/60.0 {
		elapsed = 1.0 / 60.0
	}
	return float64(count)/elapsed > perMinute
}

// HighErrorRate reports whether the fraction of error-status records
// in the window reaches threshold.
func HighErrorRate(window []model.ActivityRecord, threshold float64) bool {
	if len(window) == 0 {
		return false
	}
	errors := 0
	for _, rec := range window {
		if rec.IsError() {
			errors++
		}
	}
	return float64(errors)/float64(len(window)) >= threshold
}

// LargePayload reports whether the record payload strictly exceeds
// maxBytes.
func LargePayload(rec model.ActivityRecord, maxBytes int64) bool {
	return rec.PayloadSize > maxBytes
}

// UnusualEndpointSequence compares the window's trailing endpoints
// against the agent's normal sequence and reports whether the mismatch
// fraction strictly exceeds mismatchRatio. Agents without a profile
// are never flagged. The mismatch fraction is always taken over the
// full profile length, so a short window can only accumulate as many
// mismatches as it has observations.
func UnusualEndpointSequence(window []model.ActivityRecord, pol *Policy, mismatchRatio float64) bool {
	if len(window) == 0 {
		return false
	}
	normal := pol.NormalSequence(window[0].AgentName)
	if len(normal) == 0 {
		return false
	}
	start := len(window) - len(normal)
	if start < 0 {
		start = 0
	}
	tail := window[start:]
	mismatches := 0
	for i := 0; i < len(tail) && i < len(normal); i++ {
		if tail[i].Endpoint != normal[i] {
			mismatches++
		}
	}
	return float64(mismatches)/float64(len(normal)) > mismatchRatio
}
