package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

const (
	// DefaultAnomalyWindowSeconds is the trailing window for spike-rate
	// anomaly detection.
	DefaultAnomalyWindowSeconds = 300

	// DefaultAnomalyZThreshold is the score above which a pattern counts
	// as anomalous.
	DefaultAnomalyZThreshold = 2.0
)

// DetectAnomalies scores every pattern in the domain by how far its recent
// firing rate deviates from its historical baseline.
//
// spikeRate is the pattern's fire count inside the trailing window. avgRate
// is its lifetime fire count scaled down to one window. The anomaly score
// normalizes the deviation Poisson style, (spikeRate - avgRate) divided by
// sqrt(avgRate + 1), so a burst on a quiet pattern scores high while the
// same burst on a chronically busy one does not. Results cover the whole
// domain sorted by descending score; entries above zThreshold are the
// primary signal.
func (s *Service) DetectAnomalies(ctx context.Context, domain string, windowSeconds int, zThreshold float64) ([]pattern.AnomalyScore, error) {
	ctx, span := tracer.Start(ctx, "Service.DetectAnomalies")
	defer span.End()
	defer observeOp("anomalies", timeNow())

	if windowSeconds <= 0 {
		windowSeconds = DefaultAnomalyWindowSeconds
	}
	if zThreshold <= 0 {
		zThreshold = DefaultAnomalyZThreshold
	}
	span.SetAttributes(
		attribute.String("domain", domain),
		attribute.Int("window_seconds", windowSeconds),
		attribute.Float64("z_threshold", zThreshold),
	)

	patterns := s.loadPatterns(ctx, domain)
	if len(patterns) == 0 {
		return []pattern.AnomalyScore{}, nil
	}

	events, err := s.store.ListSpikeEvents(ctx, domain, time.Time{})
	if err != nil {
		s.logger.Warn("spike log load failed, degrading to empty result",
			zap.String("domain", domain),
			zap.Error(err))
		storeDegradations.Inc()
		return []pattern.AnomalyScore{}, nil
	}

	now := timeNow().UTC()
	window := time.Duration(windowSeconds) * time.Second
	cutoff := now.Add(-window)

	totals := make(map[string]int)
	recent := make(map[string]int)
	firstSeen := make(map[string]time.Time)
	for _, ev := range events {
		if !ev.DidFire {
			continue
		}
		totals[ev.FiredPattern]++
		if !ev.Timestamp.Before(cutoff) {
			recent[ev.FiredPattern]++
		}
		if first, ok := firstSeen[ev.FiredPattern]; !ok || ev.Timestamp.Before(first) {
			firstSeen[ev.FiredPattern] = ev.Timestamp
		}
	}

	scores := make([]pattern.AnomalyScore, 0, len(patterns))
	anomalous := 0
	for _, p := range patterns {
		spikeRate := float64(recent[p.ID])

		var avgRate float64
		if total := totals[p.ID]; total > 0 {
			// Lifetime rate scaled to one window
			windows := now.Sub(firstSeen[p.ID]) / window
			if windows < 1 {
				windows = 1
			}
			avgRate = float64(total) / float64(windows)
		}

		score := (spikeRate - avgRate) / math.Sqrt(avgRate+1)
		if score > zThreshold {
			anomalous++
		}
		scores = append(scores, pattern.AnomalyScore{
			PatternID: p.ID,
			SpikeRate: spikeRate,
			AvgRate:   avgRate,
			Score:     score,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].PatternID < scores[j].PatternID
	})

	if anomalous > 0 {
		anomaliesDetected.Add(float64(anomalous))
		s.logger.Info("detected spike anomalies",
			zap.String("domain", domain),
			zap.Int("anomalous", anomalous),
			zap.Float64("z_threshold", zThreshold))
	}
	span.SetAttributes(attribute.Int("anomalous", anomalous))
	return scores, nil
}
