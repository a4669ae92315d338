package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

const (
	// recentSpikeWindow is the trailing window for recent-activity counts
	// in network state reports.
	recentSpikeWindow = 5 * time.Minute

	// topFiringLimit caps the firing leaderboard size.
	topFiringLimit = 5
)

// GetNetworkState aggregates the domain's spiking state: neuron counts,
// average potential, and recent firing activity. Reporting never mutates
// state.
func (s *Service) GetNetworkState(ctx context.Context, domain string) (*pattern.NetworkState, error) {
	ctx, span := tracer.Start(ctx, "Service.GetNetworkState")
	defer span.End()
	defer observeOp("network", timeNow())

	span.SetAttributes(attribute.String("domain", domain))

	patterns := s.loadPatterns(ctx, domain)
	state := &pattern.NetworkState{
		Domain:            domain,
		TotalNeurons:      len(patterns),
		TopFiringPatterns: []pattern.FiringPattern{},
	}

	lastFired := make(map[string]*time.Time, len(patterns))
	var sum float64
	for _, p := range patterns {
		sum += p.SpikePotential
		if p.SpikePotential > 0 {
			state.ActiveNeurons++
		}
		lastFired[p.ID] = p.LastFiredAt
	}
	if len(patterns) > 0 {
		state.AvgPotential = sum / float64(len(patterns))
	}

	since := timeNow().UTC().Add(-recentSpikeWindow)
	events, err := s.store.ListSpikeEvents(ctx, domain, since)
	if err != nil {
		s.logger.Warn("spike log load failed, reporting without recent activity",
			zap.String("domain", domain),
			zap.Error(err))
		storeDegradations.Inc()
		return state, nil
	}

	fireCounts := make(map[string]int)
	for _, ev := range events {
		if !ev.DidFire {
			continue
		}
		state.RecentSpikes++
		fireCounts[ev.FiredPattern]++
	}

	for id, count := range fireCounts {
		state.TopFiringPatterns = append(state.TopFiringPatterns, pattern.FiringPattern{
			PatternID:   id,
			SpikeCount:  count,
			LastFiredAt: lastFired[id],
		})
	}
	sort.Slice(state.TopFiringPatterns, func(i, j int) bool {
		if state.TopFiringPatterns[i].SpikeCount != state.TopFiringPatterns[j].SpikeCount {
			return state.TopFiringPatterns[i].SpikeCount > state.TopFiringPatterns[j].SpikeCount
		}
		return state.TopFiringPatterns[i].PatternID < state.TopFiringPatterns[j].PatternID
	})
	if len(state.TopFiringPatterns) > topFiringLimit {
		state.TopFiringPatterns = state.TopFiringPatterns[:topFiringLimit]
	}

	span.SetAttributes(
		attribute.Int("total_neurons", state.TotalNeurons),
		attribute.Int("active_neurons", state.ActiveNeurons),
		attribute.Int("recent_spikes", state.RecentSpikes),
	)
	return state, nil
}

// ResetNetwork zeroes every spike potential in the domain and returns how
// many patterns were reset. Reset always mutates; failures surface.
func (s *Service) ResetNetwork(ctx context.Context, domain string) (int, error) {
	ctx, span := tracer.Start(ctx, "Service.ResetNetwork")
	defer span.End()
	defer observeOp("reset", timeNow())

	span.SetAttributes(attribute.String("domain", domain))

	count, err := s.store.ResetPotentials(ctx, domain)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("resetting potentials: %w", err)
	}

	s.logger.Info("reset network",
		zap.String("domain", domain),
		zap.Int("patterns", count))
	span.SetAttributes(attribute.Int("patterns", count))
	return count, nil
}
