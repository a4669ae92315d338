package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
	"github.com/fyrsmithlabs/patternd/internal/spiking"
	"github.com/fyrsmithlabs/patternd/internal/store"
)

// FireSpike delivers a direct stimulus to a pattern and propagates it one
// hop along the pattern's outgoing usage links.
//
// The source always fires: being invoked is the firing condition, so its
// event carries didFire=true and the stored potential resets to 0. Each
// linked neuron is stepped once with the link weight as input and may or may
// not cross threshold. Deeper cascades require repeated calls.
//
// Potential updates are optimistic compare-and-swaps with bounded retries so
// concurrent fires on the same neuron never lose an increment. If the
// source update exhausts its retries the call returns ErrSpikeNotRecorded
// and nothing is propagated. A downstream neuron that exhausts retries is
// skipped; the spike itself stands.
func (s *Service) FireSpike(ctx context.Context, patternID string) ([]pattern.SpikeEvent, error) {
	ctx, span := tracer.Start(ctx, "Service.FireSpike")
	defer span.End()
	defer observeOp("spike", timeNow())

	if patternID == "" {
		return nil, ErrEmptyPatternID
	}
	span.SetAttributes(attribute.String("pattern_id", patternID))

	source, err := s.store.GetPattern(ctx, patternID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("loading pattern: %w", err)
	}

	now := timeNow().UTC()

	// Source reset: CAS the current potential down to 0.
	expected := source.SpikePotential
	recorded := false
	for attempt := 0; attempt < s.cfg.MaxUpdateRetries; attempt++ {
		err := s.store.UpdatePotential(ctx, patternID, expected, 0, &now)
		if err == nil {
			recorded = true
			break
		}
		if !errors.Is(err, store.ErrConflict) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("updating source potential: %w", err)
		}
		fresh, err := s.store.GetPattern(ctx, patternID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("reloading pattern after conflict: %w", err)
		}
		expected = fresh.SpikePotential
	}
	if !recorded {
		spikeConflicts.Inc()
		s.logger.Warn("spike dropped after retry exhaustion",
			zap.String("pattern_id", patternID),
			zap.Int("retries", s.cfg.MaxUpdateRetries))
		return nil, ErrSpikeNotRecorded
	}

	events := []pattern.SpikeEvent{{
		FiredPattern: patternID,
		Domain:       source.Domain,
		NewPotential: 0,
		DidFire:      true,
		Timestamp:    now,
	}}
	s.recordEvent(ctx, &events[0])

	links, err := s.store.ListLinksFrom(ctx, source.Domain, patternID)
	if err != nil {
		// The spike itself stands; propagation degrades.
		s.logger.Warn("link load failed, skipping propagation",
			zap.String("pattern_id", patternID),
			zap.Error(err))
		storeDegradations.Inc()
		return events, nil
	}

	for _, link := range links {
		ev := s.propagate(ctx, link, now)
		if ev == nil {
			continue
		}
		s.recordEvent(ctx, ev)
		events = append(events, *ev)
	}

	span.SetAttributes(attribute.Int("events", len(events)))
	return events, nil
}

// propagate applies one step to a downstream neuron with the link weight as
// input. Returns nil when the neuron could not be updated.
func (s *Service) propagate(ctx context.Context, link *pattern.UsageLink, now time.Time) *pattern.SpikeEvent {
	target, err := s.store.GetPattern(ctx, link.TargetID)
	if err != nil {
		s.logger.Warn("skipping propagation target",
			zap.String("target_id", link.TargetID),
			zap.Error(err))
		return nil
	}

	for attempt := 0; attempt < s.cfg.MaxUpdateRetries; attempt++ {
		result := spiking.Step(target.SpikePotential, link.Weight, s.spiking)
		var firedAt *time.Time
		if result.Fired {
			firedAt = &now
		}

		err := s.store.UpdatePotential(ctx, link.TargetID, target.SpikePotential, result.Potential, firedAt)
		if err == nil {
			return &pattern.SpikeEvent{
				FiredPattern: link.TargetID,
				Domain:       link.Domain,
				NewPotential: result.Potential,
				DidFire:      result.Fired,
				Timestamp:    now,
			}
		}
		if !errors.Is(err, store.ErrConflict) {
			s.logger.Warn("propagation update failed",
				zap.String("target_id", link.TargetID),
				zap.Error(err))
			return nil
		}

		target, err = s.store.GetPattern(ctx, link.TargetID)
		if err != nil {
			s.logger.Warn("skipping propagation target after conflict",
				zap.String("target_id", link.TargetID),
				zap.Error(err))
			return nil
		}
	}

	spikeConflicts.Inc()
	s.logger.Warn("propagation dropped after retry exhaustion",
		zap.String("target_id", link.TargetID),
		zap.Int("retries", s.cfg.MaxUpdateRetries))
	return nil
}

// recordEvent appends a spike event to the store log and publishes it. Both
// are best effort relative to the already-applied potential update.
func (s *Service) recordEvent(ctx context.Context, ev *pattern.SpikeEvent) {
	recordSpikeOutcome(ev.DidFire)

	if err := s.store.AppendSpikeEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to append spike event",
			zap.String("pattern_id", ev.FiredPattern),
			zap.Error(err))
	}
	if s.publisher != nil {
		if err := s.publisher.PublishSpike(ctx, ev); err != nil {
			s.logger.Warn("failed to publish spike event",
				zap.String("pattern_id", ev.FiredPattern),
				zap.Error(err))
		}
	}
}
