package analytics

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
	"github.com/fyrsmithlabs/patternd/internal/search"
	"github.com/fyrsmithlabs/patternd/internal/store"
)

// ErrNoIndex indicates a similarity search without a configured index.
var ErrNoIndex = errors.New("search index not configured")

// RecordPattern stores a new pattern with a pre-computed embedding and
// scores its novelty against the domain's existing clusters. The novelty
// check is best effort; the pattern is stored either way.
func (s *Service) RecordPattern(ctx context.Context, domain string, embedding []float32, confidence float64) (*pattern.Pattern, *pattern.NoveltyScore, error) {
	ctx, span := tracer.Start(ctx, "Service.RecordPattern")
	defer span.End()

	p, err := pattern.NewPattern(domain, embedding, confidence)
	if err != nil {
		return nil, nil, err
	}
	span.SetAttributes(
		attribute.String("domain", domain),
		attribute.String("pattern_id", p.ID),
	)

	if err := s.store.PutPattern(ctx, p); err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("storing pattern: %w", err)
	}

	if s.index != nil {
		if err := s.index.IndexPattern(ctx, p); err != nil {
			s.logger.Warn("failed to index pattern",
				zap.String("pattern_id", p.ID),
				zap.Error(err))
		}
	}

	novelty, err := s.DetectNovelPattern(ctx, p.ID, domain, s.cfg.NoveltyThreshold)
	if err != nil {
		s.logger.Warn("novelty check failed for new pattern",
			zap.String("pattern_id", p.ID),
			zap.Error(err))
		novelty = nil
	}

	s.logger.Info("pattern recorded",
		zap.String("pattern_id", p.ID),
		zap.String("domain", domain),
		zap.Float64("confidence", p.Confidence))
	return p, novelty, nil
}

// GetPattern fetches one pattern by ID.
func (s *Service) GetPattern(ctx context.Context, id string) (*pattern.Pattern, error) {
	if id == "" {
		return nil, ErrEmptyPatternID
	}
	p, err := s.store.GetPattern(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading pattern: %w", err)
	}
	return p, nil
}

// RecordTrajectory stores a successful trajectory and bumps the usage count
// of every member pattern. Unknown members are skipped.
func (s *Service) RecordTrajectory(ctx context.Context, domain string, patternIDs []string) (*pattern.Trajectory, error) {
	ctx, span := tracer.Start(ctx, "Service.RecordTrajectory")
	defer span.End()

	t, err := pattern.NewTrajectory(domain, patternIDs)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("domain", domain),
		attribute.Int("patterns", len(patternIDs)),
	)

	if err := s.store.PutTrajectory(ctx, t); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("storing trajectory: %w", err)
	}

	seen := make(map[string]bool, len(t.PatternIDs))
	for _, id := range t.PatternIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		p, err := s.store.GetPattern(ctx, id)
		if errors.Is(err, store.ErrPatternNotFound) {
			s.logger.Warn("trajectory references unknown pattern",
				zap.String("pattern_id", id),
				zap.String("trajectory_id", t.ID))
			continue
		}
		if err != nil {
			s.logger.Warn("skipping usage bump",
				zap.String("pattern_id", id),
				zap.Error(err))
			continue
		}

		p.IncrementUsage()
		if err := s.store.PutPattern(ctx, p); err != nil {
			s.logger.Warn("failed to persist usage bump",
				zap.String("pattern_id", id),
				zap.Error(err))
		}
	}

	s.logger.Info("trajectory recorded",
		zap.String("trajectory_id", t.ID),
		zap.String("domain", domain),
		zap.Int("patterns", len(t.PatternIDs)))
	return t, nil
}

// SearchSimilar returns the k most similar indexed patterns in a domain.
func (s *Service) SearchSimilar(ctx context.Context, domain string, embedding []float32, k int) ([]search.Result, error) {
	if s.index == nil {
		return nil, ErrNoIndex
	}
	return s.index.Query(ctx, domain, embedding, k)
}
