package analytics

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/graph"
	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

// coOccurrenceWeight is the link weight contributed by each trajectory
// co-occurrence, capped at maxLinkWeight.
const (
	coOccurrenceWeight = 0.1
	maxLinkWeight      = 1.0
)

// BuildLinksFromTrajectories derives directed usage links for a domain and
// returns how many links were written. Pattern pairs that appear together in
// a successful trajectory are linked in trajectory order with weight
// proportional to their co-occurrence count. When the domain has no
// trajectories, links fall back to embedding similarity above the linkage
// threshold, in both directions. Re-running recomputes weights in place;
// links are never duplicated.
func (s *Service) BuildLinksFromTrajectories(ctx context.Context, domain string) (int, error) {
	ctx, span := tracer.Start(ctx, "Service.BuildLinksFromTrajectories")
	defer span.End()
	defer observeOp("links", timeNow())

	span.SetAttributes(attribute.String("domain", domain))

	trajectories, err := s.store.ListTrajectories(ctx, domain)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("loading trajectories: %w", err)
	}

	weights := make(map[[2]string]float64)
	if len(trajectories) > 0 {
		counts := make(map[[2]string]int)
		for _, t := range trajectories {
			for i := 0; i < len(t.PatternIDs); i++ {
				for j := i + 1; j < len(t.PatternIDs); j++ {
					if t.PatternIDs[i] == t.PatternIDs[j] {
						continue
					}
					counts[[2]string{t.PatternIDs[i], t.PatternIDs[j]}]++
				}
			}
		}
		for pair, count := range counts {
			w := float64(count) * coOccurrenceWeight
			if w > maxLinkWeight {
				w = maxLinkWeight
			}
			weights[pair] = w
		}
	} else {
		patterns, err := s.store.ListPatterns(ctx, domain)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return 0, fmt.Errorf("loading patterns: %w", err)
		}
		for i := 0; i < len(patterns); i++ {
			for j := i + 1; j < len(patterns); j++ {
				sim := graph.Cosine(patterns[i].Embedding, patterns[j].Embedding)
				if sim <= s.cfg.LinkageThreshold {
					continue
				}
				weights[[2]string{patterns[i].ID, patterns[j].ID}] = sim
				weights[[2]string{patterns[j].ID, patterns[i].ID}] = sim
			}
		}
	}

	// Deterministic write order
	pairs := make([][2]string, 0, len(weights))
	for pair := range weights {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})

	count := 0
	for _, pair := range pairs {
		link, err := pattern.NewUsageLink(domain, pair[0], pair[1], weights[pair])
		if err != nil {
			s.logger.Warn("skipping invalid link",
				zap.String("source", pair[0]),
				zap.String("target", pair[1]),
				zap.Error(err))
			continue
		}
		if err := s.store.UpsertLink(ctx, link); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return count, fmt.Errorf("writing link %s->%s: %w", pair[0], pair[1], err)
		}
		count++
	}

	s.logger.Info("built usage links",
		zap.String("domain", domain),
		zap.Int("links", count),
		zap.Int("trajectories", len(trajectories)),
	)
	span.SetAttributes(attribute.Int("links", count))
	return count, nil
}
