package analytics

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/patternd/internal/graph"
	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

// ComputePatternPageRank ranks the domain's patterns by structural importance
// within the similarity graph. Every pattern appears in the output, sorted by
// descending importance; isolated patterns receive the uniform dangling share.
func (s *Service) ComputePatternPageRank(ctx context.Context, domain string) ([]pattern.PageRankEntry, error) {
	ctx, span := tracer.Start(ctx, "Service.ComputePatternPageRank")
	defer span.End()
	defer observeOp("pagerank", timeNow())

	span.SetAttributes(attribute.String("domain", domain))

	patterns := s.loadPatterns(ctx, domain)
	if len(patterns) == 0 {
		return []pattern.PageRankEntry{}, nil
	}

	g := graph.NewSimilarityGraph(patterns, s.cfg.SimilarityThreshold)
	scores := g.PageRank(s.cfg.PageRankDamping, s.cfg.PageRankTolerance, s.cfg.PageRankMaxIterations)

	ids := g.Nodes()
	entries := make([]pattern.PageRankEntry, len(ids))
	for i, id := range ids {
		entries[i] = pattern.PageRankEntry{PatternID: id, Importance: scores[i]}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Importance != entries[j].Importance {
			return entries[i].Importance > entries[j].Importance
		}
		return entries[i].PatternID < entries[j].PatternID
	})

	span.SetAttributes(attribute.Int("entries", len(entries)))
	return entries, nil
}
