package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/graph"
	"github.com/fyrsmithlabs/patternd/internal/pattern"
	"github.com/fyrsmithlabs/patternd/internal/store"
)

// PartitionOptions overrides config thresholds for one partitioning call.
// Zero values fall back to the service configuration.
type PartitionOptions struct {
	SimilarityThreshold float64 `json:"similarity_threshold"`
	MinCutThreshold     float64 `json:"min_cut_threshold"`
}

// BuildPatternEdges computes cosine similarity for every same-domain pattern
// pair and returns edges at or above the threshold. A threshold <= 0 selects
// the configured default. Unknown domains yield no edges.
func (s *Service) BuildPatternEdges(ctx context.Context, domain string, threshold float64) ([]pattern.SimilarityEdge, error) {
	ctx, span := tracer.Start(ctx, "Service.BuildPatternEdges")
	defer span.End()
	defer observeOp("edges", timeNow())

	if threshold <= 0 {
		threshold = s.cfg.SimilarityThreshold
	}
	span.SetAttributes(
		attribute.String("domain", domain),
		attribute.Float64("threshold", threshold),
	)

	patterns := s.loadPatterns(ctx, domain)
	edges := graph.BuildEdges(patterns, threshold)

	span.SetAttributes(attribute.Int("edges", len(edges)))
	return edges, nil
}

// ComputeMincut builds the similarity graph and computes its global minimum
// cut. Zero and one node domains yield a zero cut with everything in
// partition A.
func (s *Service) ComputeMincut(ctx context.Context, domain string, threshold float64) (*pattern.MincutResult, error) {
	ctx, span := tracer.Start(ctx, "Service.ComputeMincut")
	defer span.End()
	defer observeOp("mincut", timeNow())

	if threshold <= 0 {
		threshold = s.cfg.SimilarityThreshold
	}
	span.SetAttributes(
		attribute.String("domain", domain),
		attribute.Float64("threshold", threshold),
	)

	patterns := s.loadPatterns(ctx, domain)
	g := graph.NewSimilarityGraph(patterns, threshold)
	cutValue, partA, partB := g.MinimumCut()

	span.SetAttributes(attribute.Float64("cut_value", cutValue))
	return &pattern.MincutResult{
		CutValue:   cutValue,
		PartitionA: partA,
		PartitionB: partB,
	}, nil
}

// PartitionPatterns recomputes the domain's clusters from a global minimum
// cut and persists the assignment. A cut value below the threshold splits
// the domain into two clusters, otherwise everything lands in cluster 0.
// The full assignment is computed before any write so concurrent readers
// never observe a partial repartitioning. Store failures are returned, not
// degraded: this is the maintenance path.
func (s *Service) PartitionPatterns(ctx context.Context, domain string, opts PartitionOptions) ([]pattern.Cluster, error) {
	ctx, span := tracer.Start(ctx, "Service.PartitionPatterns")
	defer span.End()
	defer observeOp("partition", timeNow())

	similarityThreshold := opts.SimilarityThreshold
	if similarityThreshold <= 0 {
		similarityThreshold = s.cfg.SimilarityThreshold
	}
	minCutThreshold := opts.MinCutThreshold
	if minCutThreshold <= 0 {
		minCutThreshold = s.cfg.MinCutThreshold
	}
	span.SetAttributes(
		attribute.String("domain", domain),
		attribute.Float64("similarity_threshold", similarityThreshold),
		attribute.Float64("min_cut_threshold", minCutThreshold),
	)

	patterns, err := s.store.ListPatterns(ctx, domain)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("loading patterns: %w", err)
	}
	if len(patterns) == 0 {
		return []pattern.Cluster{}, nil
	}

	byID := make(map[string]*pattern.Pattern, len(patterns))
	for _, p := range patterns {
		byID[p.ID] = p
	}

	g := graph.NewSimilarityGraph(patterns, similarityThreshold)
	cutValue, partA, partB := g.MinimumCut()

	var memberSets [][]string
	if cutValue < minCutThreshold && len(partA) > 0 && len(partB) > 0 {
		memberSets = [][]string{partA, partB}
	} else {
		all := make([]string, 0, len(patterns))
		for _, p := range patterns {
			all = append(all, p.ID)
		}
		memberSets = [][]string{all}
	}

	assignments := make(map[string]int, len(patterns))
	clusters := make([]pattern.Cluster, 0, len(memberSets))
	for clusterID, members := range memberSets {
		sort.Strings(members)
		clusterPatterns := make([]*pattern.Pattern, 0, len(members))
		for _, id := range members {
			assignments[id] = clusterID
			clusterPatterns = append(clusterPatterns, byID[id])
		}
		clusters = append(clusters, pattern.Cluster{
			ID:             clusterID,
			PatternIDs:     members,
			CoherenceScore: graph.MeanPairwiseSimilarity(clusterPatterns),
		})
	}

	if err := s.store.UpdateClusterAssignments(ctx, domain, assignments); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("persisting cluster assignments: %w", err)
	}

	// Partitioning doubles as the index repair point
	if s.index != nil {
		if err := s.index.RebuildDomain(ctx, domain, patterns); err != nil {
			s.logger.Warn("index rebuild failed",
				zap.String("domain", domain),
				zap.Error(err))
		}
	}

	clustersGauge.WithLabelValues(domain).Set(float64(len(clusters)))
	s.logger.Info("partitioned domain",
		zap.String("domain", domain),
		zap.Int("patterns", len(patterns)),
		zap.Int("clusters", len(clusters)),
		zap.Float64("cut_value", cutValue),
	)

	span.SetAttributes(attribute.Int("clusters", len(clusters)))
	return clusters, nil
}

// DetectNovelPattern scores how novel a pattern is against the domain's
// existing clusters. With no cluster assignments in the domain the pattern
// is novel unconditionally and the nearest cluster is nil.
func (s *Service) DetectNovelPattern(ctx context.Context, patternID, domain string, noveltyThreshold float64) (*pattern.NoveltyScore, error) {
	ctx, span := tracer.Start(ctx, "Service.DetectNovelPattern")
	defer span.End()
	defer observeOp("novelty", timeNow())

	if patternID == "" {
		return nil, ErrEmptyPatternID
	}
	if noveltyThreshold <= 0 {
		noveltyThreshold = s.cfg.NoveltyThreshold
	}
	span.SetAttributes(
		attribute.String("domain", domain),
		attribute.String("pattern_id", patternID),
		attribute.Float64("threshold", noveltyThreshold),
	)

	score := &pattern.NoveltyScore{
		PatternID: patternID,
		IsNovel:   true,
	}

	candidate, err := s.store.GetPattern(ctx, patternID)
	if errors.Is(err, store.ErrPatternNotFound) {
		span.RecordError(err)
		return nil, fmt.Errorf("loading pattern: %w", err)
	}
	if err != nil {
		s.logger.Warn("novelty check degraded, pattern load failed",
			zap.String("pattern_id", patternID),
			zap.Error(err))
		storeDegradations.Inc()
		return score, nil
	}

	best := -2.0 // below any cosine similarity
	var nearest *int
	for _, p := range s.loadPatterns(ctx, domain) {
		if p.ID == patternID || p.ClusterID == nil {
			continue
		}
		sim := graph.Cosine(candidate.Embedding, p.Embedding)
		if sim > best {
			best = sim
			cid := *p.ClusterID
			nearest = &cid
		}
	}

	if nearest == nil {
		// No clustered patterns in the domain
		return score, nil
	}

	score.MaxSimilarityToCluster = best
	score.NearestClusterID = nearest
	score.IsNovel = best < noveltyThreshold
	span.SetAttributes(
		attribute.Float64("max_similarity", best),
		attribute.Bool("is_novel", score.IsNovel),
	)
	return score, nil
}
