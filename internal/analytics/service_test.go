package analytics

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
	"github.com/fyrsmithlabs/patternd/internal/spiking"
	"github.com/fyrsmithlabs/patternd/internal/store"
)

func newTestService(t *testing.T, st store.Store, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(st, DefaultConfig(), spiking.DefaultConfig(), zap.NewNop(), opts...)
	require.NoError(t, err)
	return svc
}

func seedPattern(t *testing.T, st store.Store, id, domain string, embedding []float32) *pattern.Pattern {
	t.Helper()
	p, err := pattern.NewPattern(domain, embedding, 0.8)
	require.NoError(t, err)
	p.ID = id
	require.NoError(t, st.PutPattern(context.Background(), p))
	return p
}

// seedFixtureDomain stores six patterns in three natural groups: three
// valuation-like, two credit-like, one outlier orthogonal to both.
func seedFixtureDomain(t *testing.T, st store.Store, domain string) {
	t.Helper()
	seedPattern(t, st, "val-a", domain, []float32{1, 0, 0, 0})
	seedPattern(t, st, "val-b", domain, []float32{0.9, 0.1, 0, 0})
	seedPattern(t, st, "val-c", domain, []float32{0.95, 0.05, 0, 0})
	seedPattern(t, st, "credit-a", domain, []float32{0, 1, 0, 0})
	seedPattern(t, st, "credit-b", domain, []float32{0.1, 0.9, 0, 0})
	seedPattern(t, st, "outlier", domain, []float32{0, 0, 1, 0})
}

// failingStore wraps a Store and fails the configured read/write paths.
type failingStore struct {
	store.Store
	err error
}

func (f *failingStore) ListPatterns(ctx context.Context, domain string) ([]*pattern.Pattern, error) {
	return nil, f.err
}

func (f *failingStore) ListSpikeEvents(ctx context.Context, domain string, since time.Time) ([]*pattern.SpikeEvent, error) {
	return nil, f.err
}

func (f *failingStore) ListTrajectories(ctx context.Context, domain string) ([]*pattern.Trajectory, error) {
	return nil, f.err
}

func (f *failingStore) ResetPotentials(ctx context.Context, domain string) (int, error) {
	return 0, f.err
}

// conflictStore always reports a potential update conflict.
type conflictStore struct {
	store.Store
}

func (c *conflictStore) UpdatePotential(ctx context.Context, id string, expected, next float64, firedAt *time.Time) error {
	return store.ErrConflict
}

func TestService_BuildPatternEdges(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	svc := newTestService(t, st)
	seedFixtureDomain(t, st, "lending")

	t.Run("all edges meet the threshold", func(t *testing.T) {
		edges, err := svc.BuildPatternEdges(ctx, "lending", 0.3)
		require.NoError(t, err)
		require.NotEmpty(t, edges)
		for _, e := range edges {
			assert.GreaterOrEqual(t, e.Similarity, 0.3)
			assert.Equal(t, "lending", e.Domain)
		}
	})

	t.Run("raising the threshold never adds edges", func(t *testing.T) {
		loose, err := svc.BuildPatternEdges(ctx, "lending", 0.01)
		require.NoError(t, err)
		tight, err := svc.BuildPatternEdges(ctx, "lending", 0.3)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(loose), len(tight))
	})

	t.Run("outlier stays isolated", func(t *testing.T) {
		edges, err := svc.BuildPatternEdges(ctx, "lending", 0.01)
		require.NoError(t, err)
		for _, e := range edges {
			assert.NotEqual(t, "outlier", e.SourceID)
			assert.NotEqual(t, "outlier", e.TargetID)
		}
	})

	t.Run("unknown domain yields no edges", func(t *testing.T) {
		edges, err := svc.BuildPatternEdges(ctx, "never-seen", 0.3)
		require.NoError(t, err)
		assert.Empty(t, edges)
	})

	t.Run("zero threshold falls back to the default", func(t *testing.T) {
		edges, err := svc.BuildPatternEdges(ctx, "lending", 0)
		require.NoError(t, err)
		for _, e := range edges {
			assert.GreaterOrEqual(t, e.Similarity, DefaultSimilarityThreshold)
		}
	})
}

func TestService_ComputeMincut(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	svc := newTestService(t, st)

	t.Run("empty domain", func(t *testing.T) {
		cut, err := svc.ComputeMincut(ctx, "empty", 0.3)
		require.NoError(t, err)
		assert.Equal(t, 0.0, cut.CutValue)
		assert.Empty(t, cut.PartitionA)
		assert.Empty(t, cut.PartitionB)
	})

	t.Run("single node", func(t *testing.T) {
		seedPattern(t, st, "solo", "singleton", []float32{1, 0})
		cut, err := svc.ComputeMincut(ctx, "singleton", 0.3)
		require.NoError(t, err)
		assert.Equal(t, 0.0, cut.CutValue)
		assert.Equal(t, []string{"solo"}, cut.PartitionA)
		assert.Empty(t, cut.PartitionB)
	})

	t.Run("partitions cover the domain", func(t *testing.T) {
		seedFixtureDomain(t, st, "lending")
		cut, err := svc.ComputeMincut(ctx, "lending", 0.3)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, cut.CutValue, 0.0)
		assert.Equal(t, 6, len(cut.PartitionA)+len(cut.PartitionB))
	})

	t.Run("disconnected components cut at zero", func(t *testing.T) {
		// Fixture groups are mutually below threshold 0.3
		cut, err := svc.ComputeMincut(ctx, "lending", 0.3)
		require.NoError(t, err)
		assert.Equal(t, 0.0, cut.CutValue)
	})
}

func TestService_PartitionPatterns(t *testing.T) {
	ctx := context.Background()

	t.Run("low cut splits into two clusters", func(t *testing.T) {
		st := store.NewInMemoryStore()
		svc := newTestService(t, st)
		seedFixtureDomain(t, st, "lending")

		clusters, err := svc.PartitionPatterns(ctx, "lending", PartitionOptions{MinCutThreshold: 10.0})
		require.NoError(t, err)
		require.Len(t, clusters, 2)
		assert.Equal(t, 0, clusters[0].ID)
		assert.Equal(t, 1, clusters[1].ID)

		seen := map[string]bool{}
		for _, c := range clusters {
			assert.NotEmpty(t, c.PatternIDs)
			for _, id := range c.PatternIDs {
				assert.False(t, seen[id], "pattern %s assigned twice", id)
				seen[id] = true
			}
		}
		assert.Len(t, seen, 6)

		// Assignments are persisted
		for id := range seen {
			p, err := st.GetPattern(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, p.ClusterID)
			assert.Contains(t, []int{0, 1}, *p.ClusterID)
		}
	})

	t.Run("high cut keeps one cluster", func(t *testing.T) {
		st := store.NewInMemoryStore()
		svc := newTestService(t, st)
		seedPattern(t, st, "t1", "tight", []float32{1, 0})
		seedPattern(t, st, "t2", "tight", []float32{1, 0})
		seedPattern(t, st, "t3", "tight", []float32{1, 0})

		// Identical embeddings form a unit triangle with mincut 2.0
		clusters, err := svc.PartitionPatterns(ctx, "tight", PartitionOptions{MinCutThreshold: 1.0})
		require.NoError(t, err)
		require.Len(t, clusters, 1)
		assert.Equal(t, 0, clusters[0].ID)
		assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, clusters[0].PatternIDs)
		assert.InDelta(t, 1.0, clusters[0].CoherenceScore, 1e-9)
	})

	t.Run("empty domain yields no clusters", func(t *testing.T) {
		st := store.NewInMemoryStore()
		svc := newTestService(t, st)

		clusters, err := svc.PartitionPatterns(ctx, "vacant", PartitionOptions{})
		require.NoError(t, err)
		assert.Empty(t, clusters)
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		svc := newTestService(t, &failingStore{Store: store.NewInMemoryStore(), err: fmt.Errorf("store offline")})

		_, err := svc.PartitionPatterns(ctx, "lending", PartitionOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store offline")
	})
}

func TestService_DetectNovelPattern(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	svc := newTestService(t, st)

	seedPattern(t, st, "anchor", "reviews", []float32{1, 0})
	require.NoError(t, st.UpdateClusterAssignments(ctx, "reviews", map[string]int{"anchor": 0}))

	t.Run("similarity below threshold is novel", func(t *testing.T) {
		sim := 0.15
		other := math.Sqrt(1 - sim*sim)
		seedPattern(t, st, "distant", "reviews", []float32{float32(sim), float32(other)})

		score, err := svc.DetectNovelPattern(ctx, "distant", "reviews", 0.5)
		require.NoError(t, err)
		assert.True(t, score.IsNovel)
		assert.InDelta(t, 0.15, score.MaxSimilarityToCluster, 1e-6)
		require.NotNil(t, score.NearestClusterID)
		assert.Equal(t, 0, *score.NearestClusterID)
	})

	t.Run("similarity above threshold is not novel", func(t *testing.T) {
		sim := 0.75
		other := math.Sqrt(1 - sim*sim)
		seedPattern(t, st, "near", "reviews", []float32{float32(sim), float32(other)})

		score, err := svc.DetectNovelPattern(ctx, "near", "reviews", 0.5)
		require.NoError(t, err)
		assert.False(t, score.IsNovel)
		assert.InDelta(t, 0.75, score.MaxSimilarityToCluster, 1e-6)
	})

	t.Run("no clusters means novel unconditionally", func(t *testing.T) {
		st2 := store.NewInMemoryStore()
		svc2 := newTestService(t, st2)
		seedPattern(t, st2, "first", "fresh", []float32{1, 0})

		score, err := svc2.DetectNovelPattern(ctx, "first", "fresh", 0.5)
		require.NoError(t, err)
		assert.True(t, score.IsNovel)
		assert.Nil(t, score.NearestClusterID)
	})

	t.Run("unknown pattern", func(t *testing.T) {
		_, err := svc.DetectNovelPattern(ctx, "missing", "reviews", 0.5)
		assert.ErrorIs(t, err, store.ErrPatternNotFound)
	})

	t.Run("empty pattern id", func(t *testing.T) {
		_, err := svc.DetectNovelPattern(ctx, "", "reviews", 0.5)
		assert.ErrorIs(t, err, ErrEmptyPatternID)
	})
}

func TestService_ComputePatternPageRank(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	svc := newTestService(t, st)
	seedFixtureDomain(t, st, "lending")

	entries, err := svc.ComputePatternPageRank(ctx, "lending")
	require.NoError(t, err)
	require.Len(t, entries, 6)

	var sum float64
	for i, e := range entries {
		assert.GreaterOrEqual(t, e.Importance, 0.0)
		if i > 0 {
			assert.LessOrEqual(t, e.Importance, entries[i-1].Importance)
		}
		sum += e.Importance
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	t.Run("empty domain", func(t *testing.T) {
		entries, err := svc.ComputePatternPageRank(ctx, "vacant")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestService_BuildLinksFromTrajectories(t *testing.T) {
	ctx := context.Background()

	t.Run("co-occurrence links in trajectory order", func(t *testing.T) {
		st := store.NewInMemoryStore()
		svc := newTestService(t, st)
		seedFixtureDomain(t, st, "lending")

		_, err := svc.RecordTrajectory(ctx, "lending", []string{"val-a", "val-b", "val-c"})
		require.NoError(t, err)
		_, err = svc.RecordTrajectory(ctx, "lending", []string{"val-a", "val-b"})
		require.NoError(t, err)

		count, err := svc.BuildLinksFromTrajectories(ctx, "lending")
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		links, err := st.ListLinksFrom(ctx, "lending", "val-a")
		require.NoError(t, err)
		require.Len(t, links, 2)
		assert.Equal(t, "val-b", links[0].TargetID)
		assert.InDelta(t, 0.2, links[0].Weight, 1e-9) // two co-occurrences
		assert.Equal(t, "val-c", links[1].TargetID)
		assert.InDelta(t, 0.1, links[1].Weight, 1e-9)

		// No reverse links from trajectory data
		back, err := st.ListLinksFrom(ctx, "lending", "val-c")
		require.NoError(t, err)
		assert.Empty(t, back)
	})

	t.Run("rerunning is idempotent", func(t *testing.T) {
		st := store.NewInMemoryStore()
		svc := newTestService(t, st)
		seedFixtureDomain(t, st, "lending")
		_, err := svc.RecordTrajectory(ctx, "lending", []string{"val-a", "val-b"})
		require.NoError(t, err)

		first, err := svc.BuildLinksFromTrajectories(ctx, "lending")
		require.NoError(t, err)
		second, err := svc.BuildLinksFromTrajectories(ctx, "lending")
		require.NoError(t, err)
		assert.Equal(t, first, second)

		links, err := st.ListLinks(ctx, "lending")
		require.NoError(t, err)
		assert.Len(t, links, first)
		assert.InDelta(t, 0.1, links[0].Weight, 1e-9)
	})

	t.Run("similarity fallback without trajectories", func(t *testing.T) {
		st := store.NewInMemoryStore()
		svc := newTestService(t, st)
		seedPattern(t, st, "s1", "sparse", []float32{1, 0})
		seedPattern(t, st, "s2", "sparse", []float32{0.9, 0.1})
		seedPattern(t, st, "s3", "sparse", []float32{0, 1}) // below linkage threshold to s1

		count, err := svc.BuildLinksFromTrajectories(ctx, "sparse")
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		links, err := st.ListLinks(ctx, "sparse")
		require.NoError(t, err)
		for _, l := range links {
			assert.Greater(t, l.Weight, DefaultLinkageThreshold)
			assert.NotEqual(t, "s3", l.SourceID, "dissimilar pattern should not be linked")
			assert.NotEqual(t, "s3", l.TargetID, "dissimilar pattern should not be linked")
		}

		// Fallback links run in both directions
		forward, err := st.ListLinksFrom(ctx, "sparse", "s1")
		require.NoError(t, err)
		backward, err := st.ListLinksFrom(ctx, "sparse", "s2")
		require.NoError(t, err)
		assert.NotEmpty(t, forward)
		assert.NotEmpty(t, backward)
	})

	t.Run("empty domain writes nothing", func(t *testing.T) {
		st := store.NewInMemoryStore()
		svc := newTestService(t, st)

		count, err := svc.BuildLinksFromTrajectories(ctx, "vacant")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		svc := newTestService(t, &failingStore{Store: store.NewInMemoryStore(), err: fmt.Errorf("store offline")})

		_, err := svc.BuildLinksFromTrajectories(ctx, "lending")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store offline")
	})
}

func TestService_ReadPathsDegradeOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &failingStore{Store: store.NewInMemoryStore(), err: fmt.Errorf("store offline")})

	edges, err := svc.BuildPatternEdges(ctx, "lending", 0.3)
	require.NoError(t, err)
	assert.Empty(t, edges)

	cut, err := svc.ComputeMincut(ctx, "lending", 0.3)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cut.CutValue)

	entries, err := svc.ComputePatternPageRank(ctx, "lending")
	require.NoError(t, err)
	assert.Empty(t, entries)

	state, err := svc.GetNetworkState(ctx, "lending")
	require.NoError(t, err)
	assert.Equal(t, 0, state.TotalNeurons)

	scores, err := svc.DetectAnomalies(ctx, "lending", 300, 2.0)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	svc := newTestService(t, st)
	seedFixtureDomain(t, st, "lending")

	// Edges exist at a permissive threshold
	edges, err := svc.BuildPatternEdges(ctx, "lending", 0.01)
	require.NoError(t, err)
	assert.NotEmpty(t, edges)

	// Mincut covers all six patterns
	cut, err := svc.ComputeMincut(ctx, "lending", 0.3)
	require.NoError(t, err)
	assert.Equal(t, 6, len(cut.PartitionA)+len(cut.PartitionB))

	// A high mincut threshold forces a two-way split
	clusters, err := svc.PartitionPatterns(ctx, "lending", PartitionOptions{MinCutThreshold: 10.0})
	require.NoError(t, err)
	assert.Len(t, clusters, 2)

	// Every pattern is ranked
	entries, err := svc.ComputePatternPageRank(ctx, "lending")
	require.NoError(t, err)
	assert.Len(t, entries, 6)

	// Links derived from a successful valuation trajectory
	_, err = svc.RecordTrajectory(ctx, "lending", []string{"val-a", "val-b", "val-c"})
	require.NoError(t, err)
	linkCount, err := svc.BuildLinksFromTrajectories(ctx, "lending")
	require.NoError(t, err)
	assert.Equal(t, 3, linkCount)

	// Firing a valuation pattern raises its cluster-mates, not the outlier
	events, err := svc.FireSpike(ctx, "val-a")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "val-a", events[0].FiredPattern)
	assert.True(t, events[0].DidFire)
	assert.Equal(t, 0.0, events[0].NewPotential)

	for _, id := range []string{"val-b", "val-c"} {
		p, err := st.GetPattern(ctx, id)
		require.NoError(t, err)
		assert.Greater(t, p.SpikePotential, 0.0, "cluster-mate %s should be raised", id)
	}
	outlier, err := st.GetPattern(ctx, "outlier")
	require.NoError(t, err)
	assert.Equal(t, 0.0, outlier.SpikePotential)
}
