// Package analytics implements the pattern-memory engine: similarity graph
// construction, mincut clustering, novelty scoring, PageRank, usage-link
// derivation, spike simulation, and anomaly detection over a pattern store.
//
// Graph and neuron math live in the pure internal/graph and internal/spiking
// packages; this package loads snapshots from the store, runs the engines,
// and writes results back. Read operations degrade to empty results when the
// store is unreachable; maintenance writes surface the failure.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
	"github.com/fyrsmithlabs/patternd/internal/search"
	"github.com/fyrsmithlabs/patternd/internal/spiking"
	"github.com/fyrsmithlabs/patternd/internal/store"
)

var tracer = otel.Tracer("patternd.analytics")

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

var (
	// ErrSpikeNotRecorded reports that a spike was dropped because the
	// potential update kept conflicting after bounded retries.
	ErrSpikeNotRecorded = errors.New("spike not recorded")

	// ErrEmptyPatternID indicates a request without a pattern ID.
	ErrEmptyPatternID = errors.New("pattern id cannot be empty")
)

const (
	// DefaultSimilarityThreshold is the minimum cosine similarity for a
	// graph edge.
	DefaultSimilarityThreshold = 0.3

	// DefaultMinCutThreshold is the cut value below which a domain is
	// split into two clusters.
	DefaultMinCutThreshold = 2.0

	// DefaultLinkageThreshold is the similarity floor for deriving usage
	// links when no trajectories exist.
	DefaultLinkageThreshold = 0.2

	// DefaultNoveltyThreshold marks a pattern novel when its best cluster
	// similarity falls below it.
	DefaultNoveltyThreshold = 0.5

	// DefaultPageRankDamping is the standard PageRank damping factor.
	DefaultPageRankDamping = 0.85

	// DefaultPageRankTolerance is the L1 residual at which iteration stops.
	DefaultPageRankTolerance = 1e-6

	// DefaultPageRankMaxIterations caps PageRank iterations.
	DefaultPageRankMaxIterations = 100

	// DefaultMaxUpdateRetries bounds compare-and-swap retries on spike
	// potential updates.
	DefaultMaxUpdateRetries = 5
)

// Config holds the engine's tunable thresholds. Zero values are replaced by
// the package defaults.
type Config struct {
	SimilarityThreshold   float64 `koanf:"similarity_threshold"`
	MinCutThreshold       float64 `koanf:"min_cut_threshold"`
	LinkageThreshold      float64 `koanf:"linkage_threshold"`
	NoveltyThreshold      float64 `koanf:"novelty_threshold"`
	PageRankDamping       float64 `koanf:"pagerank_damping"`
	PageRankTolerance     float64 `koanf:"pagerank_tolerance"`
	PageRankMaxIterations int     `koanf:"pagerank_max_iterations"`
	MaxUpdateRetries      int     `koanf:"max_update_retries"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:   DefaultSimilarityThreshold,
		MinCutThreshold:       DefaultMinCutThreshold,
		LinkageThreshold:      DefaultLinkageThreshold,
		NoveltyThreshold:      DefaultNoveltyThreshold,
		PageRankDamping:       DefaultPageRankDamping,
		PageRankTolerance:     DefaultPageRankTolerance,
		PageRankMaxIterations: DefaultPageRankMaxIterations,
		MaxUpdateRetries:      DefaultMaxUpdateRetries,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.MinCutThreshold == 0 {
		c.MinCutThreshold = DefaultMinCutThreshold
	}
	if c.LinkageThreshold == 0 {
		c.LinkageThreshold = DefaultLinkageThreshold
	}
	if c.NoveltyThreshold == 0 {
		c.NoveltyThreshold = DefaultNoveltyThreshold
	}
	if c.PageRankDamping == 0 {
		c.PageRankDamping = DefaultPageRankDamping
	}
	if c.PageRankTolerance == 0 {
		c.PageRankTolerance = DefaultPageRankTolerance
	}
	if c.PageRankMaxIterations == 0 {
		c.PageRankMaxIterations = DefaultPageRankMaxIterations
	}
	if c.MaxUpdateRetries == 0 {
		c.MaxUpdateRetries = DefaultMaxUpdateRetries
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.PageRankDamping <= 0 || c.PageRankDamping >= 1 {
		return fmt.Errorf("pagerank damping must be in (0, 1), got %v", c.PageRankDamping)
	}
	if c.PageRankTolerance <= 0 {
		return fmt.Errorf("pagerank tolerance must be positive, got %v", c.PageRankTolerance)
	}
	if c.PageRankMaxIterations <= 0 {
		return fmt.Errorf("pagerank max iterations must be positive, got %d", c.PageRankMaxIterations)
	}
	if c.MaxUpdateRetries <= 0 {
		return fmt.Errorf("max update retries must be positive, got %d", c.MaxUpdateRetries)
	}
	return nil
}

// SpikePublisher publishes spike events to an external stream. Publishing is
// best effort; failures are logged, never returned to API callers.
type SpikePublisher interface {
	PublishSpike(ctx context.Context, ev *pattern.SpikeEvent) error
}

// Service runs pattern analytics over a store.
type Service struct {
	store     store.Store
	cfg       Config
	spiking   spiking.Config
	logger    *zap.Logger
	index     *search.Index
	publisher SpikePublisher
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithIndex attaches a similarity index, kept in sync on pattern ingest and
// rebuilt on demand.
func WithIndex(idx *search.Index) Option {
	return func(s *Service) { s.index = idx }
}

// WithPublisher attaches a spike event publisher.
func WithPublisher(p SpikePublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates the analytics service.
func NewService(st store.Store, cfg Config, spikingCfg spiking.Config, logger *zap.Logger, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating engine config: %w", err)
	}
	if err := spikingCfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating spiking config: %w", err)
	}

	s := &Service{
		store:   st,
		cfg:     cfg,
		spiking: spikingCfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// loadPatterns fetches a domain snapshot for read paths. Store failures
// degrade to an empty snapshot so analytics reads never hard-fail.
func (s *Service) loadPatterns(ctx context.Context, domain string) []*pattern.Pattern {
	patterns, err := s.store.ListPatterns(ctx, domain)
	if err != nil {
		s.logger.Warn("pattern load failed, degrading to empty snapshot",
			zap.String("domain", domain),
			zap.Error(err))
		storeDegradations.Inc()
		return nil
	}
	return patterns
}
