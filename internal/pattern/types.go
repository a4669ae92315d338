package pattern

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for pattern records.
var (
	ErrEmptyDomain       = errors.New("domain cannot be empty")
	ErrEmptyEmbedding    = errors.New("embedding cannot be empty")
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")
	ErrEmptyPatternID    = errors.New("pattern ID cannot be empty")
	ErrSelfLink          = errors.New("link source and target must differ")
	ErrInvalidWeight     = errors.New("link weight must be positive")
	ErrEmptyTrajectory   = errors.New("trajectory must reference at least two patterns")
)

// Pattern represents a stored, embedded record of a previously successful
// tool-use sequence in the reasoning bank.
//
// Patterns are created when a reasoning trace yields a new tool-sequence
// fingerprint. The analytics engine mutates only ClusterID and the spiking
// state (SpikePotential, LastFiredAt); everything else is owned by the
// recording side. Patterns are never deleted by the engine.
type Pattern struct {
	// ID is the unique pattern identifier (UUID).
	ID string `json:"id"`

	// Domain namespaces the pattern (e.g., by task category). Graph and
	// clustering operations never mix domains.
	Domain string `json:"domain"`

	// Embedding is the pre-computed, fixed-dimension vector for this
	// pattern. Expected to be unit-normalized by the producer.
	Embedding []float32 `json:"embedding"`

	// ClusterID is the assigned cluster within the domain, or nil if the
	// domain has not been partitioned since this pattern arrived.
	ClusterID *int `json:"cluster_id,omitempty"`

	// SpikePotential is the membrane potential of this pattern's neuron
	// in the spiking network. Always >= 0; firing resets it to 0.
	SpikePotential float64 `json:"spike_potential"`

	// LastFiredAt is when this pattern's neuron last crossed threshold,
	// or nil if it never fired.
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`

	// UsageCount tracks how many times this pattern has been retrieved.
	UsageCount int `json:"usage_count"`

	// Confidence is a score from 0.0 to 1.0 indicating reliability.
	Confidence float64 `json:"confidence"`

	// CreatedAt is when the pattern was recorded.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the pattern was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPattern creates a pattern with a generated UUID and zeroed spiking state.
func NewPattern(domain string, embedding []float32, confidence float64) (*Pattern, error) {
	if domain == "" {
		return nil, ErrEmptyDomain
	}
	if len(embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if confidence < 0.0 || confidence > 1.0 {
		return nil, ErrInvalidConfidence
	}

	now := time.Now()
	return &Pattern{
		ID:         uuid.New().String(),
		Domain:     domain,
		Embedding:  embedding,
		Confidence: confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Validate checks if the pattern has valid fields.
func (p *Pattern) Validate() error {
	if p.ID == "" {
		return ErrEmptyPatternID
	}
	if p.Domain == "" {
		return ErrEmptyDomain
	}
	if len(p.Embedding) == 0 {
		return ErrEmptyEmbedding
	}
	if p.Confidence < 0.0 || p.Confidence > 1.0 {
		return ErrInvalidConfidence
	}
	if p.SpikePotential < 0 {
		return errors.New("spike potential cannot be negative")
	}
	if p.UsageCount < 0 {
		return errors.New("usage count cannot be negative")
	}
	return nil
}

// IncrementUsage increments the usage count and updates the timestamp.
func (p *Pattern) IncrementUsage() {
	p.UsageCount++
	p.UpdatedAt = time.Now()
}

// UsageLink is a directed, persisted edge between two same-domain patterns.
// Links are derived from trajectory co-occurrence and drive spike propagation:
// when the source fires, the link weight becomes input to the target's neuron.
type UsageLink struct {
	// SourceID is the upstream pattern.
	SourceID string `json:"source_id"`

	// TargetID is the downstream pattern receiving propagated input.
	TargetID string `json:"target_id"`

	// Domain matches both endpoints' domain.
	Domain string `json:"domain"`

	// Weight scales the propagated input. Positive; grows with observed
	// co-occurrence, capped at 1.0 by the link builder.
	Weight float64 `json:"weight"`

	// UpdatedAt is when the link weight last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUsageLink creates a validated directed link.
func NewUsageLink(domain, sourceID, targetID string, weight float64) (*UsageLink, error) {
	if domain == "" {
		return nil, ErrEmptyDomain
	}
	if sourceID == "" || targetID == "" {
		return nil, ErrEmptyPatternID
	}
	if sourceID == targetID {
		return nil, ErrSelfLink
	}
	if weight <= 0 {
		return nil, ErrInvalidWeight
	}
	return &UsageLink{
		SourceID:  sourceID,
		TargetID:  targetID,
		Domain:    domain,
		Weight:    weight,
		UpdatedAt: time.Now(),
	}, nil
}

// Trajectory records the patterns used together in one successful reasoning
// run. Only successful trajectories are stored; they are the input to the
// usage-link builder.
type Trajectory struct {
	// ID is the unique trajectory identifier (UUID).
	ID string `json:"id"`

	// Domain matches the referenced patterns' domain.
	Domain string `json:"domain"`

	// PatternIDs lists the patterns applied during the run, in order.
	PatternIDs []string `json:"pattern_ids"`

	// SucceededAt is when the run completed successfully.
	SucceededAt time.Time `json:"succeeded_at"`
}

// NewTrajectory creates a validated trajectory record.
func NewTrajectory(domain string, patternIDs []string) (*Trajectory, error) {
	if domain == "" {
		return nil, ErrEmptyDomain
	}
	if len(patternIDs) < 2 {
		return nil, ErrEmptyTrajectory
	}
	for _, id := range patternIDs {
		if id == "" {
			return nil, ErrEmptyPatternID
		}
	}
	return &Trajectory{
		ID:          uuid.New().String(),
		Domain:      domain,
		PatternIDs:  patternIDs,
		SucceededAt: time.Now(),
	}, nil
}

// SpikeEvent records one application of the integrate-and-fire step to a
// pattern's neuron. Events are append-only; a FireSpike call produces one
// event for the stimulated pattern plus one per outgoing usage link.
type SpikeEvent struct {
	// FiredPattern is the pattern whose neuron was stepped.
	FiredPattern string `json:"fired_pattern"`

	// Domain is the pattern's domain, denormalized for windowed queries.
	Domain string `json:"domain"`

	// NewPotential is the membrane potential after the step (0 if fired).
	NewPotential float64 `json:"new_potential"`

	// DidFire reports whether the step crossed threshold.
	DidFire bool `json:"did_fire"`

	// Timestamp is when the step was applied.
	Timestamp time.Time `json:"timestamp"`
}
