package pattern

import "time"

// SimilarityEdge is a derived, undirected edge between two same-domain
// patterns whose embedding cosine similarity met the build threshold.
// Edges are recomputed from embeddings on demand and never persisted.
type SimilarityEdge struct {
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Domain     string  `json:"domain"`
	Similarity float64 `json:"similarity"`
}

// MincutResult is the global weighted minimum cut of a domain's similarity
// graph. The two partitions cover every node: |PartitionA| + |PartitionB|
// equals the domain's pattern count.
type MincutResult struct {
	CutValue   float64  `json:"cut_value"`
	PartitionA []string `json:"partition_a"`
	PartitionB []string `json:"partition_b"`
}

// Cluster is one cell of a domain's partition. Cluster IDs are contiguous
// starting at 0; CoherenceScore is the mean pairwise similarity among members.
type Cluster struct {
	ID             int      `json:"id"`
	PatternIDs     []string `json:"pattern_ids"`
	CoherenceScore float64  `json:"coherence_score"`
}

// NoveltyScore reports how close a candidate pattern sits to the existing
// clusters of its domain.
type NoveltyScore struct {
	PatternID string `json:"pattern_id"`

	// MaxSimilarityToCluster is the highest similarity to any clustered
	// pattern, in [-1, 1]. Zero when no clusters exist.
	MaxSimilarityToCluster float64 `json:"max_similarity_to_cluster"`

	// NearestClusterID is the cluster achieving the maximum, nil when the
	// domain has no cluster assignments.
	NearestClusterID *int `json:"nearest_cluster_id,omitempty"`

	// IsNovel is true when no clusters exist, or when the maximum
	// similarity falls below the novelty threshold.
	IsNovel bool `json:"is_novel"`
}

// PageRankEntry scores one pattern's structural importance. Importance is
// non-negative; result lists are sorted descending.
type PageRankEntry struct {
	PatternID  string  `json:"pattern_id"`
	Importance float64 `json:"importance"`
}

// FiringPattern summarizes one pattern's recent firing activity.
type FiringPattern struct {
	PatternID   string     `json:"pattern_id"`
	SpikeCount  int        `json:"spike_count"`
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`
}

// NetworkState aggregates a domain's spiking activity. Reporting never
// mutates neuron state.
type NetworkState struct {
	Domain            string          `json:"domain"`
	TotalNeurons      int             `json:"total_neurons"`
	ActiveNeurons     int             `json:"active_neurons"`
	AvgPotential      float64         `json:"avg_potential"`
	RecentSpikes      int             `json:"recent_spikes"`
	TopFiringPatterns []FiringPattern `json:"top_firing_patterns"`
}

// AnomalyScore compares a pattern's recent spike rate to its historical
// baseline. Score is a z-score style normalized deviation.
type AnomalyScore struct {
	PatternID string  `json:"pattern_id"`
	SpikeRate float64 `json:"spike_rate"`
	AvgRate   float64 `json:"avg_rate"`
	Score     float64 `json:"anomaly_score"`
}
