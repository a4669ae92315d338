package http

import (
	"github.com/fyrsmithlabs/patternd/internal/pattern"
	"github.com/fyrsmithlabs/patternd/internal/search"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// EdgesResponse is the response body for GET /api/v1/domains/:domain/edges.
type EdgesResponse struct {
	Domain string                   `json:"domain"`
	Edges  []pattern.SimilarityEdge `json:"edges"`
	Count  int                      `json:"count"`
}

// PartitionResponse is the response body for POST /api/v1/domains/:domain/partition.
type PartitionResponse struct {
	Domain   string            `json:"domain"`
	Clusters []pattern.Cluster `json:"clusters"`
	Count    int               `json:"count"`
}

// PageRankResponse is the response body for GET /api/v1/domains/:domain/pagerank.
type PageRankResponse struct {
	Domain  string                  `json:"domain"`
	Entries []pattern.PageRankEntry `json:"entries"`
}

// RebuildLinksResponse is the response body for POST /api/v1/domains/:domain/links/rebuild.
type RebuildLinksResponse struct {
	Domain     string `json:"domain"`
	LinksBuilt int    `json:"links_built"`
}

// SpikeResponse is the response body for POST /api/v1/patterns/:id/spike.
type SpikeResponse struct {
	Events []pattern.SpikeEvent `json:"events"`
	Count  int                  `json:"count"`
}

// ResetResponse is the response body for POST /api/v1/domains/:domain/network/reset.
type ResetResponse struct {
	Domain     string `json:"domain"`
	ResetCount int    `json:"reset_count"`
}

// AnomaliesResponse is the response body for GET /api/v1/domains/:domain/anomalies.
type AnomaliesResponse struct {
	Domain        string                 `json:"domain"`
	WindowSeconds int                    `json:"window_seconds"`
	ZThreshold    float64                `json:"z_threshold"`
	Scores        []pattern.AnomalyScore `json:"scores"`
}

// SearchRequest is the request body for POST /api/v1/domains/:domain/search.
type SearchRequest struct {
	Embedding []float32 `json:"embedding"`
	K         int       `json:"k"`
}

// SearchResponse is the response body for POST /api/v1/domains/:domain/search.
type SearchResponse struct {
	Domain  string          `json:"domain"`
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

// CreatePatternRequest is the request body for POST /api/v1/patterns.
type CreatePatternRequest struct {
	Domain     string    `json:"domain"`
	Embedding  []float32 `json:"embedding"`
	Confidence float64   `json:"confidence"`
}

// CreatePatternResponse is the response body for POST /api/v1/patterns.
type CreatePatternResponse struct {
	Pattern *pattern.Pattern      `json:"pattern"`
	Novelty *pattern.NoveltyScore `json:"novelty"`
}

// CreateTrajectoryRequest is the request body for POST /api/v1/trajectories.
type CreateTrajectoryRequest struct {
	Domain     string   `json:"domain"`
	PatternIDs []string `json:"pattern_ids"`
}
