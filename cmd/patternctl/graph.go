package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	partitionSimilarityThreshold float64
	partitionMinCutThreshold     float64
	pagerankTop                  int
)

func init() {
	partitionCmd.Flags().Float64Var(&partitionSimilarityThreshold, "similarity-threshold", 0, "edge similarity threshold (0 = server default)")
	partitionCmd.Flags().Float64Var(&partitionMinCutThreshold, "min-cut-threshold", 0, "cut value below which the domain splits (0 = server default)")
	pagerankCmd.Flags().IntVar(&pagerankTop, "top", 10, "number of patterns to show")
}

// partitionCmd recomputes a domain's clusters
var partitionCmd = &cobra.Command{
	Use:   "partition <domain>",
	Short: "Recompute and persist a domain's cluster assignment",
	Long: `Recompute the domain's clusters from the global minimum cut of its
similarity graph and persist the assignment.

Examples:
  # Partition with server defaults
  patternctl partition fraud-detection

  # Force a split by raising the cut threshold
  patternctl partition fraud-detection --min-cut-threshold 10`,
	Args: cobra.ExactArgs(1),
	RunE: runPartition,
}

// pagerankCmd ranks a domain's patterns by importance
var pagerankCmd = &cobra.Command{
	Use:   "pagerank <domain>",
	Short: "Rank a domain's patterns by usage-graph importance",
	Args:  cobra.ExactArgs(1),
	RunE:  runPageRank,
}

// PartitionRequest matches internal/analytics PartitionOptions
type PartitionRequest struct {
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
	MinCutThreshold     float64 `json:"min_cut_threshold,omitempty"`
}

// Cluster matches internal/pattern Cluster
type Cluster struct {
	ID             int      `json:"id"`
	PatternIDs     []string `json:"pattern_ids"`
	CoherenceScore float64  `json:"coherence_score"`
}

// PartitionResponse matches internal/http PartitionResponse
type PartitionResponse struct {
	Domain   string    `json:"domain"`
	Clusters []Cluster `json:"clusters"`
	Count    int       `json:"count"`
}

// PageRankEntry matches internal/pattern PageRankEntry
type PageRankEntry struct {
	PatternID  string  `json:"pattern_id"`
	Importance float64 `json:"importance"`
}

// PageRankResponse matches internal/http PageRankResponse
type PageRankResponse struct {
	Domain  string          `json:"domain"`
	Entries []PageRankEntry `json:"entries"`
}

// runPartition handles the partition command
func runPartition(cmd *cobra.Command, args []string) error {
	domain := args[0]

	req := PartitionRequest{
		SimilarityThreshold: partitionSimilarityThreshold,
		MinCutThreshold:     partitionMinCutThreshold,
	}

	var resp PartitionResponse
	if err := postJSON("/api/v1/domains/"+domain+"/partition", req, &resp); err != nil {
		return err
	}

	fmt.Printf("Domain %s partitioned into %d cluster(s)\n", resp.Domain, resp.Count)
	for _, c := range resp.Clusters {
		fmt.Printf("  Cluster %d: %d pattern(s), coherence %.3f\n", c.ID, len(c.PatternIDs), c.CoherenceScore)
		for _, id := range c.PatternIDs {
			fmt.Printf("    %s\n", id)
		}
	}
	return nil
}

// runPageRank handles the pagerank command
func runPageRank(cmd *cobra.Command, args []string) error {
	domain := args[0]

	var resp PageRankResponse
	if err := getJSON("/api/v1/domains/"+domain+"/pagerank", &resp); err != nil {
		return err
	}

	if len(resp.Entries) == 0 {
		fmt.Printf("No patterns in domain %s\n", domain)
		return nil
	}

	shown := len(resp.Entries)
	if pagerankTop > 0 && pagerankTop < shown {
		shown = pagerankTop
	}

	fmt.Printf("Top %d of %d pattern(s) in %s:\n", shown, len(resp.Entries), domain)
	for i := 0; i < shown; i++ {
		e := resp.Entries[i]
		fmt.Printf("  %2d. %-40s %.4f\n", i+1, e.PatternID, e.Importance)
	}
	return nil
}
