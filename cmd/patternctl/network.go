package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	anomalyWindowSeconds int
	anomalyZThreshold    float64
)

func init() {
	anomaliesCmd.Flags().IntVar(&anomalyWindowSeconds, "window", 0, "recent window in seconds (0 = server default)")
	anomaliesCmd.Flags().Float64Var(&anomalyZThreshold, "z-threshold", 0, "anomaly score threshold (0 = server default)")
}

// spikeCmd stimulates one pattern
var spikeCmd = &cobra.Command{
	Use:   "spike <pattern-id>",
	Short: "Fire a spike into a pattern and propagate it one hop",
	Long: `Fire a spike into a pattern. The pattern fires unconditionally and the
spike propagates one hop along its outgoing usage links.

Examples:
  patternctl spike 3fa85f64-5717-4562-b3fc-2c963f66afa6`,
	Args: cobra.ExactArgs(1),
	RunE: runSpike,
}

// networkCmd reports a domain's spiking state
var networkCmd = &cobra.Command{
	Use:   "network <domain>",
	Short: "Show a domain's aggregate spiking network state",
	Args:  cobra.ExactArgs(1),
	RunE:  runNetwork,
}

// resetCmd zeroes a domain's potentials
var resetCmd = &cobra.Command{
	Use:   "reset <domain>",
	Short: "Reset every membrane potential in a domain to zero",
	Args:  cobra.ExactArgs(1),
	RunE:  runReset,
}

// anomaliesCmd scores a domain for unusual spiking
var anomaliesCmd = &cobra.Command{
	Use:   "anomalies <domain>",
	Short: "Score a domain's patterns for unusual spiking activity",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnomalies,
}

// SpikeEvent matches internal/pattern SpikeEvent
type SpikeEvent struct {
	FiredPattern string  `json:"fired_pattern"`
	NewPotential float64 `json:"new_potential"`
	DidFire      bool    `json:"did_fire"`
}

// SpikeResponse matches internal/http SpikeResponse
type SpikeResponse struct {
	Events []SpikeEvent `json:"events"`
	Count  int          `json:"count"`
}

// FiringPattern matches internal/pattern FiringPattern
type FiringPattern struct {
	PatternID  string `json:"pattern_id"`
	SpikeCount int    `json:"spike_count"`
}

// NetworkState matches internal/pattern NetworkState
type NetworkState struct {
	Domain            string          `json:"domain"`
	TotalNeurons      int             `json:"total_neurons"`
	ActiveNeurons     int             `json:"active_neurons"`
	AvgPotential      float64         `json:"avg_potential"`
	RecentSpikes      int             `json:"recent_spikes"`
	TopFiringPatterns []FiringPattern `json:"top_firing_patterns"`
}

// ResetResponse matches internal/http ResetResponse
type ResetResponse struct {
	Domain     string `json:"domain"`
	ResetCount int    `json:"reset_count"`
}

// AnomalyScore matches internal/pattern AnomalyScore
type AnomalyScore struct {
	PatternID string  `json:"pattern_id"`
	SpikeRate float64 `json:"spike_rate"`
	AvgRate   float64 `json:"avg_rate"`
	Score     float64 `json:"anomaly_score"`
}

// AnomaliesResponse matches internal/http AnomaliesResponse
type AnomaliesResponse struct {
	Domain        string         `json:"domain"`
	WindowSeconds int            `json:"window_seconds"`
	ZThreshold    float64        `json:"z_threshold"`
	Scores        []AnomalyScore `json:"scores"`
}

// runSpike handles the spike command
func runSpike(cmd *cobra.Command, args []string) error {
	id := args[0]

	var resp SpikeResponse
	if err := postJSON("/api/v1/patterns/"+id+"/spike", nil, &resp); err != nil {
		return err
	}

	for i, ev := range resp.Events {
		switch {
		case i == 0:
			fmt.Printf("Fired %s\n", ev.FiredPattern)
		case ev.DidFire:
			fmt.Printf("  -> %s fired\n", ev.FiredPattern)
		default:
			fmt.Printf("  -> %s potential %.4f\n", ev.FiredPattern, ev.NewPotential)
		}
	}
	fmt.Printf("%d event(s) recorded\n", resp.Count)
	return nil
}

// runNetwork handles the network command
func runNetwork(cmd *cobra.Command, args []string) error {
	domain := args[0]

	var resp NetworkState
	if err := getJSON("/api/v1/domains/"+domain+"/network", &resp); err != nil {
		return err
	}

	fmt.Printf("Domain:          %s\n", resp.Domain)
	fmt.Printf("Total neurons:   %d\n", resp.TotalNeurons)
	fmt.Printf("Active neurons:  %d\n", resp.ActiveNeurons)
	fmt.Printf("Avg potential:   %.4f\n", resp.AvgPotential)
	fmt.Printf("Recent spikes:   %d\n", resp.RecentSpikes)
	if len(resp.TopFiringPatterns) > 0 {
		fmt.Println("Top firing patterns:")
		for _, fp := range resp.TopFiringPatterns {
			fmt.Printf("  %-40s %d spike(s)\n", fp.PatternID, fp.SpikeCount)
		}
	}
	return nil
}

// runReset handles the reset command
func runReset(cmd *cobra.Command, args []string) error {
	domain := args[0]

	var resp ResetResponse
	if err := postJSON("/api/v1/domains/"+domain+"/network/reset", nil, &resp); err != nil {
		return err
	}

	fmt.Printf("Reset %d neuron(s) in %s\n", resp.ResetCount, resp.Domain)
	return nil
}

// runAnomalies handles the anomalies command
func runAnomalies(cmd *cobra.Command, args []string) error {
	domain := args[0]

	query := url.Values{}
	if anomalyWindowSeconds > 0 {
		query.Set("window_seconds", strconv.Itoa(anomalyWindowSeconds))
	}
	if anomalyZThreshold > 0 {
		query.Set("z_threshold", strconv.FormatFloat(anomalyZThreshold, 'f', -1, 64))
	}
	path := "/api/v1/domains/" + domain + "/anomalies"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp AnomaliesResponse
	if err := getJSON(path, &resp); err != nil {
		return err
	}

	fmt.Printf("Anomaly scores for %s (window %ds, threshold %.2f):\n",
		resp.Domain, resp.WindowSeconds, resp.ZThreshold)
	if len(resp.Scores) == 0 {
		fmt.Println("  no patterns")
		return nil
	}
	for _, s := range resp.Scores {
		marker := " "
		if s.Score >= resp.ZThreshold {
			marker = "!"
		}
		fmt.Printf("  %s %-40s rate %.2f avg %.2f score %+.2f\n",
			marker, s.PatternID, s.SpikeRate, s.AvgRate, s.Score)
	}
	return nil
}
