package models

import "time"

// PassStatus reports whether one heuristic pass completed.
// A failed pass never aborts the others; its reason is surfaced here.
type PassStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Summary holds run-level statistics for an AnalysisResult.
type Summary struct {
	TotalTransfers      int                 `json:"totalTransfers"`
	RejectedTransfers   int                 `json:"rejectedTransfers"`
	UniqueAddresses     int                 `json:"uniqueAddresses"`
	TotalVolumeUSD      float64             `json:"totalVolumeUsd"`
	FirstTransfer       time.Time           `json:"firstTransfer,omitempty"`
	LastTransfer        time.Time           `json:"lastTransfer,omitempty"`
	FindingsByKind      map[FindingKind]int `json:"findingsByKind"`
	SuspiciousAddresses int                 `json:"suspiciousAddresses"`
	VolumeGini          float64             `json:"volumeGini"` // 0=evenly spread, 1=fully concentrated
	Passes              []PassStatus        `json:"passes"`
	Truncated           bool                `json:"truncated"` // Cycle/cluster search hit a configured cap
	TruncationNote      string              `json:"truncationNote,omitempty"`
}

// AnalysisResult is the sole artifact of one analysis run.
// It is immutable after construction and deterministic for identical
// inputs and configuration.
type AnalysisResult struct {
	Findings      []Finding          `json:"findings"`
	AddressScores map[string]float64 `json:"addressScores"`
	Rejected      []RejectedRecord   `json:"rejected"`
	Summary       Summary            `json:"summary"`
}

// SuspiciousAddresses returns the addresses whose cumulative score maps
// to the given risk level or above, in no particular order.
func (r *AnalysisResult) SuspiciousAddresses(minLevel RiskLevel) []string {
	rank := map[RiskLevel]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2, RiskCritical: 3}
	min := rank[minLevel]

	var out []string
	for addr, score := range r.AddressScores {
		if rank[RiskLevelForScore(score)] >= min {
			out = append(out, addr)
		}
	}
	return out
}
