package engine

import (
	"time"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

// Config holds every tunable threshold of the detection engine.
// Zero values are replaced by defaults in Normalize; Validate rejects
// out-of-range values before any heuristic runs.
//
// Because zero means "use the default", a literal zero threshold (for
// example no cluster volume floor, or no evidence overlap discount)
// cannot be requested through an override. Callers that need one should
// pass a vanishingly small positive value instead.
type Config struct {
	// Round-trip detection
	RoundTripWindow time.Duration `json:"roundTripWindow"` // Max elapsed time for a return leg

	// Cycle detection
	CycleMaxLength    int           `json:"cycleMaxLength"`    // Longest simple cycle to search for (>= 3)
	CycleMaxResults   int           `json:"cycleMaxResults"`   // Cap on reported cycles
	CycleSearchBudget int           `json:"cycleSearchBudget"` // Max DFS expansions before truncating
	CycleLookback     time.Duration `json:"cycleLookback"`     // Only edges this close to the newest transfer; 0 = whole snapshot

	// Cluster detection
	ClusterMinVolume        float64 `json:"clusterMinVolume"`        // USD volume for an edge to count
	ClusterMinNodes         int     `json:"clusterMinNodes"`         // Smallest reportable component
	ClusterDensityThreshold float64 `json:"clusterDensityThreshold"` // Internal edge density gate (0-1)

	// Volume concentration
	VolumeConcentrationTopK     int     `json:"volumeConcentrationTopK"`
	VolumeConcentrationFraction float64 `json:"volumeConcentrationFraction"` // Share of total volume that triggers findings

	// Timing analysis
	TimingCVThreshold  float64       `json:"timingCvThreshold"` // Coefficient of variation below which intervals look scripted
	TimingMinSamples   int           `json:"timingMinSamples"`
	TimingBurstWindow  time.Duration `json:"timingBurstWindow"` // Sub-window for burst density
	TimingBurstMin     int           `json:"timingBurstMin"`    // Transfers inside the sub-window that count as a burst
	PairFrequencyLimit int           `json:"pairFrequencyThreshold"`

	// Aggregation
	FindingWeights     map[models.FindingKind]float64 `json:"findingWeights"`
	EvidenceOverlapCap float64                        `json:"evidenceOverlapCap"` // Residual weight of fully overlapping evidence (0-1)
}

// DefaultWeights balance the heuristics: structural patterns (cycles,
// self-transfers) are the strongest wash indicators, statistical signals
// (pair frequency, concentration) are weaker corroboration.
func DefaultWeights() map[models.FindingKind]float64 {
	return map[models.FindingKind]float64{
		models.KindSelfTransfer:        1.0,
		models.KindRoundTrip:           0.9,
		models.KindCycle:               1.0,
		models.KindCluster:             0.8,
		models.KindVolumeConcentration: 0.6,
		models.KindTimingAnomaly:       0.7,
		models.KindPairFrequency:       0.5,
	}
}

// DefaultConfig returns the engine defaults used by the original analysis
// pipeline (24h round-trip window, 10-transfer pair threshold, CV < 0.1).
func DefaultConfig() Config {
	return Config{
		RoundTripWindow:             24 * time.Hour,
		CycleMaxLength:              6,
		CycleMaxResults:             1000,
		CycleSearchBudget:           500_000,
		ClusterMinVolume:            100,
		ClusterMinNodes:             3,
		ClusterDensityThreshold:     0.5,
		VolumeConcentrationTopK:     5,
		VolumeConcentrationFraction: 0.5,
		TimingCVThreshold:           0.1,
		TimingMinSamples:            5,
		TimingBurstWindow:           5 * time.Minute,
		TimingBurstMin:              3,
		PairFrequencyLimit:          10,
		FindingWeights:              DefaultWeights(),
		EvidenceOverlapCap:          0.5,
	}
}

// Normalize fills unset options with defaults so callers can override
// only the thresholds they care about. Zero and unset are one and the
// same here; see the Config doc for the consequence.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.RoundTripWindow == 0 {
		c.RoundTripWindow = def.RoundTripWindow
	}
	if c.CycleMaxLength == 0 {
		c.CycleMaxLength = def.CycleMaxLength
	}
	if c.CycleMaxResults == 0 {
		c.CycleMaxResults = def.CycleMaxResults
	}
	if c.CycleSearchBudget == 0 {
		c.CycleSearchBudget = def.CycleSearchBudget
	}
	if c.ClusterMinVolume == 0 {
		c.ClusterMinVolume = def.ClusterMinVolume
	}
	if c.ClusterMinNodes == 0 {
		c.ClusterMinNodes = def.ClusterMinNodes
	}
	if c.ClusterDensityThreshold == 0 {
		c.ClusterDensityThreshold = def.ClusterDensityThreshold
	}
	if c.VolumeConcentrationTopK == 0 {
		c.VolumeConcentrationTopK = def.VolumeConcentrationTopK
	}
	if c.VolumeConcentrationFraction == 0 {
		c.VolumeConcentrationFraction = def.VolumeConcentrationFraction
	}
	if c.TimingCVThreshold == 0 {
		c.TimingCVThreshold = def.TimingCVThreshold
	}
	if c.TimingMinSamples == 0 {
		c.TimingMinSamples = def.TimingMinSamples
	}
	if c.TimingBurstWindow == 0 {
		c.TimingBurstWindow = def.TimingBurstWindow
	}
	if c.TimingBurstMin == 0 {
		c.TimingBurstMin = def.TimingBurstMin
	}
	if c.PairFrequencyLimit == 0 {
		c.PairFrequencyLimit = def.PairFrequencyLimit
	}
	if c.FindingWeights == nil {
		c.FindingWeights = DefaultWeights()
	}
	if c.EvidenceOverlapCap == 0 {
		c.EvidenceOverlapCap = def.EvidenceOverlapCap
	}
	return c
}

// Validate rejects out-of-range thresholds. It is called once per run,
// before the graph is built.
func (c Config) Validate() error {
	if c.RoundTripWindow < 0 {
		return &ConfigurationError{Option: "round_trip_window", Reason: "must not be negative"}
	}
	if c.CycleMaxLength < 3 {
		return &ConfigurationError{Option: "cycle_max_length", Reason: "must be at least 3"}
	}
	if c.CycleMaxResults < 0 {
		return &ConfigurationError{Option: "cycle_max_results", Reason: "must not be negative"}
	}
	if c.CycleSearchBudget < 0 {
		return &ConfigurationError{Option: "cycle_search_budget", Reason: "must not be negative"}
	}
	if c.CycleLookback < 0 {
		return &ConfigurationError{Option: "cycle_lookback", Reason: "must not be negative"}
	}
	if c.ClusterMinVolume < 0 {
		return &ConfigurationError{Option: "cluster_min_volume", Reason: "must not be negative"}
	}
	if c.ClusterMinNodes < 2 {
		return &ConfigurationError{Option: "cluster_min_nodes", Reason: "must be at least 2"}
	}
	if c.ClusterDensityThreshold < 0 || c.ClusterDensityThreshold > 1 {
		return &ConfigurationError{Option: "cluster_density_threshold", Reason: "must be within [0, 1]"}
	}
	if c.VolumeConcentrationTopK < 1 {
		return &ConfigurationError{Option: "volume_concentration_top_k", Reason: "must be at least 1"}
	}
	if c.VolumeConcentrationFraction <= 0 || c.VolumeConcentrationFraction > 1 {
		return &ConfigurationError{Option: "volume_concentration_fraction", Reason: "must be within (0, 1]"}
	}
	if c.TimingCVThreshold <= 0 {
		return &ConfigurationError{Option: "timing_cv_threshold", Reason: "must be positive"}
	}
	if c.TimingMinSamples < 2 {
		return &ConfigurationError{Option: "timing_min_samples", Reason: "must be at least 2"}
	}
	if c.TimingBurstWindow < 0 {
		return &ConfigurationError{Option: "timing_burst_window", Reason: "must not be negative"}
	}
	if c.TimingBurstMin < 1 {
		return &ConfigurationError{Option: "timing_burst_min", Reason: "must be at least 1"}
	}
	if c.PairFrequencyLimit < 2 {
		return &ConfigurationError{Option: "pair_frequency_threshold", Reason: "must be at least 2"}
	}
	if c.EvidenceOverlapCap < 0 || c.EvidenceOverlapCap > 1 {
		return &ConfigurationError{Option: "evidence_overlap_cap", Reason: "must be within [0, 1]"}
	}
	for kind, w := range c.FindingWeights {
		if w < 0 {
			return &ConfigurationError{Option: "finding_weights." + string(kind), Reason: "must not be negative"}
		}
	}
	return nil
}
