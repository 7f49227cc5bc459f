package models

// FindingKind identifies which heuristic produced a finding.
type FindingKind string

const (
	KindSelfTransfer        FindingKind = "self_transfer"
	KindRoundTrip           FindingKind = "round_trip"
	KindCycle               FindingKind = "cycle"
	KindCluster             FindingKind = "cluster"
	KindVolumeConcentration FindingKind = "volume_concentration"
	KindTimingAnomaly       FindingKind = "timing_anomaly"
	KindPairFrequency       FindingKind = "pair_frequency"
)

// AllFindingKinds enumerates the kinds in reporting order.
var AllFindingKinds = []FindingKind{
	KindSelfTransfer,
	KindRoundTrip,
	KindCycle,
	KindCluster,
	KindVolumeConcentration,
	KindTimingAnomaly,
	KindPairFrequency,
}

// Finding is the evidence record emitted by a single heuristic pass.
// Severity is bounded to [0.0, 1.0] and expresses that one heuristic's
// confidence in isolation; the aggregator weighs kinds against each other.
type Finding struct {
	Kind        FindingKind `json:"kind"`
	Addresses   []string    `json:"addresses"`   // Involved wallets, ordered (e.g. cycle path order)
	TransferIDs []string    `json:"transferIds"` // Supporting evidence transfers
	Severity    float64     `json:"severity"`    // 0.0 - 1.0
	Description string      `json:"description"` // Human-readable evidence summary
}

// RiskLevel bands an aggregate address score for reporting.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelForScore maps a cumulative address score onto a risk band.
// Bands mirror the combined-analysis verdicts used by downstream reports.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 2.5:
		return RiskCritical
	case score >= 1.5:
		return RiskHigh
	case score >= 0.7:
		return RiskMedium
	default:
		return RiskLow
	}
}
