package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

// Timing Pattern Analyzer
//
// Humans transact irregularly; scripts do not. Two temporal signals are
// extracted per address from its inter-transfer gaps:
//
//   1. Scripted regularity: a coefficient of variation (σ/μ) of the
//      gaps far below 1 means near-constant intervals. With enough
//      samples, CV under the configured threshold is flagged, severity
//      growing as CV approaches zero (perfect clockwork).
//   2. Burst density: several transfers packed into a short sub-window
//      (default 3+ inside 5 minutes) indicates batched, coordinated
//      submission rather than organic activity.
//
// Both produce TimingAnomaly findings; an address can trigger either or
// both independently.

func detectTimingAnomalies(g *TransferGraph, cfg Config) ([]models.Finding, error) {
	var findings []models.Finding
	for _, addr := range g.Addresses() {
		times, ids := activityTimeline(g, addr)

		if f, ok := regularityFinding(addr, times, ids, cfg); ok {
			findings = append(findings, f)
		}
		if f, ok := burstFinding(addr, times, ids, cfg); ok {
			findings = append(findings, f)
		}
	}
	return findings, nil
}

// activityTimeline merges an address's incoming and outgoing transfers
// into one timestamp-sorted sequence, deduplicated by transfer id.
func activityTimeline(g *TransferGraph, addr string) ([]time.Time, []string) {
	seen := make(map[string]bool)
	var times []time.Time
	var ids []string
	for _, list := range [][]*models.Transfer{g.Out[addr], g.In[addr]} {
		for _, t := range list {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			times = append(times, t.Timestamp)
			ids = append(ids, t.ID)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	sort.Strings(ids)
	return times, ids
}

// regularityFinding flags unnaturally even inter-transfer intervals.
func regularityFinding(addr string, times []time.Time, ids []string, cfg Config) (models.Finding, bool) {
	if len(times) < cfg.TimingMinSamples+1 {
		return models.Finding{}, false // Need at least MinSamples gaps
	}

	gaps := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]).Seconds())
	}

	mean := 0.0
	for _, gap := range gaps {
		mean += gap
	}
	mean /= float64(len(gaps))
	if mean == 0 {
		return models.Finding{}, false // All simultaneous: the burst signal covers this
	}

	variance := 0.0
	for _, gap := range gaps {
		variance += (gap - mean) * (gap - mean)
	}
	variance /= float64(len(gaps))
	cv := math.Sqrt(variance) / mean

	if cv >= cfg.TimingCVThreshold {
		return models.Finding{}, false
	}

	severity := (cfg.TimingCVThreshold - cv) / cfg.TimingCVThreshold
	return models.Finding{
		Kind:        models.KindTimingAnomaly,
		Addresses:   []string{addr},
		TransferIDs: ids,
		Severity:    severity,
		Description: fmt.Sprintf("wallet %s transacts at near-constant intervals (CV %.3f over %d gaps, mean gap %s)",
			addr, cv, len(gaps), time.Duration(mean*float64(time.Second)).Round(time.Second)),
	}, true
}

// burstFinding flags the densest sub-window of an address's activity
// when it packs in at least the configured number of transfers.
func burstFinding(addr string, times []time.Time, ids []string, cfg Config) (models.Finding, bool) {
	maxCount := 0
	start := 0
	for end := range times {
		for times[end].Sub(times[start]) > cfg.TimingBurstWindow {
			start++
		}
		if end-start+1 > maxCount {
			maxCount = end - start + 1
		}
	}
	if maxCount < cfg.TimingBurstMin {
		return models.Finding{}, false
	}

	severity := math.Min(1, float64(maxCount)/(3*float64(cfg.TimingBurstMin)))
	return models.Finding{
		Kind:        models.KindTimingAnomaly,
		Addresses:   []string{addr},
		TransferIDs: ids,
		Severity:    severity,
		Description: fmt.Sprintf("wallet %s fired %d transfers inside a %s window", addr, maxCount, cfg.TimingBurstWindow),
	}, true
}
