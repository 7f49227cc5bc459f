package engine

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

// Aggregator / Scorer
//
// The join point of the pipeline. All heuristic passes run concurrently
// over the same read-only graph (none needs write access), each in its
// own failure domain: a pass that errors or panics records a structured
// failure in the summary and the others keep going. The aggregator
// waits for all of them, merges the findings, and computes the weighted
// per-address suspicion scores.
//
// Scoring is order-invariant: findings are put into a canonical order
// before accumulation, so results do not depend on which pass finished
// first. Overlapping evidence is discounted: a transfer already counted
// against an address reduces the contribution of later findings that
// cite it, bounded by the configured overlap cap.

// pass is one isolated heuristic over the shared graph. Truncation is
// reported out-of-band so a capped search degrades instead of failing.
type pass struct {
	name string
	run  func(*TransferGraph, Config) (findings []models.Finding, truncated bool, note string, err error)
}

func plain(fn func(*TransferGraph, Config) ([]models.Finding, error)) func(*TransferGraph, Config) ([]models.Finding, bool, string, error) {
	return func(g *TransferGraph, cfg Config) ([]models.Finding, bool, string, error) {
		f, err := fn(g, cfg)
		return f, false, "", err
	}
}

func allPasses() []pass {
	return []pass{
		{name: "self_transfer", run: plain(detectSelfTransfers)},
		{name: "round_trip", run: plain(detectRoundTrips)},
		{name: "cycle", run: func(g *TransferGraph, cfg Config) ([]models.Finding, bool, string, error) {
			f, truncated, err := detectCycles(g, cfg)
			note := ""
			if truncated {
				note = "cycle search hit a configured cap; results are truncated"
			}
			return f, truncated, note, err
		}},
		{name: "cluster", run: plain(detectClusters)},
		{name: "volume_concentration", run: plain(detectVolumeConcentration)},
		{name: "timing", run: plain(detectTimingAnomalies)},
		{name: "pair_frequency", run: plain(detectFrequentPairs)},
	}
}

// Analyze runs the full detection pipeline over one immutable snapshot
// of transfers. It is deterministic for identical inputs and config:
// no randomness, no wall-clock reads.
func Analyze(transfers []models.Transfer, cfg Config) (*models.AnalysisResult, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := BuildGraph(transfers)

	passes := allPasses()
	type slot struct {
		findings  []models.Finding
		truncated bool
		note      string
		err       error
	}
	slots := make([]slot, len(passes))

	var eg errgroup.Group
	for i, p := range passes {
		i, p := i, p
		eg.Go(func() error {
			defer func() {
				// One pass's panic must not take down its siblings.
				if r := recover(); r != nil {
					slots[i].err = fmt.Errorf("pass %s panicked: %v", p.name, r)
				}
			}()
			slots[i].findings, slots[i].truncated, slots[i].note, slots[i].err = p.run(g, cfg)
			return nil
		})
	}
	_ = eg.Wait() // Pass failures land in slots, never abort the group

	var findings []models.Finding
	statuses := make([]models.PassStatus, 0, len(passes))
	truncated := false
	var notes []string
	for i, p := range passes {
		st := models.PassStatus{Name: p.name, OK: slots[i].err == nil}
		if slots[i].err != nil {
			st.Error = slots[i].err.Error()
		} else {
			findings = append(findings, slots[i].findings...)
		}
		if slots[i].truncated {
			truncated = true
			if slots[i].note != "" {
				notes = append(notes, slots[i].note)
			}
		}
		statuses = append(statuses, st)
	}

	sortFindings(findings)
	scores := scoreAddresses(findings, cfg)

	first, last := g.TimeSpan()
	byKind := make(map[models.FindingKind]int, len(models.AllFindingKinds))
	for _, kind := range models.AllFindingKinds {
		byKind[kind] = 0
	}
	for _, f := range findings {
		byKind[f.Kind]++
	}

	return &models.AnalysisResult{
		Findings:      findings,
		AddressScores: scores,
		Rejected:      g.Rejected,
		Summary: models.Summary{
			TotalTransfers:      len(g.Transfers),
			RejectedTransfers:   len(g.Rejected),
			UniqueAddresses:     len(g.Addresses()),
			TotalVolumeUSD:      g.TotalUSD,
			FirstTransfer:       first,
			LastTransfer:        last,
			FindingsByKind:      byKind,
			SuspiciousAddresses: len(scores),
			VolumeGini:          volumeGini(g),
			Passes:              statuses,
			Truncated:           truncated,
			TruncationNote:      strings.Join(notes, "; "),
		},
	}, nil
}

// sortFindings puts findings into canonical order: kind (reporting
// order), severity descending, then addresses and evidence ids.
func sortFindings(findings []models.Finding) {
	kindRank := make(map[models.FindingKind]int, len(models.AllFindingKinds))
	for i, kind := range models.AllFindingKinds {
		kindRank[kind] = i
	}
	sort.SliceStable(findings, func(i, j int) bool {
		if kindRank[findings[i].Kind] != kindRank[findings[j].Kind] {
			return kindRank[findings[i].Kind] < kindRank[findings[j].Kind]
		}
		if findings[i].Severity != findings[j].Severity {
			return findings[i].Severity > findings[j].Severity
		}
		ai, aj := strings.Join(findings[i].Addresses, ","), strings.Join(findings[j].Addresses, ",")
		if ai != aj {
			return ai < aj
		}
		return strings.Join(findings[i].TransferIDs, ",") < strings.Join(findings[j].TransferIDs, ",")
	})
}

// scoreAddresses accumulates weighted severities per address. The input
// must already be in canonical order; the walk then discounts findings
// whose evidence transfers were already counted against the address,
// scaled by how much of the evidence is repeated and bounded by the
// overlap cap.
func scoreAddresses(findings []models.Finding, cfg Config) map[string]float64 {
	scores := make(map[string]float64)
	seen := make(map[string]map[string]bool) // address → transfer ids already counted

	for _, f := range findings {
		weight := cfg.FindingWeights[f.Kind]
		if weight == 0 {
			continue
		}
		for _, addr := range f.Addresses {
			ids := seen[addr]
			if ids == nil {
				ids = make(map[string]bool)
				seen[addr] = ids
			}

			novel := 0
			for _, id := range f.TransferIDs {
				if !ids[id] {
					novel++
				}
			}
			factor := 1.0
			if len(f.TransferIDs) > 0 {
				noveltyRatio := float64(novel) / float64(len(f.TransferIDs))
				factor = 1 - cfg.EvidenceOverlapCap*(1-noveltyRatio)
			}
			scores[addr] += weight * f.Severity * factor

			for _, id := range f.TransferIDs {
				ids[id] = true
			}
		}
	}
	return scores
}
