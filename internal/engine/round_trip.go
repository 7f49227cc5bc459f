package engine

import (
	"fmt"
	"sort"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

// Round-Trip Detector
//
// A transfer A→B answered by B→A within a short window moves value out
// and straight back: classic volume inflation between two controlled
// wallets. Transfers are bucketed by unordered address pair first, so
// the pairwise matching stays local to each bucket instead of going
// global O(n²).
//
// Matching is strictly ordered: the return leg must occur after the
// outbound leg and within the configured window. Severity scales
// inversely with the elapsed time (a faster flow-back is stronger
// evidence of coordination).

// detectRoundTrips emits one finding per qualifying (outbound, return)
// transfer pair. The pass is symmetric in which address plays "A".
func detectRoundTrips(g *TransferGraph, cfg Config) ([]models.Finding, error) {
	var findings []models.Finding

	keys := make([]PairKey, 0, len(g.Pairs))
	for k := range g.Pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})

	for _, key := range keys {
		if key.A == key.B {
			continue // Self-transfers are the self-transfer pass's concern
		}
		bucket := g.Pairs[key]

		var aToB, bToA []*models.Transfer
		for _, t := range bucket {
			if t.FromAddress == key.A {
				aToB = append(aToB, t)
			} else {
				bToA = append(bToA, t)
			}
		}

		findings = append(findings, matchReturns(aToB, bToA, cfg)...)
		findings = append(findings, matchReturns(bToA, aToB, cfg)...)
	}

	return findings, nil
}

// matchReturns pairs every outbound transfer with the return transfers
// that fall inside (t1, t1+window]. Both slices are sorted by timestamp.
func matchReturns(outbound, returns []*models.Transfer, cfg Config) []models.Finding {
	var findings []models.Finding
	window := cfg.RoundTripWindow

	for _, out := range outbound {
		deadline := out.Timestamp.Add(window)
		// First return strictly after the outbound leg.
		start := sort.Search(len(returns), func(i int) bool {
			return returns[i].Timestamp.After(out.Timestamp)
		})
		for _, ret := range returns[start:] {
			if ret.Timestamp.After(deadline) {
				break
			}
			elapsed := ret.Timestamp.Sub(out.Timestamp)
			severity := 1.0 - elapsed.Seconds()/window.Seconds()
			if severity < 0.05 {
				severity = 0.05 // A round-trip at the edge of the window still counts
			}
			findings = append(findings, models.Finding{
				Kind:        models.KindRoundTrip,
				Addresses:   []string{out.FromAddress, out.ToAddress},
				TransferIDs: []string{out.ID, ret.ID},
				Severity:    severity,
				Description: fmt.Sprintf("%s→%s ($%.2f) returned by %s→%s ($%.2f) after %s",
					out.FromAddress, out.ToAddress, out.USDValue,
					ret.FromAddress, ret.ToAddress, ret.USDValue, elapsed),
			})
		}
	}
	return findings
}
