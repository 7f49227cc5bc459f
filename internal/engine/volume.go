package engine

import (
	"fmt"
	"sort"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

// Volume Concentration Analyzer
//
// Wash-traded tokens show volume dominated by a handful of wallets.
// The pass sums incoming plus outgoing USD value per address and checks
// whether the top-K addresses control more than the configured fraction
// of total volume. When they do, each of those addresses is flagged
// with severity proportional to its own share.
//
// Raising the fraction can only shrink the flagged set (monotonicity):
// either the top-K clears the bar and all K are flagged, or none are.

// addressVolumes sums in+out USD value per address.
func addressVolumes(g *TransferGraph) map[string]float64 {
	volumes := make(map[string]float64)
	for i := range g.Transfers {
		t := &g.Transfers[i]
		volumes[t.FromAddress] += t.USDValue
		if t.ToAddress != t.FromAddress {
			volumes[t.ToAddress] += t.USDValue
		}
	}
	return volumes
}

func detectVolumeConcentration(g *TransferGraph, cfg Config) ([]models.Finding, error) {
	volumes := addressVolumes(g)
	if len(volumes) == 0 {
		return nil, nil
	}

	var total float64
	addrs := make([]string, 0, len(volumes))
	for addr, v := range volumes {
		addrs = append(addrs, addr)
		total += v
	}
	if total == 0 {
		return nil, nil // Nothing priced, shares are undefined
	}
	sort.Slice(addrs, func(i, j int) bool {
		if volumes[addrs[i]] != volumes[addrs[j]] {
			return volumes[addrs[i]] > volumes[addrs[j]]
		}
		return addrs[i] < addrs[j]
	})

	k := cfg.VolumeConcentrationTopK
	if k > len(addrs) {
		k = len(addrs)
	}
	top := addrs[:k]

	var topShare float64
	for _, addr := range top {
		topShare += volumes[addr] / total
	}
	if topShare <= cfg.VolumeConcentrationFraction {
		return nil, nil
	}

	var findings []models.Finding
	for rank, addr := range top {
		share := volumes[addr] / total
		findings = append(findings, models.Finding{
			Kind:        models.KindVolumeConcentration,
			Addresses:   []string{addr},
			TransferIDs: transferIDsFor(g, addr),
			Severity:    share,
			Description: fmt.Sprintf("wallet ranks #%d by volume with $%.2f (%.1f%% of total; top %d control %.1f%%)",
				rank+1, volumes[addr], share*100, k, topShare*100),
		})
	}
	return findings, nil
}

// transferIDsFor collects the ids of every transfer touching addr.
func transferIDsFor(g *TransferGraph, addr string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, t := range g.Out[addr] {
		if !seen[t.ID] {
			seen[t.ID] = true
			ids = append(ids, t.ID)
		}
	}
	for _, t := range g.In[addr] {
		if !seen[t.ID] {
			seen[t.ID] = true
			ids = append(ids, t.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// volumeGini computes the Gini coefficient of the per-address volume
// distribution: 0 = evenly spread, approaching 1 = fully concentrated.
func volumeGini(g *TransferGraph) float64 {
	volumes := addressVolumes(g)
	if len(volumes) < 2 {
		return 0
	}
	values := make([]float64, 0, len(volumes))
	var total float64
	for _, v := range volumes {
		values = append(values, v)
		total += v
	}
	if total == 0 {
		return 0
	}
	sort.Float64s(values)

	n := float64(len(values))
	var weighted float64
	for i, v := range values {
		weighted += float64(i+1) * v
	}
	return (2*weighted)/(n*total) - (n+1)/n
}
