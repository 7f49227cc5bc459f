package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

// Cluster Detector
//
// Groups addresses that transact disproportionately with each other.
// An undirected subgraph is built from address pairs whose cumulative
// USD volume clears the configured minimum, then connected components
// are extracted with weighted union-find (path compression + union by
// rank, O(α(n)) amortized per operation).
//
// A component is reported only when it has enough members AND its
// internal edge density clears the threshold: a loose chain of wallets
// is normal payment flow, a near-complete subgraph pushing volume among
// itself is a coordination signal. Components below either gate are
// discarded, not reported.

// unionFind is a weighted union-find over address strings.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[string]string),
		rank:   make(map[string]int),
	}
}

// find returns the root representative of addr's set, compressing the
// path on the way up.
func (uf *unionFind) find(addr string) string {
	if _, ok := uf.parent[addr]; !ok {
		uf.parent[addr] = addr
		uf.rank[addr] = 0
	}
	if uf.parent[addr] != addr {
		uf.parent[addr] = uf.find(uf.parent[addr])
	}
	return uf.parent[addr]
}

// union merges the sets containing a and b, attaching the shallower
// tree under the deeper one.
func (uf *unionFind) union(a, b string) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}

// detectClusters finds dense high-volume components and emits one
// finding per component that clears both gates.
func detectClusters(g *TransferGraph, cfg Config) ([]models.Finding, error) {
	// Undirected pair edges above the volume floor.
	type pairEdge struct {
		usd float64
		ids []string
	}
	edges := make(map[PairKey]*pairEdge)
	for key, bucket := range g.Pairs {
		if key.A == key.B {
			continue
		}
		var usd float64
		ids := make([]string, 0, len(bucket))
		for _, t := range bucket {
			usd += t.USDValue
			ids = append(ids, t.ID)
		}
		if usd < cfg.ClusterMinVolume {
			continue
		}
		edges[key] = &pairEdge{usd: usd, ids: ids}
	}

	uf := newUnionFind()
	for key := range edges {
		uf.union(key.A, key.B)
	}

	// Group members and intra-component edges by root.
	members := make(map[string][]string)
	seen := make(map[string]bool)
	for key := range edges {
		for _, addr := range []string{key.A, key.B} {
			if !seen[addr] {
				seen[addr] = true
				root := uf.find(addr)
				members[root] = append(members[root], addr)
			}
		}
	}
	compEdges := make(map[string][]PairKey)
	for key := range edges {
		root := uf.find(key.A)
		compEdges[root] = append(compEdges[root], key)
	}

	roots := make([]string, 0, len(members))
	for root := range members {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	var findings []models.Finding
	for _, root := range roots {
		addrs := members[root]
		n := len(addrs)
		if n < cfg.ClusterMinNodes {
			continue
		}

		possible := float64(n*(n-1)) / 2
		density := float64(len(compEdges[root])) / possible
		if density < cfg.ClusterDensityThreshold {
			continue
		}

		var volume float64
		var ids []string
		for _, key := range compEdges[root] {
			volume += edges[key].usd
			ids = append(ids, edges[key].ids...)
		}
		sort.Strings(addrs)
		sort.Strings(ids)

		findings = append(findings, models.Finding{
			Kind:        models.KindCluster,
			Addresses:   addrs,
			TransferIDs: ids,
			Severity:    clusterSeverity(density, volume, cfg.ClusterMinVolume),
			Description: fmt.Sprintf("%d wallets form a dense cluster (density %.2f) moving $%.2f among themselves", n, density, volume),
		})
	}
	return findings, nil
}

// clusterSeverity scales with edge density and, more weakly, with how
// far the intra-cluster volume exceeds the reporting floor.
func clusterSeverity(density, volume, minVolume float64) float64 {
	volumeFactor := 0.0
	if minVolume > 0 && volume > minVolume {
		// One order of magnitude above the floor saturates the factor.
		volumeFactor = math.Min(1, math.Log10(volume/minVolume))
	}
	s := density * (0.6 + 0.4*volumeFactor)
	if s > 1 {
		s = 1
	}
	return s
}
