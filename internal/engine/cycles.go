package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

// Cycle Detector
//
// Finds directed simple cycles A→B→...→A of length 3 and up: value that
// flows back to its origin through intermediaries changed hands on paper
// only. Cost is bounded three ways on dense graphs:
//
//   1. Search starts only from nodes with in-degree AND out-degree >= 1
//      (a node missing either can never close a cycle).
//   2. A configurable DFS expansion budget truncates the search instead
//      of letting it explode; truncation is flagged, not fatal.
//   3. Reported cycles are capped, ranked by total elapsed time
//      ascending (fastest flow-back first) and then by the lexical
//      order of the canonical address sequence.
//
// Each cycle is reported once in canonical form: the DFS only explores
// paths whose start node is the lexically smallest address in the
// cycle, which eliminates rotations of the same cycle for free.
//
// Severity scales with cycle length⁻¹ and with volume consistency
// across hops: a wash cycle pushes similar value around every hop,
// while organic flows diverge.

// cycleEdge aggregates all transfers from one address to another.
type cycleEdge struct {
	usd      float64
	earliest time.Time
	ids      []string
}

// foundCycle is an internal candidate before ranking and capping.
type foundCycle struct {
	path        []string // Canonical: starts at the lexically smallest address
	ids         []string
	totalUSD    float64
	consistency float64 // min hop volume / max hop volume
	elapsed     time.Duration
}

// detectCycles runs the bounded DFS. The second return value reports
// whether the search or the result list was truncated by a cap.
func detectCycles(g *TransferGraph, cfg Config) ([]models.Finding, bool, error) {
	adj := buildCycleAdjacency(g, cfg)

	// Restrict the search to nodes that can possibly sit on a cycle.
	hasIn := make(map[string]bool)
	for _, edges := range adj {
		for to := range edges {
			hasIn[to] = true
		}
	}
	var starts []string
	for from := range adj {
		if hasIn[from] {
			starts = append(starts, from)
		}
	}
	sort.Strings(starts)

	budget := cfg.CycleSearchBudget
	truncated := false
	var cycles []foundCycle

	for _, start := range starts {
		if budget <= 0 {
			truncated = true
			break
		}
		onPath := map[string]bool{start: true}
		path := []string{start}
		var stopped bool
		budget, stopped = dfsCycles(adj, start, start, path, onPath, cfg.CycleMaxLength, budget, &cycles)
		if stopped {
			truncated = true
			break
		}
	}

	// Deterministic ranking: tightest flow-back first, then lexical.
	sort.Slice(cycles, func(i, j int) bool {
		if cycles[i].elapsed != cycles[j].elapsed {
			return cycles[i].elapsed < cycles[j].elapsed
		}
		return strings.Join(cycles[i].path, "→") < strings.Join(cycles[j].path, "→")
	})
	if cfg.CycleMaxResults > 0 && len(cycles) > cfg.CycleMaxResults {
		cycles = cycles[:cfg.CycleMaxResults]
		truncated = true
	}

	findings := make([]models.Finding, 0, len(cycles))
	for _, c := range cycles {
		severity := 0.9 * (3.0 / float64(len(c.path))) * c.consistency
		if severity > 1 {
			severity = 1
		}
		findings = append(findings, models.Finding{
			Kind:        models.KindCycle,
			Addresses:   c.path,
			TransferIDs: c.ids,
			Severity:    severity,
			Description: fmt.Sprintf("%d-hop cycle %s→%s moving $%.2f (hop consistency %.2f, flow-back %s)",
				len(c.path), strings.Join(c.path, "→"), c.path[0], c.totalUSD, c.consistency, c.elapsed),
		})
	}
	return findings, truncated, nil
}

// buildCycleAdjacency collapses the multigraph into one aggregate edge
// per ordered address pair, dropping self-loops and, when a lookback is
// configured, edges older than (newest transfer - lookback).
func buildCycleAdjacency(g *TransferGraph, cfg Config) map[string]map[string]*cycleEdge {
	var cutoff time.Time
	if cfg.CycleLookback > 0 {
		_, last := g.TimeSpan()
		cutoff = last.Add(-cfg.CycleLookback)
	}

	adj := make(map[string]map[string]*cycleEdge)
	for i := range g.Transfers {
		t := &g.Transfers[i]
		if t.FromAddress == t.ToAddress {
			continue
		}
		if cfg.CycleLookback > 0 && t.Timestamp.Before(cutoff) {
			continue
		}
		edges := adj[t.FromAddress]
		if edges == nil {
			edges = make(map[string]*cycleEdge)
			adj[t.FromAddress] = edges
		}
		e := edges[t.ToAddress]
		if e == nil {
			e = &cycleEdge{earliest: t.Timestamp}
			edges[t.ToAddress] = e
		}
		e.usd += t.USDValue
		e.ids = append(e.ids, t.ID)
		if t.Timestamp.Before(e.earliest) {
			e.earliest = t.Timestamp
		}
	}
	return adj
}

// dfsCycles extends the current path one hop at a time. Only nodes
// lexically greater than the start may join the path, so every cycle is
// discovered exactly once, rooted at its smallest address. Returns the
// remaining expansion budget and whether the search stopped early with
// neighbors still unexplored; a search that finishes on its last budget
// unit is complete, not truncated.
func dfsCycles(adj map[string]map[string]*cycleEdge, start, current string, path []string, onPath map[string]bool, maxLen, budget int, out *[]foundCycle) (int, bool) {
	neighbors := make([]string, 0, len(adj[current]))
	for to := range adj[current] {
		neighbors = append(neighbors, to)
	}
	sort.Strings(neighbors)

	for _, next := range neighbors {
		if budget <= 0 {
			return 0, true
		}
		budget--

		if next == start {
			if len(path) >= 3 {
				*out = append(*out, closeCycle(adj, path))
			}
			continue
		}
		if next < start || onPath[next] || len(path) >= maxLen {
			continue
		}

		onPath[next] = true
		var stopped bool
		budget, stopped = dfsCycles(adj, start, next, append(path, next), onPath, maxLen, budget, out)
		delete(onPath, next)
		if stopped {
			return 0, true
		}
	}
	return budget, false
}

// closeCycle materializes a candidate from the node path, collecting
// evidence ids and hop volumes from the aggregate edges.
func closeCycle(adj map[string]map[string]*cycleEdge, path []string) foundCycle {
	c := foundCycle{path: append([]string(nil), path...)}

	minHop, maxHop := -1.0, 0.0
	earliest, latest := time.Time{}, time.Time{}
	for i := range path {
		e := adj[path[i]][path[(i+1)%len(path)]]
		c.ids = append(c.ids, e.ids...)
		c.totalUSD += e.usd
		if minHop < 0 || e.usd < minHop {
			minHop = e.usd
		}
		if e.usd > maxHop {
			maxHop = e.usd
		}
		if earliest.IsZero() || e.earliest.Before(earliest) {
			earliest = e.earliest
		}
		if e.earliest.After(latest) {
			latest = e.earliest
		}
	}
	sort.Strings(c.ids)

	if maxHop > 0 {
		c.consistency = minHop / maxHop
	} else {
		c.consistency = 1 // Unpriced hops: no divergence signal either way
	}
	c.elapsed = latest.Sub(earliest)
	return c
}
