package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

// Transfer Graph Builder
//
// Builds the directed multigraph that every heuristic pass reads:
// nodes are wallet addresses, edges are individual transfers (one edge
// per transfer, keeping a back-reference to the source record). The
// graph is rebuilt fresh per analysis run and never mutated afterwards,
// so the passes can share it without locking.
//
// Malformed records (negative amount, empty address) are excluded and
// reported in the rejection list, never silently dropped.

// PairKey identifies an unordered address pair. A is always the
// lexically smaller address.
type PairKey struct {
	A, B string
}

func pairKey(a, b string) PairKey {
	if a <= b {
		return PairKey{A: a, B: b}
	}
	return PairKey{A: b, B: a}
}

// TransferGraph is the read-only multigraph shared by all passes.
type TransferGraph struct {
	Transfers []models.Transfer // Accepted, normalized records

	Out   map[string][]*models.Transfer // Outgoing edges per address, by timestamp
	In    map[string][]*models.Transfer // Incoming edges per address, by timestamp
	Pairs map[PairKey][]*models.Transfer

	Rejected []models.RejectedRecord
	TotalUSD float64
}

// normalizeAddress lowercases and trims an address so that equality
// comparisons work across provider formats.
func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// validateTransfer returns the record-level error for a malformed
// transfer, or nil if it is usable.
func validateTransfer(t models.Transfer) *InvalidRecordError {
	switch {
	case t.FromAddress == "":
		return &InvalidRecordError{TransferID: t.ID, Reason: "empty from_address"}
	case t.ToAddress == "":
		return &InvalidRecordError{TransferID: t.ID, Reason: "empty to_address"}
	case t.Amount < 0:
		return &InvalidRecordError{TransferID: t.ID, Reason: "negative amount"}
	case t.USDValue < 0:
		return &InvalidRecordError{TransferID: t.ID, Reason: "negative usd_value"}
	case t.Timestamp.IsZero():
		return &InvalidRecordError{TransferID: t.ID, Reason: "missing timestamp"}
	}
	return nil
}

// BuildGraph normalizes the input snapshot and constructs the multigraph
// plus the per-address and per-pair indices, each sorted by timestamp.
func BuildGraph(transfers []models.Transfer) *TransferGraph {
	g := &TransferGraph{
		Out:   make(map[string][]*models.Transfer),
		In:    make(map[string][]*models.Transfer),
		Pairs: make(map[PairKey][]*models.Transfer),
	}

	g.Transfers = make([]models.Transfer, 0, len(transfers))
	for _, t := range transfers {
		t.FromAddress = normalizeAddress(t.FromAddress)
		t.ToAddress = normalizeAddress(t.ToAddress)

		if rerr := validateTransfer(t); rerr != nil {
			g.Rejected = append(g.Rejected, models.RejectedRecord{
				TransferID: rerr.TransferID,
				Reason:     rerr.Reason,
			})
			continue
		}
		g.Transfers = append(g.Transfers, t)
	}

	// Index after the slice is final: appends above may reallocate,
	// and the indices hold pointers into g.Transfers.
	for i := range g.Transfers {
		t := &g.Transfers[i]
		g.Out[t.FromAddress] = append(g.Out[t.FromAddress], t)
		g.In[t.ToAddress] = append(g.In[t.ToAddress], t)
		g.Pairs[pairKey(t.FromAddress, t.ToAddress)] = append(g.Pairs[pairKey(t.FromAddress, t.ToAddress)], t)
		g.TotalUSD += t.USDValue
	}

	byTime := func(edges []*models.Transfer) {
		sort.SliceStable(edges, func(i, j int) bool {
			if !edges[i].Timestamp.Equal(edges[j].Timestamp) {
				return edges[i].Timestamp.Before(edges[j].Timestamp)
			}
			return edges[i].ID < edges[j].ID
		})
	}
	for _, edges := range g.Out {
		byTime(edges)
	}
	for _, edges := range g.In {
		byTime(edges)
	}
	for _, edges := range g.Pairs {
		byTime(edges)
	}

	return g
}

// Addresses returns every distinct address in deterministic order.
func (g *TransferGraph) Addresses() []string {
	seen := make(map[string]struct{}, len(g.Out)+len(g.In))
	for a := range g.Out {
		seen[a] = struct{}{}
	}
	for a := range g.In {
		seen[a] = struct{}{}
	}

	addrs := make([]string, 0, len(seen))
	for a := range seen {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	return addrs
}

// TimeSpan returns the earliest and latest accepted transfer timestamps.
// Both are zero when the graph is empty.
func (g *TransferGraph) TimeSpan() (first, last time.Time) {
	if len(g.Transfers) == 0 {
		return
	}
	first, last = g.Transfers[0].Timestamp, g.Transfers[0].Timestamp
	for _, t := range g.Transfers[1:] {
		if t.Timestamp.Before(first) {
			first = t.Timestamp
		}
		if t.Timestamp.After(last) {
			last = t.Timestamp
		}
	}
	return first, last
}
