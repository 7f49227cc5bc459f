package engine

import (
	"testing"
	"time"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

func TestDetectCycles_FindsTriangleOnce(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("ab", "a", "b", 100, 0),
		tr("bc", "b", "c", 100, time.Hour),
		tr("ca", "c", "a", 100, 2*time.Hour),
	})

	findings, truncated, err := detectCycles(g, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if truncated {
		t.Fatalf("tiny graph should not truncate")
	}
	if len(findings) != 1 {
		t.Fatalf("expected exactly 1 cycle finding, got %d", len(findings))
	}

	f := findings[0]
	if f.Kind != models.KindCycle {
		t.Fatalf("unexpected kind %s", f.Kind)
	}
	if len(f.Addresses) != 3 || f.Addresses[0] != "a" {
		t.Fatalf("expected canonical path rooted at smallest address, got %v", f.Addresses)
	}
	if len(f.TransferIDs) != 3 {
		t.Fatalf("expected 3 evidence transfers, got %v", f.TransferIDs)
	}
	// Equal hop volumes: consistency 1, so a 3-hop cycle scores 0.9.
	if diff := f.Severity - 0.9; diff > 0.001 || diff < -0.001 {
		t.Fatalf("expected severity 0.90, got %.4f", f.Severity)
	}
}

func TestDetectCycles_NoRepeatedIntermediateNodes(t *testing.T) {
	// a→b→a→c→a contains no simple cycle of length >= 3; the b and c
	// round trips must not be stitched into a fake 4-node cycle.
	g := BuildGraph([]models.Transfer{
		tr("t1", "a", "b", 100, 0),
		tr("t2", "b", "a", 100, time.Hour),
		tr("t3", "a", "c", 100, 2*time.Hour),
		tr("t4", "c", "a", 100, 3*time.Hour),
	})
	findings, _, err := detectCycles(g, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no cycles, got %d: %v", len(findings), findings)
	}
}

func TestDetectCycles_RespectsMaxLength(t *testing.T) {
	// One 4-node ring. With CycleMaxLength 3 it must not be reported.
	transfers := []models.Transfer{
		tr("ab", "a", "b", 100, 0),
		tr("bc", "b", "c", 100, time.Hour),
		tr("cd", "c", "d", 100, 2*time.Hour),
		tr("da", "d", "a", 100, 3*time.Hour),
	}
	g := BuildGraph(transfers)

	cfg := DefaultConfig()
	cfg.CycleMaxLength = 3
	findings, _, err := detectCycles(g, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected 4-ring to be skipped at max length 3, got %d findings", len(findings))
	}

	cfg.CycleMaxLength = 4
	findings, _, err = detectCycles(g, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected the 4-ring at max length 4, got %d findings", len(findings))
	}
}

func TestDetectCycles_ResultCapSetsTruncated(t *testing.T) {
	// Two disjoint triangles, capped to one result.
	g := BuildGraph([]models.Transfer{
		tr("ab", "a", "b", 100, 0),
		tr("bc", "b", "c", 100, time.Hour),
		tr("ca", "c", "a", 100, 2*time.Hour),
		tr("xy", "x", "y", 100, 0),
		tr("yz", "y", "z", 100, 30*time.Minute),
		tr("zx", "z", "x", 100, time.Hour),
	})

	cfg := DefaultConfig()
	cfg.CycleMaxResults = 1
	findings, truncated, err := detectCycles(g, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !truncated {
		t.Fatalf("expected truncation flag when the cap drops cycles")
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 capped finding, got %d", len(findings))
	}
	// The x→y→z ring closes in 1h versus 2h for a→b→c, so it ranks first.
	if findings[0].Addresses[0] != "x" {
		t.Fatalf("expected fastest flow-back cycle to survive the cap, got %v", findings[0].Addresses)
	}
}

func TestDetectCycles_SearchBudgetSetsTruncated(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("ab", "a", "b", 100, 0),
		tr("bc", "b", "c", 100, time.Hour),
		tr("ca", "c", "a", 100, 2*time.Hour),
	})
	cfg := DefaultConfig()
	cfg.CycleSearchBudget = 1
	_, truncated, err := detectCycles(g, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !truncated {
		t.Fatalf("expected truncation when the expansion budget runs out")
	}
}

func TestDetectCycles_ExactBudgetCompletesWithoutTruncation(t *testing.T) {
	// Searching a triangle costs exactly 6 expansions: three from a
	// (closing the cycle), two from b, one from c. Landing on zero with
	// nothing left to explore is a complete search.
	g := BuildGraph([]models.Transfer{
		tr("ab", "a", "b", 100, 0),
		tr("bc", "b", "c", 100, time.Hour),
		tr("ca", "c", "a", 100, 2*time.Hour),
	})
	cfg := DefaultConfig()
	cfg.CycleSearchBudget = 6

	findings, truncated, err := detectCycles(g, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if truncated {
		t.Fatalf("a search that visited everything must not report truncation")
	}
	if len(findings) != 1 {
		t.Fatalf("expected the triangle to be found, got %d findings", len(findings))
	}
}

func TestDetectCycles_TwoNodePingPongIsNotACycle(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("ab", "a", "b", 100, 0),
		tr("ba", "b", "a", 100, time.Hour),
	})
	findings, _, err := detectCycles(g, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("back-and-forth between two wallets is the round-trip pass's territory, got %d cycle findings", len(findings))
	}
}

func TestDetectCycles_LookbackDropsStaleEdges(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("ab", "a", "b", 100, 0), // Far older than the rest
		tr("bc", "b", "c", 100, 100*time.Hour),
		tr("ca", "c", "a", 100, 101*time.Hour),
	})
	cfg := DefaultConfig()
	cfg.CycleLookback = 24 * time.Hour
	findings, _, err := detectCycles(g, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected stale edge to break the cycle, got %d findings", len(findings))
	}
}
