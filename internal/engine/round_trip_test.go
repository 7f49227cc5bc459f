package engine

import (
	"testing"
	"time"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

func TestDetectRoundTrips_FlagsReturnInsideWindow(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("out", "a", "b", 1000, 0),
		tr("back", "b", "a", 990, time.Hour),
	})

	findings, err := detectRoundTrips(g, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected exactly 1 round-trip finding, got %d", len(findings))
	}

	f := findings[0]
	if f.Kind != models.KindRoundTrip {
		t.Fatalf("unexpected kind %s", f.Kind)
	}
	gotIDs := map[string]bool{}
	for _, id := range f.TransferIDs {
		gotIDs[id] = true
	}
	if !gotIDs["out"] || !gotIDs["back"] || len(f.TransferIDs) != 2 {
		t.Fatalf("expected evidence {out, back}, got %v", f.TransferIDs)
	}
	// 1h of a 24h window leaves most of the severity on the table.
	want := 1.0 - 1.0/24.0
	if diff := f.Severity - want; diff > 0.001 || diff < -0.001 {
		t.Fatalf("expected severity %.4f, got %.4f", want, f.Severity)
	}
}

func TestDetectRoundTrips_IgnoresReturnOutsideWindow(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("out", "a", "b", 1000, 0),
		tr("back", "b", "a", 1000, 25*time.Hour),
	})
	findings, err := detectRoundTrips(g, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no findings past the window, got %d", len(findings))
	}
}

func TestDetectRoundTrips_ReturnMustFollowOutbound(t *testing.T) {
	// b→a happens first; a→b an hour later. Ordered matching must not
	// treat the earlier transfer as a return leg of the later one,
	// but the (b→a, a→b) ordering itself qualifies.
	g := BuildGraph([]models.Transfer{
		tr("first", "b", "a", 1000, 0),
		tr("second", "a", "b", 1000, time.Hour),
	})
	findings, err := detectRoundTrips(g, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding for the ordered pair, got %d", len(findings))
	}
	if findings[0].TransferIDs[0] != "first" && findings[0].TransferIDs[1] != "first" {
		t.Fatalf("expected finding to cite the outbound leg, got %v", findings[0].TransferIDs)
	}
}

func TestDetectRoundTrips_SimultaneousLegsNotMatched(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("x", "a", "b", 1000, 0),
		tr("y", "b", "a", 1000, 0),
	})
	findings, err := detectRoundTrips(g, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no findings for same-instant legs, got %d", len(findings))
	}
}

func TestDetectRoundTrips_SeverityFloorAtWindowEdge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RoundTripWindow = time.Hour
	g := BuildGraph([]models.Transfer{
		tr("out", "a", "b", 100, 0),
		tr("back", "b", "a", 100, time.Hour), // Exactly at the deadline
	})
	findings, err := detectRoundTrips(g, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected the edge case to still match, got %d findings", len(findings))
	}
	if findings[0].Severity != 0.05 {
		t.Fatalf("expected floored severity 0.05, got %.4f", findings[0].Severity)
	}
}
