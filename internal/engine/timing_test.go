package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

func TestDetectTimingAnomalies_ClockworkIntervalsFlagged(t *testing.T) {
	// Seven transfers exactly one hour apart: CV of the gaps is 0.
	var transfers []models.Transfer
	for i := 0; i < 7; i++ {
		transfers = append(transfers, tr(
			fmt.Sprintf("t%d", i), "bot", fmt.Sprintf("sink%d", i), 100, time.Duration(i)*time.Hour))
	}
	g := BuildGraph(transfers)

	findings, err := detectTimingAnomalies(g, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 timing finding, got %d: %v", len(findings), findings)
	}
	f := findings[0]
	if f.Kind != models.KindTimingAnomaly || f.Addresses[0] != "bot" {
		t.Fatalf("expected timing anomaly on bot, got %+v", f)
	}
	if f.Severity != 1.0 {
		t.Fatalf("zero CV should score maximum severity, got %.4f", f.Severity)
	}
}

func TestDetectTimingAnomalies_OrganicJitterNotFlagged(t *testing.T) {
	// Gaps vary between minutes and days.
	offsets := []time.Duration{0, 10 * time.Minute, 26 * time.Hour, 27 * time.Hour, 90 * time.Hour, 95 * time.Hour, 200 * time.Hour}
	var transfers []models.Transfer
	for i, off := range offsets {
		transfers = append(transfers, tr(
			fmt.Sprintf("t%d", i), "human", fmt.Sprintf("shop%d", i), 100, off))
	}
	g := BuildGraph(transfers)

	findings, err := detectTimingAnomalies(g, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no findings for irregular activity, got %d: %v", len(findings), findings)
	}
}

func TestDetectTimingAnomalies_BurstFlagged(t *testing.T) {
	// Four transfers inside two minutes with uneven gaps: no regularity
	// signal (too few samples anyway), but a clear burst.
	offsets := []time.Duration{0, 10 * time.Second, 45 * time.Second, 110 * time.Second}
	var transfers []models.Transfer
	for i, off := range offsets {
		transfers = append(transfers, tr(
			fmt.Sprintf("t%d", i), "burster", fmt.Sprintf("sink%d", i), 100, off))
	}
	g := BuildGraph(transfers)

	findings, err := detectTimingAnomalies(g, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 burst finding, got %d: %v", len(findings), findings)
	}
	f := findings[0]
	if f.Addresses[0] != "burster" {
		t.Fatalf("expected burst on burster, got %v", f.Addresses)
	}
	if f.Severity <= 0 || f.Severity > 1 {
		t.Fatalf("severity out of range: %.4f", f.Severity)
	}
}

func TestDetectTimingAnomalies_TooFewSamplesSkipped(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("t1", "a", "b", 100, 0),
		tr("t2", "a", "c", 100, time.Hour),
		tr("t3", "a", "d", 100, 2*time.Hour),
	})
	findings, err := detectTimingAnomalies(g, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("three perfectly spaced transfers are below the sample floor, got %d findings", len(findings))
	}
}

func TestActivityTimeline_MergesDirectionsAndDedupes(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("out1", "a", "b", 100, 0),
		tr("in1", "c", "a", 100, time.Hour),
		tr("loop", "a", "a", 100, 2*time.Hour), // Appears in both indices once
	})
	times, ids := activityTimeline(g, "a")
	if len(times) != 3 || len(ids) != 3 {
		t.Fatalf("expected 3 deduplicated events, got %d times / %d ids", len(times), len(ids))
	}
	for i := 1; i < len(times); i++ {
		if times[i].Before(times[i-1]) {
			t.Fatalf("timeline not sorted at %d", i)
		}
	}
}
