package engine

import (
	"testing"
	"time"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

var testEpoch = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// tr builds a priced transfer at testEpoch+at. Amount mirrors USDValue,
// which is all the heuristics care about.
func tr(id, from, to string, usd float64, at time.Duration) models.Transfer {
	return models.Transfer{
		ID:          id,
		FromAddress: from,
		ToAddress:   to,
		Token:       "WASH",
		Chain:       "ethereum",
		Amount:      usd,
		USDValue:    usd,
		Timestamp:   testEpoch.Add(at),
	}
}

func TestBuildGraph_NormalizesAddresses(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("t1", "  0xABCD  ", "0xEF01", 100, 0),
	})

	if len(g.Transfers) != 1 {
		t.Fatalf("expected 1 accepted transfer, got %d", len(g.Transfers))
	}
	if g.Transfers[0].FromAddress != "0xabcd" {
		t.Fatalf("expected lowercased trimmed from address, got %q", g.Transfers[0].FromAddress)
	}
	if len(g.Out["0xabcd"]) != 1 || len(g.In["0xef01"]) != 1 {
		t.Fatalf("indices not keyed by normalized address: out=%v in=%v", g.Out, g.In)
	}
}

func TestBuildGraph_RejectsMalformedRecords(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("ok", "a", "b", 50, 0),
		tr("no-to", "a", "", 50, 0),
		tr("neg-amount", "a", "b", -1, 0),
		{ID: "no-time", FromAddress: "a", ToAddress: "b", Amount: 1},
	})

	if len(g.Transfers) != 1 {
		t.Fatalf("expected 1 accepted transfer, got %d", len(g.Transfers))
	}
	if len(g.Rejected) != 3 {
		t.Fatalf("expected 3 rejections, got %d: %v", len(g.Rejected), g.Rejected)
	}
	reasons := map[string]string{}
	for _, r := range g.Rejected {
		reasons[r.TransferID] = r.Reason
	}
	if reasons["no-to"] != "empty to_address" {
		t.Errorf("unexpected rejection reason for no-to: %q", reasons["no-to"])
	}
	if reasons["neg-amount"] != "negative amount" {
		t.Errorf("unexpected rejection reason for neg-amount: %q", reasons["neg-amount"])
	}
	if reasons["no-time"] != "missing timestamp" {
		t.Errorf("unexpected rejection reason for no-time: %q", reasons["no-time"])
	}
}

func TestBuildGraph_IndicesSortedByTimestamp(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("late", "a", "b", 10, 2*time.Hour),
		tr("early", "a", "b", 10, 0),
		tr("mid", "a", "c", 10, time.Hour),
	})

	out := g.Out["a"]
	if len(out) != 3 {
		t.Fatalf("expected 3 outgoing edges for a, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Timestamp.Before(out[i-1].Timestamp) {
			t.Fatalf("outgoing edges not sorted by timestamp: %s before %s", out[i].ID, out[i-1].ID)
		}
	}
}

func TestGraphAddressesAndTimeSpan(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("t1", "c", "a", 10, time.Hour),
		tr("t2", "b", "c", 10, 3*time.Hour),
	})

	addrs := g.Addresses()
	want := []string{"a", "b", "c"}
	if len(addrs) != len(want) {
		t.Fatalf("expected %d addresses, got %v", len(want), addrs)
	}
	for i := range want {
		if addrs[i] != want[i] {
			t.Fatalf("expected sorted addresses %v, got %v", want, addrs)
		}
	}

	first, last := g.TimeSpan()
	if !first.Equal(testEpoch.Add(time.Hour)) || !last.Equal(testEpoch.Add(3*time.Hour)) {
		t.Fatalf("unexpected time span: %s to %s", first, last)
	}

	empty := BuildGraph(nil)
	if f, l := empty.TimeSpan(); !f.IsZero() || !l.IsZero() {
		t.Fatalf("expected zero span for empty graph, got %s to %s", f, l)
	}
}

func TestGraphTotalUSDExcludesRejected(t *testing.T) {
	g := BuildGraph([]models.Transfer{
		tr("ok", "a", "b", 100, 0),
		tr("bad", "", "b", 900, 0),
	})
	if g.TotalUSD != 100 {
		t.Fatalf("expected total USD 100, got %.2f", g.TotalUSD)
	}
}
