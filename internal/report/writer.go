package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

// Report writers consume AnalysisResult fields only; the detection core
// knows nothing about these formats.

// WriteFindingsCSV writes one row per finding.
func WriteFindingsCSV(w io.Writer, findings []models.Finding) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"kind", "severity", "addresses", "transfer_ids", "description"}); err != nil {
		return err
	}
	for _, f := range findings {
		row := []string{
			string(f.Kind),
			strconv.FormatFloat(f.Severity, 'f', 4, 64),
			strings.Join(f.Addresses, "|"),
			strings.Join(f.TransferIDs, "|"),
			f.Description,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAddressScoresCSV writes per-address scores with risk bands,
// highest score first.
func WriteAddressScoresCSV(w io.Writer, scores map[string]float64) error {
	addrs := make([]string, 0, len(scores))
	for addr := range scores {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		if scores[addrs[i]] != scores[addrs[j]] {
			return scores[addrs[i]] > scores[addrs[j]]
		}
		return addrs[i] < addrs[j]
	})

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"address", "score", "risk_level"}); err != nil {
		return err
	}
	for _, addr := range addrs {
		row := []string{
			addr,
			strconv.FormatFloat(scores[addr], 'f', 4, 64),
			string(models.RiskLevelForScore(scores[addr])),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSuspiciousAddresses writes one flagged address per line, sorted,
// for feeding into watchlists.
func WriteSuspiciousAddresses(w io.Writer, result *models.AnalysisResult, minLevel models.RiskLevel) error {
	addrs := result.SuspiciousAddresses(minLevel)
	sort.Strings(addrs)
	for _, addr := range addrs {
		if _, err := fmt.Fprintln(w, addr); err != nil {
			return err
		}
	}
	return nil
}

// WriteTextReport writes the human-readable analysis summary: detection
// counts per heuristic, the concentration verdict, and pass failures.
func WriteTextReport(w io.Writer, result *models.AnalysisResult) error {
	divider := strings.Repeat("=", 70)

	fmt.Fprintln(w, divider)
	fmt.Fprintln(w, "WASH TRADING ANALYSIS REPORT")
	fmt.Fprintln(w, divider)
	fmt.Fprintln(w)

	s := result.Summary
	fmt.Fprintf(w, "Transfers analyzed: %d (rejected: %d)\n", s.TotalTransfers, s.RejectedTransfers)
	fmt.Fprintf(w, "Unique addresses:   %d\n", s.UniqueAddresses)
	fmt.Fprintf(w, "Total USD volume:   $%.2f\n", s.TotalVolumeUSD)
	if !s.FirstTransfer.IsZero() {
		fmt.Fprintf(w, "Date range:         %s to %s\n",
			s.FirstTransfer.Format("2006-01-02 15:04:05"), s.LastTransfer.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "DETECTION SUMMARY:")
	any := false
	for _, kind := range models.AllFindingKinds {
		if n := s.FindingsByKind[kind]; n > 0 {
			fmt.Fprintf(w, "  %-22s %d\n", string(kind)+":", n)
			any = true
		}
	}
	if !any {
		fmt.Fprintln(w, "  no wash trading patterns detected")
	}
	fmt.Fprintf(w, "\nSuspicious addresses: %d\n", s.SuspiciousAddresses)

	// Concentration verdict bands from the combined analysis pipeline.
	fmt.Fprintf(w, "\nVOLUME CONCENTRATION (Gini %.3f):\n", s.VolumeGini)
	switch {
	case s.VolumeGini > 0.6:
		fmt.Fprintln(w, "  HIGH CONCENTRATION - strong wash trading indicator")
	case s.VolumeGini > 0.4:
		fmt.Fprintln(w, "  MEDIUM CONCENTRATION - potential wash trading")
	default:
		fmt.Fprintln(w, "  volume broadly distributed")
	}

	failed := false
	for _, p := range s.Passes {
		if !p.OK {
			if !failed {
				fmt.Fprintln(w, "\nFAILED PASSES:")
				failed = true
			}
			fmt.Fprintf(w, "  %s: %s\n", p.Name, p.Error)
		}
	}
	if s.Truncated {
		fmt.Fprintf(w, "\nNOTE: %s\n", s.TruncationNote)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, divider)
	return nil
}
