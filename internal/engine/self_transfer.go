package engine

import (
	"fmt"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

// Self-Transfer Flagger
//
// The most blatant wash pattern: a wallet sending to itself generates
// volume with provably zero change of ownership. Severity is a fixed
// high constant because the signal is unambiguous.

const selfTransferSeverity = 0.9

// detectSelfTransfers emits one finding per transfer whose normalized
// sender equals its normalized receiver. O(n) over the snapshot.
func detectSelfTransfers(g *TransferGraph, _ Config) ([]models.Finding, error) {
	var findings []models.Finding
	for i := range g.Transfers {
		t := &g.Transfers[i]
		if t.FromAddress != t.ToAddress {
			continue
		}
		findings = append(findings, models.Finding{
			Kind:        models.KindSelfTransfer,
			Addresses:   []string{t.FromAddress},
			TransferIDs: []string{t.ID},
			Severity:    selfTransferSeverity,
			Description: fmt.Sprintf("wallet %s transferred %.2f %s ($%.2f) to itself", t.FromAddress, t.Amount, t.Token, t.USDValue),
		})
	}
	return findings, nil
}
