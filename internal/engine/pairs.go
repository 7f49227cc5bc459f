package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

// Pair Frequency Analyzer
//
// Two wallets trading with each other far more often than the rest of
// the dataset is corroborating evidence for coordination. Pairs at or
// above the frequency threshold are flagged; severity comes from the
// pair's z-score against the overall pair-count distribution, so "high
// frequency" is always relative to how chatty this dataset is.
//
// The evidence records the bidirectional ratio (min/max of the two
// directions): a ratio near 1 means value ping-pongs back and forth,
// which is far more suspicious than one-way spam.

func detectFrequentPairs(g *TransferGraph, cfg Config) ([]models.Finding, error) {
	keys := make([]PairKey, 0, len(g.Pairs))
	for key := range g.Pairs {
		if key.A != key.B {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})

	// Pair-count distribution for the z-score baseline.
	mean := 0.0
	for _, key := range keys {
		mean += float64(len(g.Pairs[key]))
	}
	mean /= float64(len(keys))
	variance := 0.0
	for _, key := range keys {
		d := float64(len(g.Pairs[key])) - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(keys)))

	var findings []models.Finding
	for _, key := range keys {
		bucket := g.Pairs[key]
		count := len(bucket)
		if count < cfg.PairFrequencyLimit {
			continue
		}

		var volume float64
		aToB, bToA := 0, 0
		ids := make([]string, 0, count)
		for _, t := range bucket {
			volume += t.USDValue
			ids = append(ids, t.ID)
			if t.FromAddress == key.A {
				aToB++
			} else {
				bToA++
			}
		}
		sort.Strings(ids)

		severity := 0.5
		if std > 0 {
			z := (float64(count) - mean) / std
			severity = math.Min(1, math.Max(0.1, z/4))
		}

		biRatio := 0.0
		if max := math.Max(float64(aToB), float64(bToA)); max > 0 {
			biRatio = math.Min(float64(aToB), float64(bToA)) / max
		}

		span := bucket[len(bucket)-1].Timestamp.Sub(bucket[0].Timestamp)
		perDay := float64(count)
		if days := span.Hours() / 24; days > 1 {
			perDay = float64(count) / days
		}

		findings = append(findings, models.Finding{
			Kind:        models.KindPairFrequency,
			Addresses:   []string{key.A, key.B},
			TransferIDs: ids,
			Severity:    severity,
			Description: fmt.Sprintf("pair traded %d times ($%.2f, %.1f tx/day, bidirectional ratio %.2f)",
				count, volume, perDay, biRatio),
		})
	}
	return findings, nil
}
