package models

import "time"

// Transfer represents a single normalized token transfer record.
// Records arrive pre-deduplicated from the data provider; the engine
// treats them as an immutable snapshot for the duration of one run.
type Transfer struct {
	ID          string    `json:"id"`                 // Unique transfer id (provider tx hash + log index)
	FromAddress string    `json:"fromAddress"`        // Sending wallet (lowercased during normalization)
	ToAddress   string    `json:"toAddress"`          // Receiving wallet (lowercased during normalization)
	Token       string    `json:"token"`              // Token symbol or contract
	Chain       string    `json:"chain"`              // Origin chain (e.g. "ethereum", "solana")
	Amount      float64   `json:"amount"`             // Token units, non-negative
	USDValue    float64   `json:"usdValue,omitempty"` // Historical USD value at transfer time, 0 when unpriced
	Timestamp   time.Time `json:"timestamp"`          // Block timestamp
}

// RejectedRecord captures a transfer that failed validation.
// Rejections are reported alongside results, never silently dropped.
type RejectedRecord struct {
	TransferID string `json:"transferId"`
	Reason     string `json:"reason"`
}
