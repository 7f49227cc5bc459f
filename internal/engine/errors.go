package engine

import "fmt"

// InvalidRecordError marks a malformed transfer. The record is excluded
// from the graph and reported in the rejection list; the run continues.
type InvalidRecordError struct {
	TransferID string
	Reason     string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid transfer %s: %s", e.TransferID, e.Reason)
}

// ConfigurationError fails the entire run before any heuristic executes.
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Option, e.Reason)
}
