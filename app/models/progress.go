package models

import "time"

// ProgressError is one per-record failure kept for post-hoc audit.
type ProgressError struct {
	Index   int       `json:"index"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ProgressState is the persisted checkpoint document. LastProcessedIndex is
// the last input index that completed (success, no-match or error); a fresh
// run starts at -1 so processing begins at index 0.
type ProgressState struct {
	LastProcessedIndex int             `json:"last_processed_index"`
	Errors             []ProgressError `json:"errors"`
}

// NewProgressState returns the zero checkpoint for a fresh run.
func NewProgressState() *ProgressState {
	return &ProgressState{LastProcessedIndex: -1, Errors: []ProgressError{}}
}

// RecordError appends a per-record failure with the current timestamp.
func (p *ProgressState) RecordError(index int, message string) {
	p.Errors = append(p.Errors, ProgressError{Index: index, Message: message, Time: time.Now()})
}
