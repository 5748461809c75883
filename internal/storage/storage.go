package storage

import (
	"time"

	"voucherPools/internal/model"
)

// EventRecord is one line of the progress audit log.
type EventRecord struct {
	Time    time.Time            `json:"ts"`
	Source  string               `json:"source"`
	RunID   string               `json:"run_id,omitempty"`
	Message string               `json:"message"`
	Status  model.ProgressStatus `json:"status"`
	Address string               `json:"address,omitempty"`
	TxHash  string               `json:"tx_hash,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// Storage defines a sink for progress records.
type Storage interface {
	PutEvents(records []EventRecord) error
}

// FromProgress converts a deployment progress event.
func FromProgress(source string, ev model.ProgressEvent) EventRecord {
	return EventRecord{
		Time:    time.Now().UTC(),
		Source:  source,
		Message: ev.Message,
		Status:  ev.Status,
		Address: ev.Address,
		Error:   ev.Error,
	}
}
