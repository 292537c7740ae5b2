package models

import "time"

// SyncStrategyENUMType download strategy ENUM value type
type SyncStrategyENUMType string

const (
	// SyncStrategyNone no download was performed
	SyncStrategyNone SyncStrategyENUMType = "NONE"
	// SyncStrategyReplace initial fetch which replaced the whole local collection
	SyncStrategyReplace SyncStrategyENUMType = "INITIAL_REPLACE"
	// SyncStrategyInitialMerge initial fetch merged with local unsynced records
	SyncStrategyInitialMerge SyncStrategyENUMType = "INITIAL_MERGE"
	// SyncStrategyIncremental delta fetch since the last checkpoint
	SyncStrategyIncremental SyncStrategyENUMType = "INCREMENTAL"
)

// SyncRunReport summary of one sync run
type SyncRunReport struct {
	// Strategy download strategy used
	Strategy SyncStrategyENUMType `json:"strategy" validate:"required,sync_strategy"`
	// Uploaded number of records uploaded
	Uploaded int `json:"uploaded" validate:"gte=0"`
	// Inserted number of remote records inserted locally
	Inserted int `json:"inserted" validate:"gte=0"`
	// Updated number of local records refreshed from the server
	Updated int `json:"updated" validate:"gte=0"`
	// Skipped number of remote changes skipped because the local copy is dirty
	Skipped int `json:"skipped" validate:"gte=0"`
	// Deleted number of local records removed on remote deletion
	Deleted int `json:"deleted" validate:"gte=0"`
	// StartedAt run start
	StartedAt time.Time `json:"started_at"`
	// FinishedAt run end
	FinishedAt time.Time `json:"finished_at"`
	// Error failure description, if the run failed
	Error string `json:"error,omitempty"`
}
