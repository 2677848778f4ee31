package domain

import "time"

type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerPoll     Trigger = "poll"
	TriggerCLI      Trigger = "cli"
)

// RunStats holds statistics about an ingestion run.
type RunStats struct {
	RunID         string
	Sources       int
	Fetched       int
	Processed     int
	Skipped       int
	FailedSources int
	FailedItems   int
	Duration      time.Duration
}

// IngestRun is the persisted bookkeeping row of a run.
type IngestRun struct {
	ID            int64      `db:"id"`
	RunID         string     `db:"run_id"`
	Trigger       Trigger    `db:"trigger"`
	TopicID       *int64     `db:"topic_id"`
	StartedAt     time.Time  `db:"started_at"`
	FinishedAt    *time.Time `db:"finished_at"`
	Processed     int        `db:"processed"`
	FailedSources int        `db:"failed_sources"`
	FailedItems   int        `db:"failed_items"`
	Error         *string    `db:"error"`
}
