package types

import "time"

// ImportSource tells how an archive entered the pipeline
type ImportSource string

const (
	ImportSourceLocal  ImportSource = "local"
	ImportSourceRemote ImportSource = "remote"
)

// ImportState represents the lifecycle of one pipeline run
type ImportState string

const (
	ImportQueued      ImportState = "queued"
	ImportDownloading ImportState = "downloading"
	ImportExtracting  ImportState = "extracting"
	ImportRegistering ImportState = "registering"
	ImportCompleted   ImportState = "completed"
	ImportFailed      ImportState = "failed"
)

// IsFinished reports whether the run reached a terminal state
func (s ImportState) IsFinished() bool {
	return s == ImportCompleted || s == ImportFailed
}

// ImportStatus is the pollable view of a pipeline run
type ImportStatus struct {
	ID             string       `json:"id"`
	Source         ImportSource `json:"source"`
	Origin         string       `json:"origin"`
	SourceLocation string       `json:"source_location"`
	State          ImportState  `json:"state"`
	FailedStage    string       `json:"failed_stage,omitempty"`
	Error          string       `json:"error,omitempty"`
	EntryID        string       `json:"entry_id,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
}
