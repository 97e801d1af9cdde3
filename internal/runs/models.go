package runs

import (
	"encoding/json"
	"time"

	"lineageforge/internal/resolution"
	"lineageforge/internal/validation"
	id "lineageforge/pkg/domain"
)

type JobType string

const (
	JobResolution JobType = "resolve_identities"
	JobValidation JobType = "validate"
)

// Status is the lifecycle of a Run: queued -> running -> completed | failed.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) IsTerminal() bool { return s == StatusCompleted || s == StatusFailed }

// Run is the bookkeeping record for one engine invocation. Config and Summary
// hold the engine's own option and summary documents.
type Run struct {
	ID         id.RunID        `json:"run_id"`
	JobType    JobType         `json:"job_type"`
	Status     Status          `json:"status"`
	Config     json.RawMessage `json:"config,omitempty"`
	Summary    json.RawMessage `json:"summary,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// ResolutionReport is what RunResolution hands back: the run record plus the
// engine output. Result may be partial when the run failed.
type ResolutionReport struct {
	Run    *Run
	Result *resolution.Result
}

type ValidationReport struct {
	Run    *Run
	Result *validation.Result
}

const (
	resolutionLockKey = "resolution"
	defaultLockTTL    = 10 * time.Minute
	defaultListLimit  = 50
	maxListLimit      = 500
)
