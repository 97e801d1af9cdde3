package handler

import (
	"encoding/json"
	"time"

	"lineageforge/internal/resolution"
	"lineageforge/internal/runs"
	"lineageforge/internal/validation"
)

type RunResponse struct {
	RunID      string          `json:"run_id"`
	JobType    string          `json:"job_type"`
	Status     string          `json:"status"`
	Config     json.RawMessage `json:"config,omitempty"`
	Summary    json.RawMessage `json:"summary,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

func FromRun(run *runs.Run) RunResponse {
	return RunResponse{
		RunID:      run.ID.String(),
		JobType:    string(run.JobType),
		Status:     string(run.Status),
		Config:     run.Config,
		Summary:    run.Summary,
		Error:      run.Error,
		CreatedAt:  run.CreatedAt,
		FinishedAt: run.FinishedAt,
	}
}

type RunListResponse struct {
	Runs []RunResponse `json:"runs"`
}

func FromRuns(list []*runs.Run) RunListResponse {
	out := RunListResponse{Runs: make([]RunResponse, 0, len(list))}
	for _, r := range list {
		out.Runs = append(out.Runs, FromRun(r))
	}
	return out
}

type ResolutionRunResponse struct {
	Run         RunResponse             `json:"run"`
	MergeEvents []resolution.MergeEvent `json:"merge_events"`
}

func FromResolutionReport(r *runs.ResolutionReport) ResolutionRunResponse {
	resp := ResolutionRunResponse{Run: FromRun(r.Run), MergeEvents: []resolution.MergeEvent{}}
	if r.Result != nil && r.Result.Events != nil {
		resp.MergeEvents = r.Result.Events
	}
	return resp
}

type ValidationRunResponse struct {
	Run   RunResponse       `json:"run"`
	Flags []validation.Flag `json:"flags"`
}

func FromValidationReport(r *runs.ValidationReport) ValidationRunResponse {
	resp := ValidationRunResponse{Run: FromRun(r.Run), Flags: []validation.Flag{}}
	if r.Result != nil && r.Result.Flags != nil {
		resp.Flags = r.Result.Flags
	}
	return resp
}

type PreviewResponse struct {
	resolution.Breakdown
	Threshold  float64 `json:"threshold"`
	WouldMerge bool    `json:"would_merge"`
}
