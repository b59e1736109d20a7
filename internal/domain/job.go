package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// CanTransition reports whether moving from s to next is a forward step of
// the lifecycle. Resolution failures may jump from pending straight to failed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusSucceeded || next == JobStatusFailed
	default:
		return false
	}
}

// Stage names used in diagnostics and metrics.
const (
	StageResolve     = "resolve"
	StageDescription = "description"
	StageImage       = "image"
	StageComparison  = "comparison"
	StageIdentity    = "identity"
)

// Diagnostic is a non-fatal note recorded against a job.
type Diagnostic struct {
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Job is one end-to-end try-on request.
type Job struct {
	ID                  string       `json:"job_id"`
	Status              JobStatus    `json:"status"`
	UserImageRef        string       `json:"user_image_ref"`
	StyleImageRef       string       `json:"style_image_ref"`
	UserNote            string       `json:"user_note,omitempty"`
	StyleName           string       `json:"style_name,omitempty"`
	StyleID             string       `json:"style_id,omitempty"`
	ResolvedUserPath    string       `json:"resolved_user_path,omitempty"`
	ResolvedStylePath   string       `json:"resolved_style_path,omitempty"`
	Description         string       `json:"description,omitempty"`
	ResultImagePath     string       `json:"result_image_path,omitempty"`
	ComparisonImagePath string       `json:"comparison_image_path,omitempty"`
	IdentityNote        string       `json:"identity_note,omitempty"`
	Error               string       `json:"error,omitempty"`
	Diagnostics         []Diagnostic `json:"diagnostics,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	CompletedAt         *time.Time   `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no mutable state with j.
func (j Job) Clone() Job {
	out := j
	if j.Diagnostics != nil {
		out.Diagnostics = append([]Diagnostic(nil), j.Diagnostics...)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// VideoJob animates the result of a succeeded Job.
type VideoJob struct {
	ID              string     `json:"video_job_id"`
	SourceJobID     string     `json:"source_job_id"`
	ProviderTaskID  string     `json:"provider_task_id,omitempty"`
	Status          JobStatus  `json:"status"`
	Prompt          string     `json:"prompt"`
	DurationSeconds int        `json:"duration"`
	OutputVideoPath string     `json:"output_video_path,omitempty"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no mutable state with v.
func (v VideoJob) Clone() VideoJob {
	out := v
	if v.CompletedAt != nil {
		t := *v.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
