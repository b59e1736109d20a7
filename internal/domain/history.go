package domain

import "time"

// HistoryRecord is the persisted projection of a Job and its latest VideoJob.
type HistoryRecord struct {
	JobID               string     `json:"job_id"`
	Status              JobStatus  `json:"status"`
	UserImagePath       string     `json:"user_image_path,omitempty"`
	StyleImagePath      string     `json:"style_image_path,omitempty"`
	ResultImagePath     string     `json:"result_image_path,omitempty"`
	ComparisonImagePath string     `json:"comparison_image_path,omitempty"`
	VideoJobID          string     `json:"video_job_id,omitempty"`
	VideoPath           string     `json:"video_path,omitempty"`
	VideoStatus         JobStatus  `json:"video_status,omitempty"`
	Description         string     `json:"description,omitempty"`
	IdentityNote        string     `json:"identity_note,omitempty"`
	Error               string     `json:"error,omitempty"`
	StyleName           string     `json:"style_name,omitempty"`
	StyleID             string     `json:"style_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`
}

// HistoryPatch carries a partial update. Nil fields are left untouched.
type HistoryPatch struct {
	Status              *JobStatus
	UserImagePath       *string
	StyleImagePath      *string
	ResultImagePath     *string
	ComparisonImagePath *string
	VideoJobID          *string
	VideoPath           *string
	VideoStatus         *JobStatus
	Description         *string
	IdentityNote        *string
	Error               *string
}

// Apply writes the non-nil fields of p onto rec.
func (p HistoryPatch) Apply(rec *HistoryRecord) {
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.UserImagePath != nil {
		rec.UserImagePath = *p.UserImagePath
	}
	if p.StyleImagePath != nil {
		rec.StyleImagePath = *p.StyleImagePath
	}
	if p.ResultImagePath != nil {
		rec.ResultImagePath = *p.ResultImagePath
	}
	if p.ComparisonImagePath != nil {
		rec.ComparisonImagePath = *p.ComparisonImagePath
	}
	if p.VideoJobID != nil {
		rec.VideoJobID = *p.VideoJobID
	}
	if p.VideoPath != nil {
		rec.VideoPath = *p.VideoPath
	}
	if p.VideoStatus != nil {
		rec.VideoStatus = *p.VideoStatus
	}
	if p.Description != nil {
		rec.Description = *p.Description
	}
	if p.IdentityNote != nil {
		rec.IdentityNote = *p.IdentityNote
	}
	if p.Error != nil {
		rec.Error = *p.Error
	}
}

// Empty reports whether the patch changes nothing.
func (p HistoryPatch) Empty() bool {
	return p == HistoryPatch{}
}

// RecordFromJob projects a job onto a fresh history record.
func RecordFromJob(j Job) HistoryRecord {
	return HistoryRecord{
		JobID:               j.ID,
		Status:              j.Status,
		UserImagePath:       j.ResolvedUserPath,
		StyleImagePath:      j.ResolvedStylePath,
		ResultImagePath:     j.ResultImagePath,
		ComparisonImagePath: j.ComparisonImagePath,
		Description:         j.Description,
		IdentityNote:        j.IdentityNote,
		Error:               j.Error,
		StyleName:           j.StyleName,
		StyleID:             j.StyleID,
		CreatedAt:           j.CreatedAt,
		UpdatedAt:           j.CreatedAt,
	}
}

// Pagination bounds shared by all history backends.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePage clamps page and page size to valid values and returns the
// zero-based offset.
func NormalizePage(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize, (page - 1) * pageSize
}

// Job rebuilds a job snapshot from a persisted record. Diagnostics and the
// original references are not persisted and come back empty.
func (r HistoryRecord) Job() Job {
	j := Job{
		ID:                  r.JobID,
		Status:              r.Status,
		StyleName:           r.StyleName,
		StyleID:             r.StyleID,
		ResolvedUserPath:    r.UserImagePath,
		ResolvedStylePath:   r.StyleImagePath,
		Description:         r.Description,
		ResultImagePath:     r.ResultImagePath,
		ComparisonImagePath: r.ComparisonImagePath,
		IdentityNote:        r.IdentityNote,
		Error:               r.Error,
		CreatedAt:           r.CreatedAt,
	}
	if r.Status.Terminal() && !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		j.CompletedAt = &t
	}
	return j
}
