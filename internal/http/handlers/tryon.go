package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"tryon/internal/domain"
	"tryon/internal/orchestrator"
	"tryon/pkg/zip"
)

type tryOnRequest struct {
	UserImageRef  string `json:"user_image_ref"`
	StyleImageRef string `json:"style_image_ref"`
	UserNote      string `json:"user_note"`
	StyleName     string `json:"style_name"`
	StyleID       string `json:"style_id"`
}

type jobAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type tryOnResult struct {
	JobID         string              `json:"job_id"`
	Status        string              `json:"status"`
	ResultURL     string              `json:"result_url,omitempty"`
	BeforeURL     string              `json:"before_url,omitempty"`
	ComparisonURL string              `json:"comparison_url,omitempty"`
	Description   string              `json:"description,omitempty"`
	IdentityNote  string              `json:"identity_note,omitempty"`
	Diagnostics   []domain.Diagnostic `json:"diagnostics,omitempty"`
	Message       string              `json:"message,omitempty"`
}

func (a *App) TryOnSubmit(w http.ResponseWriter, r *http.Request) {
	var req tryOnRequest
	if !a.decode(w, r, &req) {
		return
	}
	if trimmed(req.UserImageRef) == "" || trimmed(req.StyleImageRef) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "user_image_ref and style_image_ref are required")
		return
	}
	job, err := a.TryOn.Submit(r.Context(), orchestrator.SubmitRequest{
		UserImageRef:  req.UserImageRef,
		StyleImageRef: req.StyleImageRef,
		UserNote:      req.UserNote,
		StyleName:     req.StyleName,
		StyleID:       req.StyleID,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, jobAccepted{JobID: job.ID, Status: string(job.Status)})
}

// TryOnStatus never blocks; clients poll until the status is terminal.
func (a *App) TryOnStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.TryOn.Poll(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := tryOnResult{JobID: job.ID, Status: string(job.Status), Diagnostics: job.Diagnostics}
	switch job.Status {
	case domain.JobStatusSucceeded:
		resp.Status = "ok"
		resp.ResultURL = a.publicURL(job.ResultImagePath)
		resp.BeforeURL = a.publicURL(job.ResolvedUserPath)
		resp.ComparisonURL = a.publicURL(job.ComparisonImagePath)
		resp.Description = job.Description
		resp.IdentityNote = job.IdentityNote
	case domain.JobStatusFailed:
		resp.Status = "error"
		resp.Message = job.Error
	}
	a.json(w, http.StatusOK, resp)
}

// TryOnArchive streams the before, result and comparison images as a zip.
func (a *App) TryOnArchive(w http.ResponseWriter, r *http.Request) {
	job, err := a.TryOn.Poll(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if job.Status != domain.JobStatusSucceeded {
		a.error(w, http.StatusConflict, "conflict", fmt.Sprintf("job %s is %s", job.ID, job.Status))
		return
	}
	var entries []zip.Entry
	for _, e := range []zip.Entry{
		{Name: "before" + filepath.Ext(job.ResolvedUserPath), Path: job.ResolvedUserPath},
		{Name: "result" + filepath.Ext(job.ResultImagePath), Path: job.ResultImagePath},
		{Name: "comparison" + filepath.Ext(job.ComparisonImagePath), Path: job.ComparisonImagePath},
	} {
		if e.Path == "" {
			continue
		}
		if _, err := os.Stat(e.Path); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "job artifacts are gone")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=tryon-%s.zip", job.ID))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, entries, time.Now()); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("http: archive stream aborted")
	}
}
