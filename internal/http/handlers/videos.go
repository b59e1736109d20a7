package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tryon/internal/domain"
	"tryon/internal/video"
)

type videoRequest struct {
	SourceJobID    string `json:"source_job_id"`
	SourceImageRef string `json:"source_image_ref"`
	Prompt         string `json:"prompt"`
	Duration       int    `json:"duration"`
}

type videoAccepted struct {
	VideoJobID string `json:"video_job_id"`
	Status     string `json:"status"`
}

type videoResult struct {
	VideoJobID  string `json:"video_job_id"`
	SourceJobID string `json:"source_job_id"`
	Status      string `json:"status"`
	OutputPath  string `json:"output_path,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (a *App) VideosSubmit(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if !a.decode(w, r, &req) {
		return
	}
	if trimmed(req.SourceJobID) == "" && trimmed(req.SourceImageRef) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "source_job_id or source_image_ref is required")
		return
	}
	vj, err := a.Videos.Submit(r.Context(), video.SubmitRequest{
		SourceJobID:     req.SourceJobID,
		SourceImageRef:  req.SourceImageRef,
		Prompt:          req.Prompt,
		DurationSeconds: req.Duration,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, videoAccepted{VideoJobID: vj.ID, Status: string(vj.Status)})
}

func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	vj, err := a.Videos.Poll(r.Context(), chi.URLParam(r, "video_job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := videoResult{VideoJobID: vj.ID, SourceJobID: vj.SourceJobID, Status: string(vj.Status)}
	switch vj.Status {
	case domain.JobStatusSucceeded:
		resp.Status = "completed"
		resp.OutputPath = vj.OutputVideoPath
		resp.VideoURL = a.publicURL(vj.OutputVideoPath)
	case domain.JobStatusFailed:
		resp.Message = vj.Error
	}
	a.json(w, http.StatusOK, resp)
}

// VideosEnabled tells clients whether video generation has provider keys.
func (a *App) VideosEnabled(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]bool{"enabled": a.Videos.Enabled()})
}
