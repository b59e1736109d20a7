package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"tryon/internal/domain"
	"tryon/internal/orchestrator"
	"tryon/internal/providers/image"
	"tryon/internal/storage"
	"tryon/internal/video"
)

// maxBodyBytes bounds JSON bodies; inline data URIs make them large.
const maxBodyBytes = 32 << 20

// TryOnService is the slice of the job orchestrator used by the handlers.
type TryOnService interface {
	Submit(ctx context.Context, req orchestrator.SubmitRequest) (domain.Job, error)
	Poll(ctx context.Context, jobID string) (domain.Job, error)
}

// VideoService is the slice of the video orchestrator used by the handlers.
type VideoService interface {
	Submit(ctx context.Context, req video.SubmitRequest) (domain.VideoJob, error)
	Poll(ctx context.Context, videoJobID string) (domain.VideoJob, error)
	Enabled() bool
}

// assetPublisher maps a resolved asset path back to the reference that
// resolves to it.
type assetPublisher interface {
	PublicRel(path string) (string, bool)
}

type App struct {
	Logger    zerolog.Logger
	TryOn     TryOnService
	Videos    VideoService
	History   domain.HistoryRepository
	Resolver  orchestrator.AssetResolver
	Validator image.PhotoValidator

	// Outputs and Staging are exposed under /static/outputs and /static/inputs,
	// the resolver's roots under /static/assets.
	Outputs *storage.FileStore
	Staging *storage.FileStore
	BaseURL string
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// fail maps domain sentinels onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidAsset):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrAssetNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrSourceNotReady), errors.Is(err, domain.ErrDuplicateOperation):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, orchestrator.ErrClosed), errors.Is(err, video.ErrClosed):
		a.error(w, http.StatusServiceUnavailable, "unavailable", "server is shutting down")
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return false
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

// publicURL maps a file inside the outputs, staging or asset roots to its
// static URL. Paths elsewhere have no public URL.
func (a *App) publicURL(path string) string {
	if path == "" {
		return ""
	}
	if rel, ok := a.Outputs.Rel(path); ok {
		return a.BaseURL + "/static/outputs/" + rel
	}
	if rel, ok := a.Staging.Rel(path); ok {
		return a.BaseURL + "/static/inputs/" + rel
	}
	if pub, ok := a.Resolver.(assetPublisher); ok {
		if rel, ok := pub.PublicRel(path); ok {
			return a.BaseURL + "/static/assets/" + rel
		}
	}
	return ""
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
