package handlers

import (
	"net/http"

	"tryon/internal/providers/image"
)

type photoValidateRequest struct {
	ImageRef string `json:"image_ref"`
}

// PhotoValidate reports whether a photo is usable as the user image.
func (a *App) PhotoValidate(w http.ResponseWriter, r *http.Request) {
	var req photoValidateRequest
	if !a.decode(w, r, &req) {
		return
	}
	if trimmed(req.ImageRef) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "image_ref is required")
		return
	}
	path, err := a.Resolver.ResolveAs(r.Context(), req.ImageRef, "validate")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	src, err := image.LoadSource(path)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	verdict, err := a.Validator.ValidatePhoto(r.Context(), src)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, verdict)
}
