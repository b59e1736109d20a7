package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tryon/internal/assets"
)

// StaticAsset serves an image or video found under the resolver's roots.
// Inline payloads and other file types are never served.
func (a *App) StaticAsset(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "*")
	if a.Resolver == nil || ref == "" || strings.HasSuffix(ref, "/") || assets.IsInline(ref) {
		http.NotFound(w, r)
		return
	}
	if assets.MIMEForPath(ref) == "application/octet-stream" {
		http.NotFound(w, r)
		return
	}
	p, err := a.Resolver.ResolveAs(r.Context(), ref, "asset")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, p)
}
