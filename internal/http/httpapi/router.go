package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"tryon/internal/http/handlers"
	"tryon/internal/metrics"
	"tryon/internal/middleware"
)

// Options configures the cross-cutting middleware.
type Options struct {
	Logger             zerolog.Logger
	RateLimitPerMinute int
	CORSAllowedOrigins []string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSAllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Handle("/metrics", metrics.Handler())

	// submissions start provider work, so only they are rate limited
	limited := middleware.RateLimit(opts.RateLimitPerMinute)

	r.Route("/v1/tryon", func(r chi.Router) {
		r.With(limited).Post("/", app.TryOnSubmit)
		r.Get("/{job_id}", app.TryOnStatus)
		r.Get("/{job_id}/archive", app.TryOnArchive)
	})
	r.Route("/v1/videos", func(r chi.Router) {
		r.With(limited).Post("/", app.VideosSubmit)
		r.Get("/enabled", app.VideosEnabled)
		r.Get("/{video_job_id}", app.VideoStatus)
	})
	r.Route("/v1/history", func(r chi.Router) {
		r.Get("/", app.HistoryList)
		r.Get("/{job_id}", app.HistoryGet)
		r.Delete("/{job_id}", app.HistoryDelete)
	})
	r.With(limited).Post("/v1/photos/validate", app.PhotoValidate)

	if app.Outputs != nil {
		r.Handle("/static/outputs/*", staticFiles("/static/outputs/", app.Outputs.BasePath()))
	}
	if app.Staging != nil {
		r.Handle("/static/inputs/*", staticFiles("/static/inputs/", app.Staging.BasePath()))
	}
	if app.Resolver != nil {
		r.Get("/static/assets/*", app.StaticAsset)
	}
	return r
}

// staticFiles serves files under root without directory listings.
func staticFiles(prefix, root string) http.Handler {
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(root)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
