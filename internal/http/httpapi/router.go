package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veobatch/internal/http/handlers"
	"veobatch/internal/middleware"
)

// RouterOptions carries the cross-cutting settings of the router.
type RouterOptions struct {
	DefaultLocale   string
	AllowedOrigins  []string
	RateLimitPerMin int
	CountryLookup   middleware.CountryLookup
	// StaticDir is served under /static when set.
	StaticDir string
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.Route("/v1/batch", func(r chi.Router) {
		if opts.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}
		r.Get("/status", app.BatchStatus)
		r.Post("/start", app.StartBatch)
		r.Post("/stop", app.StopBatch)
		r.Post("/reset", app.ResetBatch)
		r.Get("/download", app.DownloadAll)
		r.Get("/history", app.History)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", app.ListJobs)
			r.Post("/", app.EnqueueJob)
			r.Get("/{id}", app.GetJob)
			r.Delete("/{id}", app.RemoveJob)
			r.Post("/{id}/retry", app.RetryJob)
			r.Get("/{id}/download", app.DownloadJob)
		})
	})

	return r
}
