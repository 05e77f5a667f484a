package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"happysd/internal/httpapi/handlers"
	"happysd/internal/middleware"
)

// RouterOptions carries the ambient knobs the router needs beyond handlers.
type RouterOptions struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
}

// NewRouter assembles the public HTTP surface.
func NewRouter(app *handlers.App, opts RouterOptions) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(middleware.CORS(opts.AllowedOrigins))
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/healthz", app.Health)

	r.Post("/add_job", app.AddJob)
	r.Post("/cancel_job", app.CancelJob)
	r.Post("/get_jobs", app.GetJobs)
	r.Get("/random_jobs", app.RandomJobs)

	r.Get("/", app.Index)
	r.Get("/restoration", app.Restoration)

	return r
}
