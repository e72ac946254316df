package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"vidconv/internal/http/handlers"
	"vidconv/internal/middleware"
)

// NewRouter wires the thin HTTP collaborator around the conversion core.
// staticDir, when set, serves the local artifact store under /static for
// development setups without object storage.
func NewRouter(app *handlers.App, logger zerolog.Logger, rateLimitPerMin int, staticDir string) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS)

	r.Get("/v1/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.RateLimit(rateLimitPerMin, time.Minute)).
			Post("/upload", app.Upload)
		r.Get("/status/{id}", app.Status)
	})

	if staticDir != "" {
		fs := stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.Dir(staticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
