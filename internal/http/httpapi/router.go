package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"listingprep/internal/http/handlers"
	"listingprep/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
	)
	if app.Logger != nil {
		r.Use(middleware.Logger(*app.Logger))
	}

	var (
		origins       []string
		defaultLocale string
		ratePerMin    int
		staticDir     string
	)
	if app.Config != nil {
		origins = app.Config.AllowedOrigins
		defaultLocale = app.Config.DefaultLocale
		ratePerMin = app.Config.RateLimitPerMin
		staticDir = app.Config.StaticDir
	}
	r.Use(middleware.CORS(origins), middleware.I18N(defaultLocale))

	r.Get("/healthz", app.Health)

	// generate and describe share one budget; both hit the paid upstream.
	limit := middleware.RateLimit(ratePerMin, time.Minute)

	r.Route("/api", func(r chi.Router) {
		r.With(limit).Post("/generate", app.Generate)

		r.Route("/items", func(r chi.Router) {
			r.Get("/", app.ListItems)
			r.Post("/", app.UploadItems)
			r.Delete("/{id}", app.DeleteItem)
			r.Get("/{id}/download", app.DownloadItem)
			r.With(limit).Post("/{id}/describe", app.DescribeItem)
		})
		r.Post("/batch", app.StartBatch)

		r.Get("/export.zip", app.ExportZip)
		r.Post("/export", app.ExportDeliver)

		r.Get("/alerts", app.Alerts)
		r.Get("/host", app.HostState)
	})

	if staticDir != "" {
		r.NotFound(handlers.Static(staticDir).ServeHTTP)
	}

	return r
}
