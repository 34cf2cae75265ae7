package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"listingprep/internal/batch"
	"listingprep/internal/domain"
	"listingprep/internal/export"
	"listingprep/internal/host"
	"listingprep/internal/infra"
)

// Generator is the upstream describe capability behind POST /api/generate.
// *genai.Client satisfies it.
type Generator interface {
	Configured() bool
	Describe(ctx context.Context, image []byte) (domain.Descriptor, error)
}

// App carries the session state shared by all handlers.
type App struct {
	Config    *infra.Config
	Logger    *infra.Logger
	Generator Generator
	Batch     *batch.Orchestrator
	Export    *export.Adapter
	Host      *host.Inbox

	// RunContext bounds background batch runs; it is cancelled on shutdown.
	RunContext context.Context
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}

// fail maps domain errors to a status code.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	var descErr *domain.DescriptorError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidOptions):
		code = http.StatusBadRequest
	case errors.Is(err, batch.ErrBatchRunning):
		code = http.StatusConflict
	case errors.Is(err, export.ErrNotReady), errors.Is(err, export.ErrNothingToExport):
		code = http.StatusConflict
	case errors.As(err, &descErr):
		code = http.StatusBadGateway
	}
	if code >= http.StatusInternalServerError {
		a.log(r).Error().Err(err).Str("path", r.URL.Path).Msg("http: request failed")
	}
	a.error(w, code, err.Error())
}

func (a *App) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	if a.Logger != nil {
		return a.Logger
	}
	return infra.DiscardLogger()
}

func (a *App) runContext() context.Context {
	if a.RunContext != nil {
		return a.RunContext
	}
	return context.Background()
}

func (a *App) prefix() string {
	if a.Export != nil {
		return a.Export.Prefix()
	}
	if a.Config != nil && a.Config.ExportPrefix != "" {
		return a.Config.ExportPrefix
	}
	return export.DefaultPrefix
}
