package handlers

import (
	"net/http"
)

// Health reports liveness plus whether the describe upstream is configured.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"ai_configured": a.Generator != nil && a.Generator.Configured(),
	})
}
