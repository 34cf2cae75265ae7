package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"listingprep/internal/domain"
	"listingprep/internal/export"
	"listingprep/internal/host"
)

type exportRequest struct {
	IDs []string `json:"ids"`
}

// ExportZip bundles every done item into one archive.
func (a *App) ExportZip(w http.ResponseWriter, r *http.Request) {
	data, err := export.Archive(a.Batch.Snapshot().Done(), a.prefix())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	name := a.prefix() + time.Now().UTC().Format("20060102-150405") + ".zip"
	writeAttachment(w, name, "application/zip", data)
}

// ExportDeliver hands artifacts to the configured share target or save
// location. One id exports a single item, no ids exports every done item.
func (a *App) ExportDeliver(w http.ResponseWriter, r *http.Request) {
	if a.Export == nil {
		a.fail(w, r, export.ErrNoSaveTarget)
		return
	}
	var req exportRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			a.error(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	}

	var (
		delivery export.Delivery
		err      error
	)
	switch len(req.IDs) {
	case 0:
		delivery, err = a.Export.DeliverBatch(r.Context(), a.Batch.Snapshot().Done())
	case 1:
		var item domain.WorkItem
		item, err = a.Batch.Get(req.IDs[0])
		if err == nil {
			delivery, err = a.Export.Deliver(r.Context(), item)
		}
	default:
		items := make([]domain.WorkItem, 0, len(req.IDs))
		for _, id := range req.IDs {
			item, getErr := a.Batch.Get(id)
			if getErr != nil {
				a.fail(w, r, getErr)
				return
			}
			items = append(items, item)
		}
		delivery, err = a.Export.DeliverBatch(r.Context(), items)
	}
	if err != nil {
		if delivery.Outcome != "" {
			a.json(w, http.StatusMultiStatus, map[string]any{
				"outcome": delivery.Outcome,
				"files":   delivery.Files,
				"error":   err.Error(),
			})
			return
		}
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, delivery)
}

// Alerts drains the pending host alerts and haptic events.
func (a *App) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts, haptics := a.Host.Drain()
	a.json(w, http.StatusOK, map[string]any{
		"alerts":  alerts,
		"haptics": haptics,
	})
}

// HostState reports the shell presentation state for the front end.
func (a *App) HostState(w http.ResponseWriter, r *http.Request) {
	ready, expanded := a.Host.State()
	a.json(w, http.StatusOK, map[string]any{
		"ready":            ready,
		"expanded":         expanded,
		"theme_background": a.Host.ThemeBackground(),
		"locale":           host.LocaleFrom(r.Context()),
	})
}
