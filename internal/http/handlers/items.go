package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"listingprep/internal/batch"
	"listingprep/internal/domain"
	"listingprep/internal/export"
	"listingprep/internal/host"
)

type itemView struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	MIMEType          string             `json:"mime_type"`
	Status            domain.Status      `json:"status"`
	Error             string             `json:"error,omitempty"`
	Metrics           domain.Metrics     `json:"metrics"`
	OriginalSizeText  string             `json:"original_size_text"`
	ProcessedSizeText string             `json:"processed_size_text,omitempty"`
	SavedPercent      *int               `json:"saved_percent,omitempty"`
	Descriptor        *domain.Descriptor `json:"descriptor,omitempty"`
	Filename          string             `json:"filename,omitempty"`
	DownloadURL       string             `json:"download_url,omitempty"`
}

func (a *App) view(item domain.WorkItem) itemView {
	v := itemView{
		ID:               item.ID,
		Name:             item.Name,
		MIMEType:         item.MIMEType,
		Status:           item.Status,
		Error:            item.Error,
		Metrics:          item.Metrics,
		OriginalSizeText: humanize.Bytes(uint64(item.Metrics.OriginalSize)),
		Descriptor:       item.Descriptor,
	}
	if ratio, ok := item.CompressionRatio(); ok {
		pct := int(math.Round(ratio * 100))
		v.SavedPercent = &pct
		v.ProcessedSizeText = humanize.Bytes(uint64(item.Metrics.ProcessedSize))
	}
	if art, err := export.ArtifactFor(item, a.prefix()); err == nil {
		v.Filename = art.Name
		v.DownloadURL = "/api/items/" + item.ID + "/download"
	}
	return v
}

func (a *App) views(items []domain.WorkItem) []itemView {
	out := make([]itemView, 0, len(items))
	for _, item := range items {
		out = append(out, a.view(item))
	}
	return out
}

// ListItems returns the collection and whether a batch is running.
func (a *App) ListItems(w http.ResponseWriter, r *http.Request) {
	snap := a.Batch.Snapshot()
	a.json(w, http.StatusOK, map[string]any{
		"items":   a.views(snap.Items),
		"running": a.Batch.Running(),
		"counts": map[domain.Status]int{
			domain.StatusPending:    snap.Count(domain.StatusPending),
			domain.StatusProcessing: snap.Count(domain.StatusProcessing),
			domain.StatusDone:       snap.Count(domain.StatusDone),
			domain.StatusError:      snap.Count(domain.StatusError),
		},
	})
}

// UploadItems accepts multipart "files" parts. Non-images are dropped; an
// upload with no images at all is rejected with a localized warning.
func (a *App) UploadItems(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBody())
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		a.error(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	var sources []batch.Source
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			a.fail(w, r, fmt.Errorf("open %s: %w", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			a.fail(w, r, fmt.Errorf("read %s: %w", fh.Filename, err))
			return
		}
		sources = append(sources, batch.Source{
			Name:     fh.Filename,
			MIMEType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	added, err := a.Batch.Add(sources...)
	if errors.Is(err, batch.ErrNoImages) {
		msg := host.Localize(r.Context(), host.MsgNoImages)
		a.Host.ShowAlert(msg)
		a.error(w, http.StatusBadRequest, msg)
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"items": a.views(added)})
}

// DeleteItem removes one item from the session.
func (a *App) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := a.Batch.Remove(chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchRequest struct {
	Quality           *float64 `json:"quality"`
	MaxWidth          *int     `json:"max_width"`
	Format            *string  `json:"format"`
	CropToFixedAspect *bool    `json:"crop_to_fixed_aspect"`
	AutoDescribe      *bool    `json:"auto_describe"`
}

func (a *App) runOptions(req batchRequest) (batch.RunOptions, error) {
	opts := batch.RunOptions{Processing: domain.DefaultProcessingOptions()}
	if a.Config != nil {
		opts.Processing = a.Config.ProcessingOptions()
		opts.AutoDescribe = a.Config.AutoDescribe
	}
	if req.Quality != nil {
		opts.Processing.Quality = domain.ClampQuality(*req.Quality)
	}
	if req.MaxWidth != nil {
		opts.Processing.MaxWidth = *req.MaxWidth
	}
	if req.Format != nil {
		enc, err := domain.ParseEncoding(*req.Format)
		if err != nil {
			return batch.RunOptions{}, err
		}
		opts.Processing.Encoding = enc
	}
	if req.CropToFixedAspect != nil {
		opts.Processing.CropToFixedAspect = *req.CropToFixedAspect
	}
	if req.AutoDescribe != nil {
		opts.AutoDescribe = *req.AutoDescribe
	}
	return opts, opts.Processing.Validate()
}

// StartBatch kicks off a background run; clients poll ListItems.
func (a *App) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			a.error(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	}
	opts, err := a.runOptions(req)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	log := a.log(r).With().Logger()
	err = a.Batch.Start(a.runContext(), opts, func(s batch.Summary, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("batch: background run stopped")
			return
		}
		log.Info().
			Int("done", s.Done).
			Int("failed", s.Failed).
			Str("saved", humanize.Bytes(uint64(max(s.OriginalBytes-s.ProcessedBytes, 0)))).
			Msg("batch: background run complete")
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{
		"status": "running",
		"options": map[string]any{
			"quality":              opts.Processing.Quality,
			"max_width":            opts.Processing.MaxWidth,
			"format":               opts.Processing.Encoding,
			"crop_to_fixed_aspect": opts.Processing.CropToFixedAspect,
			"auto_describe":        opts.AutoDescribe,
		},
	})
}

// DescribeItem requests AI copy for one item. Failures are surfaced to the
// caller and as a host alert.
func (a *App) DescribeItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	desc, err := a.Batch.Describe(r.Context(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			msg := err.Error()
			if msg == "" {
				msg = host.Localize(r.Context(), host.MsgUnknownError)
			}
			a.Host.ShowAlert(host.Localize(r.Context(), host.MsgDescribeFailed, msg))
			a.Host.HapticFeedback(host.HapticError)
		}
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, desc)
}

// DownloadItem streams the rendered artifact under its export filename.
func (a *App) DownloadItem(w http.ResponseWriter, r *http.Request) {
	item, err := a.Batch.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	art, err := export.ArtifactFor(item, a.prefix())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeAttachment(w, art.Name, art.MIMEType, art.Data)
}

func writeAttachment(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
