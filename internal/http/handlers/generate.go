package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"listingprep/internal/domain"
)

type generateRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

// Generate proxies one image to the vision model and returns the four
// listing fields.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	if a.Generator == nil || !a.Generator.Configured() {
		a.error(w, http.StatusInternalServerError, "Server API Key not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.maxBody())
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		a.error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	encoded := stripDataURL(req.ImageBase64)
	if encoded == "" {
		a.error(w, http.StatusBadRequest, "No image data provided")
		return
	}
	image, err := decodeBase64(encoded)
	if err != nil || len(image) == 0 {
		a.error(w, http.StatusBadRequest, "Invalid base64 image data")
		return
	}

	desc, err := a.Generator.Describe(r.Context(), image)
	if err != nil {
		a.log(r).Error().Err(err).Int("image_bytes", len(image)).Msg("generate: upstream failed")
		msg := err.Error()
		var descErr *domain.DescriptorError
		if errors.As(err, &descErr) && descErr.Reason != "" {
			msg = descErr.Reason
		}
		a.error(w, http.StatusInternalServerError, msg)
		return
	}
	a.json(w, http.StatusOK, desc)
}

func (a *App) maxBody() int64 {
	if a.Config != nil && a.Config.MaxUploadBytes > 0 {
		return a.Config.MaxUploadBytes
	}
	return 50 << 20
}

// stripDataURL drops a "data:image/...;base64," prefix when present.
func stripDataURL(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if idx := strings.IndexByte(s, ','); idx >= 0 {
			return s[idx+1:]
		}
		return ""
	}
	return s
}

func decodeBase64(s string) ([]byte, error) {
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
