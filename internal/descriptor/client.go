// Package descriptor talks to the description service that turns one photo
// into listing copy.
package descriptor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"listingprep/internal/domain"
	"listingprep/internal/infra"
)

// Describer produces a Descriptor for one still image. Implementations do
// not retry; failures are *domain.DescriptorError.
type Describer interface {
	Describe(ctx context.Context, image []byte) (domain.Descriptor, error)
}

// GeneratePath is the endpoint served by the description proxy.
const GeneratePath = "/api/generate"

const maxResponseBytes = 1 << 20

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client posts images to {BaseURL}/api/generate.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *infra.Logger
}

// GenerateRequest is the wire body of POST /api/generate.
type GenerateRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

// ErrorResponse is the wire body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewClient builds a Client. BaseURL is required.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("descriptor: base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Client{
		endpoint:   base + GeneratePath,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Describe uploads image as base64 without a data-URL prefix.
func (c *Client) Describe(ctx context.Context, image []byte) (domain.Descriptor, error) {
	if len(image) == 0 {
		return domain.Descriptor{}, &domain.DescriptorError{Reason: "No image data provided"}
	}
	body, err := json.Marshal(GenerateRequest{ImageBase64: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return domain.Descriptor{}, &domain.DescriptorError{Reason: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Descriptor{}, &domain.DescriptorError{Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Descriptor{}, &domain.DescriptorError{Reason: "network", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.Descriptor{}, &domain.DescriptorError{Reason: "network", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := "Server error"
		var apiErr ErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && strings.TrimSpace(apiErr.Error) != "" {
			reason = apiErr.Error
		}
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("reason", reason).
			Msg("descriptor: request rejected")
		return domain.Descriptor{}, &domain.DescriptorError{Reason: reason, StatusCode: resp.StatusCode}
	}

	var desc domain.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return domain.Descriptor{}, &domain.DescriptorError{
			Reason:     "unparseable descriptor payload",
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}
	if desc.IsEmpty() {
		return domain.Descriptor{}, &domain.DescriptorError{
			Reason:     "missing descriptor payload",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("empty body of %d bytes", len(data)),
		}
	}
	return desc, nil
}

var _ Describer = (*Client)(nil)
