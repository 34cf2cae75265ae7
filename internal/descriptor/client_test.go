package descriptor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"listingprep/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestClientDescribe(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != GeneratePath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ImageBase64 != base64.StdEncoding.EncodeToString(image) {
			t.Errorf("imageBase64 mismatch: %q", req.ImageBase64)
		}
		_ = json.NewEncoder(w).Encode(domain.Descriptor{
			Title:       "Tent",
			AltText:     "palatka turisticheskaya red fox",
			Description: "desc",
			PriceGuess:  "5000",
		})
	}))
	defer ts.Close()

	client, err := NewClient(Options{BaseURL: ts.URL + "/"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	desc, err := client.Describe(context.Background(), image)
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if desc.AltText != "palatka turisticheskaya red fox" || desc.Title != "Tent" {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}
}

func TestClientDescribeFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantReason string
	}{
		{name: "upstream message verbatim", status: http.StatusInternalServerError, body: `{"error":"upstream timeout"}`, wantReason: "upstream timeout"},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"No image data provided"}`, wantReason: "No image data provided"},
		{name: "non json error", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, wantReason: "Server error"},
		{name: "unparseable success", status: http.StatusOK, body: `not json`, wantReason: "unparseable descriptor payload"},
		{name: "empty success", status: http.StatusOK, body: `{}`, wantReason: "missing descriptor payload"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			client, _ := NewClient(Options{BaseURL: ts.URL})
			_, err := client.Describe(context.Background(), []byte("img"))
			var de *domain.DescriptorError
			if !errors.As(err, &de) {
				t.Fatalf("error = %v, want DescriptorError", err)
			}
			if de.Reason != tc.wantReason {
				t.Fatalf("reason = %q, want %q", de.Reason, tc.wantReason)
			}
			if de.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", de.StatusCode, tc.status)
			}
		})
	}
}

func TestClientDescribeNetworkFailure(t *testing.T) {
	client, _ := NewClient(Options{
		BaseURL: "http://descriptor.invalid",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})},
	})
	_, err := client.Describe(context.Background(), []byte("img"))
	var de *domain.DescriptorError
	if !errors.As(err, &de) || de.Reason != "network" {
		t.Fatalf("error = %v, want network DescriptorError", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatal("expected error without base url")
	}
}
