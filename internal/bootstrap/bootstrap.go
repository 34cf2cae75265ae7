// Package bootstrap builds the runtime components shared by the API server
// and the command line tool from one Config.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"listingprep/internal/batch"
	"listingprep/internal/descriptor"
	"listingprep/internal/events"
	"listingprep/internal/export"
	"listingprep/internal/infra"
	"listingprep/internal/providers/genai"
	"listingprep/internal/storage"
)

// Gemini returns the vision client. It is returned even without an API key
// so callers can report the missing credential on use.
func Gemini(cfg *infra.Config, logger *infra.Logger) (*genai.Client, error) {
	return genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: &http.Client{Timeout: 90 * time.Second},
		Logger:     logger,
	})
}

// Describer picks the batch describe backend: Gemini when a key is set,
// otherwise a remote proxy when DESCRIPTOR_URL is set, otherwise none.
func Describer(cfg *infra.Config, gemini *genai.Client, logger *infra.Logger) (descriptor.Describer, error) {
	if gemini.Configured() {
		return gemini, nil
	}
	if cfg.DescriptorURL == "" {
		return nil, nil
	}
	client, err := descriptor.NewClient(descriptor.Options{BaseURL: cfg.DescriptorURL, Logger: logger})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Orchestrator wires a batch orchestrator around engine and describer.
func Orchestrator(cfg *infra.Config, engine batch.Transcoder, describer descriptor.Describer, logger *infra.Logger) *batch.Orchestrator {
	return batch.New(engine, describer, batch.Options{
		Logger:          logger,
		DescribeRetries: cfg.DescribeRetries,
	})
}

// Saver returns the S3 store when EXPORT_S3_BUCKET is set and a directory
// store under dir otherwise. The string describes the target for logs.
func Saver(ctx context.Context, cfg *infra.Config, dir string) (export.Saver, string, error) {
	if cfg.ExportS3Bucket != "" {
		store, err := storage.NewS3StoreFromEnv(ctx, cfg.ExportS3Bucket, cfg.ExportS3Prefix)
		if err != nil {
			return nil, "", err
		}
		return store, "s3://" + filepath.ToSlash(filepath.Join(store.Bucket(), cfg.ExportS3Prefix)), nil
	}
	if dir == "" {
		dir = cfg.ExportDir
	}
	store, err := storage.NewFileStore(dir)
	if err != nil {
		return nil, "", err
	}
	return store, store.BasePath(), nil
}

// Sharer returns the configured share command, or nil.
func Sharer(cfg *infra.Config, logger *infra.Logger) export.Sharer {
	s := export.NewCommandSharer(export.CommandSharerOptions{
		Command:  cfg.ShareCommand,
		Multiple: cfg.ShareMultiple,
		Logger:   logger,
	})
	if s == nil {
		return nil
	}
	return s
}

// Events subscribes a progress publisher to orch when AMQP_URL is set. The
// returned func unsubscribes and closes the connection.
func Events(cfg *infra.Config, orch *batch.Orchestrator, logger *infra.Logger) (func() error, error) {
	if cfg.AMQPURL == "" {
		return func() error { return nil }, nil
	}
	pub, err := events.Dial(cfg.AMQPURL, cfg.AMQPQueue, logger)
	if err != nil {
		return nil, fmt.Errorf("progress events: %w", err)
	}
	unsubscribe := orch.Subscribe(pub)
	return func() error {
		unsubscribe()
		return pub.Close()
	}, nil
}
