// Package events forwards batch progress snapshots to a message queue so
// other processes can follow a long run.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"listingprep/internal/batch"
	"listingprep/internal/domain"
	"listingprep/internal/infra"
)

// DefaultQueue receives progress messages when none is configured.
const DefaultQueue = "listingprep.progress"

const publishTimeout = 5 * time.Second

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ItemProgress is the wire form of one item. Image bytes are never sent.
type ItemProgress struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	Error         string  `json:"error,omitempty"`
	OriginalSize  int64   `json:"original_size"`
	ProcessedSize int64   `json:"processed_size"`
	Width         int     `json:"width,omitempty"`
	Height        int     `json:"height,omitempty"`
	Saved         float64 `json:"saved_ratio,omitempty"`
	Described     bool    `json:"described"`
}

// Progress is one published message.
type Progress struct {
	At     time.Time      `json:"at"`
	Counts map[string]int `json:"counts"`
	Items  []ItemProgress `json:"items"`
}

// BuildProgress converts a snapshot to its wire form.
func BuildProgress(snap batch.Snapshot, at time.Time) Progress {
	p := Progress{
		At:     at.UTC(),
		Counts: make(map[string]int, 4),
		Items:  make([]ItemProgress, 0, len(snap.Items)),
	}
	for _, status := range []domain.Status{domain.StatusPending, domain.StatusProcessing, domain.StatusDone, domain.StatusError} {
		p.Counts[string(status)] = snap.Count(status)
	}
	for _, item := range snap.Items {
		ip := ItemProgress{
			ID:            item.ID,
			Name:          item.Name,
			Status:        string(item.Status),
			Error:         item.Error,
			OriginalSize:  item.Metrics.OriginalSize,
			ProcessedSize: item.Metrics.ProcessedSize,
			Width:         item.Metrics.Width,
			Height:        item.Metrics.Height,
			Described:     item.HasDescriptor(),
		}
		if ratio, ok := item.CompressionRatio(); ok {
			ip.Saved = ratio
		}
		p.Items = append(p.Items, ip)
	}
	return p
}

// Publisher is a batch.Observer that publishes every snapshot to a queue.
// Publish failures are logged and never reach the orchestrator.
type Publisher struct {
	ch     Channel
	queue  string
	logger *infra.Logger
	now    func() time.Time
	close  func() error
}

// NewPublisher publishes through an already open channel.
func NewPublisher(ch Channel, queue string, logger *infra.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Publisher{ch: ch, queue: queue, logger: logger, now: time.Now}
}

// Dial connects to url, declares a durable queue and returns a Publisher
// owning the connection.
func Dial(url, queue string, logger *infra.Logger) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: declare queue %s: %w", queue, err)
	}
	p := NewPublisher(ch, queue, logger)
	p.close = func() error {
		return errors.Join(ch.Close(), conn.Close())
	}
	return p, nil
}

// Notify implements batch.Observer.
func (p *Publisher) Notify(snap batch.Snapshot) {
	if err := p.Publish(context.Background(), snap); err != nil {
		p.logger.Warn().Err(err).Str("queue", p.queue).Msg("events: publish progress failed")
	}
}

// Publish sends one snapshot to the default exchange routed by queue name.
func (p *Publisher) Publish(ctx context.Context, snap batch.Snapshot) error {
	body, err := json.Marshal(BuildProgress(snap, p.now()))
	if err != nil {
		return fmt.Errorf("events: encode progress: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   p.now(),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	return nil
}

// Close releases the connection opened by Dial.
func (p *Publisher) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

var _ batch.Observer = (*Publisher)(nil)
