package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"listingprep/internal/batch"
	"listingprep/internal/domain"
	"listingprep/internal/infra"
)

type fakeChannel struct {
	exchange, key string
	msgs          []amqp.Publishing
	err           error
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.exchange, f.key = exchange, key
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func sampleSnapshot() batch.Snapshot {
	return batch.Snapshot{Items: []domain.WorkItem{
		{
			ID:         "a",
			Name:       "a.jpg",
			Source:     []byte("raw"),
			Status:     domain.StatusDone,
			Rendered:   &domain.Rendered{Data: []byte("x")},
			Metrics:    domain.Metrics{OriginalSize: 400, ProcessedSize: 100, Width: 1600, Height: 1200},
			Descriptor: &domain.Descriptor{AltText: "tent"},
		},
		{ID: "b", Name: "b.jpg", Status: domain.StatusError, Error: "transcode decode: bad"},
		{ID: "c", Name: "c.jpg", Status: domain.StatusPending},
	}}
}

func TestBuildProgress(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := BuildProgress(sampleSnapshot(), at)
	if p.Counts["done"] != 1 || p.Counts["error"] != 1 || p.Counts["pending"] != 1 || p.Counts["processing"] != 0 {
		t.Fatalf("counts = %v", p.Counts)
	}
	if len(p.Items) != 3 || !p.Items[0].Described || p.Items[0].Saved != 0.75 {
		t.Fatalf("items = %+v", p.Items)
	}
	if p.Items[1].Error == "" || p.Items[1].Saved != 0 {
		t.Fatalf("error item = %+v", p.Items[1])
	}
}

func TestPublisherNotify(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, "", nil)
	p.Notify(sampleSnapshot())

	if ch.exchange != "" || ch.key != DefaultQueue || len(ch.msgs) != 1 {
		t.Fatalf("published to %q/%q, %d messages", ch.exchange, ch.key, len(ch.msgs))
	}
	msg := ch.msgs[0]
	if msg.ContentType != "application/json" {
		t.Fatalf("content type = %q", msg.ContentType)
	}
	if bytes.Contains(msg.Body, []byte("raw")) {
		t.Fatal("image bytes leaked into progress message")
	}
	var decoded Progress
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(decoded.Items) != 3 || decoded.Items[2].Status != "pending" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestPublisherNotifySwallowsErrors(t *testing.T) {
	var logs bytes.Buffer
	logger := infra.NewLoggerTo(&logs, "production")
	p := NewPublisher(&fakeChannel{err: errors.New("channel closed")}, "q", &logger)
	p.Notify(sampleSnapshot())
	if !bytes.Contains(logs.Bytes(), []byte("channel closed")) {
		t.Fatalf("publish failure not logged: %s", logs.String())
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}
