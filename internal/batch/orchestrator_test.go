package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"listingprep/internal/domain"
	"listingprep/internal/transcode"
)

type fakeTranscoder struct {
	mu     sync.Mutex
	calls  []string
	fail   map[string]bool
	before func(source string)
}

func (f *fakeTranscoder) Transcode(ctx context.Context, source []byte, opts domain.ProcessingOptions) (*transcode.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, string(source))
	before := f.before
	f.mu.Unlock()
	if before != nil {
		before(string(source))
	}
	if f.fail[string(source)] {
		return nil, &domain.TranscodeError{Stage: domain.StageDecode, Err: errors.New("corrupt")}
	}
	out := []byte("r-" + string(source))
	return &transcode.Result{
		Data:     out,
		MIMEType: string(opts.Encoding),
		Encoding: opts.Encoding,
		Width:    1600,
		Height:   1200,
		Size:     int64(len(out)),
	}, nil
}

type fakeDescriber struct {
	mu     sync.Mutex
	images []string
	errs   []error
}

func (f *fakeDescriber) Describe(ctx context.Context, image []byte) (domain.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, string(image))
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return domain.Descriptor{}, err
		}
	}
	return domain.Descriptor{Title: "t", AltText: "alt " + string(image)}, nil
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) Notify(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("item-%d", n)
	}
}

func newTestOrchestrator(tr Transcoder, d *fakeDescriber, retries int) *Orchestrator {
	opts := Options{DescribeRetries: retries, RetryBackoff: time.Millisecond, NewID: sequentialIDs()}
	if d == nil {
		return New(tr, nil, opts)
	}
	return New(tr, d, opts)
}

func jpegSources(names ...string) []Source {
	out := make([]Source, len(names))
	for i, name := range names {
		out[i] = Source{Name: name + ".jpg", MIMEType: "image/jpeg", Data: []byte(name)}
	}
	return out
}

func runOpts(auto bool) RunOptions {
	return RunOptions{Processing: domain.DefaultProcessingOptions(), AutoDescribe: auto}
}

func TestAddFiltersNonImages(t *testing.T) {
	o := newTestOrchestrator(&fakeTranscoder{}, nil, 0)
	png := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d}
	added, err := o.Add(
		Source{Name: "a.jpg", MIMEType: "image/jpeg", Data: []byte("a")},
		Source{Name: "notes.txt", MIMEType: "text/plain", Data: []byte("hello")},
		Source{Name: "b", Data: png},
	)
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if len(added) != 2 || added[1].MIMEType != "image/png" {
		t.Fatalf("unexpected intake: %+v", added)
	}
	for _, item := range added {
		if item.Status != domain.StatusPending {
			t.Fatalf("item %s status = %s", item.ID, item.Status)
		}
	}

	_, err = o.Add(Source{Name: "doc.pdf", MIMEType: "application/pdf", Data: []byte("%PDF")})
	if !errors.Is(err, ErrNoImages) {
		t.Fatalf("error = %v, want ErrNoImages", err)
	}
	if got := len(o.Snapshot().Items); got != 2 {
		t.Fatalf("collection size = %d", got)
	}
}

func TestRunBatchContinuesPastFailures(t *testing.T) {
	tr := &fakeTranscoder{fail: map[string]bool{"b": true}}
	o := newTestOrchestrator(tr, nil, 0)
	if _, err := o.Add(jpegSources("a", "b", "c")...); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	o.Subscribe(rec)

	summary, err := o.RunBatch(context.Background(), runOpts(false))
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}
	if summary.Done != 2 || summary.Failed != 1 || summary.Total != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got := fmt.Sprint(tr.calls); got != "[a b c]" {
		t.Fatalf("transcode order = %s", got)
	}

	snap := o.Snapshot()
	want := []domain.Status{domain.StatusDone, domain.StatusError, domain.StatusDone}
	for i, item := range snap.Items {
		if item.Status != want[i] {
			t.Fatalf("item %d status = %s, want %s", i, item.Status, want[i])
		}
	}
	if snap.Items[1].Error == "" {
		t.Fatal("failed item has no error message")
	}
	if snap.Items[0].Metrics.Width != 1600 || snap.Items[0].Metrics.ProcessedSize != 3 {
		t.Fatalf("metrics = %+v", snap.Items[0].Metrics)
	}

	// processing and terminal state for each of three items
	if rec.len() != 6 {
		t.Fatalf("published %d snapshots, want 6", rec.len())
	}
	first := rec.snaps[0]
	if first.Items[0].Status != domain.StatusProcessing || first.Items[1].Status != domain.StatusPending {
		t.Fatalf("first snapshot = %+v", first.Items)
	}
}

func TestRunBatchIsIdempotentOnCompletedItems(t *testing.T) {
	tr := &fakeTranscoder{}
	o := newTestOrchestrator(tr, nil, 0)
	_, _ = o.Add(jpegSources("a", "b")...)
	if _, err := o.RunBatch(context.Background(), runOpts(false)); err != nil {
		t.Fatal(err)
	}
	before := o.Snapshot()
	rec := &recorder{}
	o.Subscribe(rec)

	summary, err := o.RunBatch(context.Background(), runOpts(false))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Skipped != 2 || summary.Done != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if rec.len() != 0 {
		t.Fatalf("re-run published %d snapshots", rec.len())
	}
	if len(tr.calls) != 2 {
		t.Fatalf("transcode calls = %d", len(tr.calls))
	}
	after := o.Snapshot()
	for i := range before.Items {
		if before.Items[i].Status != after.Items[i].Status || before.Items[i].Metrics != after.Items[i].Metrics {
			t.Fatalf("item %d changed on re-run", i)
		}
	}
}

func TestRunBatchRetriesErroredItems(t *testing.T) {
	tr := &fakeTranscoder{fail: map[string]bool{"a": true}}
	o := newTestOrchestrator(tr, nil, 0)
	_, _ = o.Add(jpegSources("a")...)
	_, _ = o.RunBatch(context.Background(), runOpts(false))
	tr.fail = nil

	summary, _ := o.RunBatch(context.Background(), runOpts(false))
	item := o.Snapshot().Items[0]
	if summary.Done != 1 || item.Status != domain.StatusDone || item.Error != "" {
		t.Fatalf("summary %+v item %+v", summary, item)
	}
}

func TestAutoDescribeFailureIsSwallowed(t *testing.T) {
	d := &fakeDescriber{errs: []error{&domain.DescriptorError{Reason: "upstream timeout", StatusCode: 500}}}
	o := newTestOrchestrator(&fakeTranscoder{}, d, 0)
	_, _ = o.Add(jpegSources("a")...)

	summary, err := o.RunBatch(context.Background(), runOpts(true))
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}
	item := o.Snapshot().Items[0]
	if item.Status != domain.StatusDone || item.Descriptor != nil {
		t.Fatalf("item = %+v", item)
	}
	if summary.DescribeFailed != 1 || summary.Described != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if d.images[0] != "r-a" {
		t.Fatalf("described %q, want rendered artifact", d.images[0])
	}
}

func TestAutoDescribeRetriesAndSkipsDescribed(t *testing.T) {
	d := &fakeDescriber{errs: []error{errors.New("flaky"), nil}}
	tr := &fakeTranscoder{}
	o := newTestOrchestrator(tr, d, 1)
	_, _ = o.Add(jpegSources("a")...)

	summary, _ := o.RunBatch(context.Background(), runOpts(true))
	if summary.Described != 1 || len(d.images) != 2 {
		t.Fatalf("summary %+v, describe calls %d", summary, len(d.images))
	}
	if o.Snapshot().Items[0].Descriptor == nil {
		t.Fatal("descriptor not attached")
	}

	summary, _ = o.RunBatch(context.Background(), runOpts(true))
	if summary.Skipped != 1 || len(d.images) != 2 || len(tr.calls) != 1 {
		t.Fatalf("second run did work: %+v", summary)
	}
}

func TestAutoDescribeOnPreviouslyDoneItem(t *testing.T) {
	d := &fakeDescriber{}
	tr := &fakeTranscoder{}
	o := newTestOrchestrator(tr, d, 0)
	_, _ = o.Add(jpegSources("a")...)
	_, _ = o.RunBatch(context.Background(), runOpts(false))

	summary, _ := o.RunBatch(context.Background(), runOpts(true))
	if len(tr.calls) != 1 {
		t.Fatalf("done item was re-transcoded")
	}
	if summary.Described != 1 || o.Snapshot().Items[0].Descriptor == nil {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRemoveDuringRunDiscardsResult(t *testing.T) {
	tr := &fakeTranscoder{}
	o := newTestOrchestrator(tr, nil, 0)
	_, _ = o.Add(jpegSources("a", "b", "c")...)
	tr.before = func(source string) {
		switch source {
		case "a":
			_ = o.Remove("item-3")
		case "b":
			_ = o.Remove("item-2")
		}
	}

	summary, err := o.RunBatch(context.Background(), runOpts(false))
	if err != nil {
		t.Fatal(err)
	}
	snap := o.Snapshot()
	if len(snap.Items) != 1 || snap.Items[0].ID != "item-1" {
		t.Fatalf("remaining items = %+v", snap.Items)
	}
	if fmt.Sprint(tr.calls) != "[a b]" {
		t.Fatalf("transcode calls = %v", tr.calls)
	}
	if summary.Done != 1 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if err := o.Remove("item-2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second remove error = %v", err)
	}
}

func TestRunBatchRejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	tr := &fakeTranscoder{before: func(string) {
		close(started)
		<-release
	}}
	o := newTestOrchestrator(tr, nil, 0)
	_, _ = o.Add(jpegSources("a")...)

	errCh := make(chan error, 1)
	go func() {
		_, err := o.RunBatch(context.Background(), runOpts(false))
		errCh <- err
	}()
	<-started
	if !o.Running() {
		t.Fatal("Running() = false during run")
	}
	if _, err := o.RunBatch(context.Background(), runOpts(false)); !errors.Is(err, ErrBatchRunning) {
		t.Fatalf("error = %v, want ErrBatchRunning", err)
	}
	close(release)
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	if o.Running() {
		t.Fatal("Running() = true after run")
	}
}

func TestRunBatchValidatesOptions(t *testing.T) {
	o := newTestOrchestrator(&fakeTranscoder{}, nil, 0)
	opts := runOpts(false)
	opts.Processing.Quality = 0
	if _, err := o.RunBatch(context.Background(), opts); !errors.Is(err, domain.ErrInvalidOptions) {
		t.Fatalf("error = %v", err)
	}
}

func TestRunBatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := &fakeTranscoder{before: func(string) { cancel() }}
	o := newTestOrchestrator(tr, nil, 0)
	_, _ = o.Add(jpegSources("a", "b")...)

	summary, err := o.RunBatch(ctx, runOpts(false))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v", err)
	}
	if len(tr.calls) != 1 || summary.Done != 1 {
		t.Fatalf("calls %v summary %+v", tr.calls, summary)
	}
	if o.Snapshot().Items[1].Status != domain.StatusPending {
		t.Fatal("second item was touched after cancellation")
	}
}

func TestManualDescribe(t *testing.T) {
	d := &fakeDescriber{}
	o := newTestOrchestrator(&fakeTranscoder{}, d, 3)
	_, _ = o.Add(jpegSources("a")...)

	desc, err := o.Describe(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if d.images[0] != "a" || desc.AltText != "alt a" {
		t.Fatalf("described %q -> %+v", d.images[0], desc)
	}
	item, _ := o.Get("item-1")
	if item.Descriptor == nil || item.Status != domain.StatusPending {
		t.Fatalf("item = %+v", item)
	}

	d.errs = []error{&domain.DescriptorError{Reason: "upstream timeout"}}
	if _, err := o.Describe(context.Background(), "item-1"); err == nil || err.Error() != "upstream timeout" {
		t.Fatalf("error = %v", err)
	}
	if len(d.images) != 2 {
		t.Fatal("manual describe retried")
	}
	if _, err := o.Describe(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v", err)
	}
}

func TestSummaryRatio(t *testing.T) {
	if r := (Summary{OriginalBytes: 200, ProcessedBytes: 50}).Ratio(); r != 0.75 {
		t.Fatalf("ratio = %v", r)
	}
	if r := (Summary{}).Ratio(); r != 0 {
		t.Fatalf("ratio = %v", r)
	}
}

func TestStartRunsInBackground(t *testing.T) {
	release := make(chan struct{})
	tr := &fakeTranscoder{before: func(string) { <-release }}
	o := newTestOrchestrator(tr, nil, 0)
	_, _ = o.Add(jpegSources("a", "b")...)

	results := make(chan Summary, 1)
	err := o.Start(context.Background(), runOpts(false), func(s Summary, err error) {
		if err != nil {
			t.Errorf("run error: %v", err)
		}
		if o.Running() {
			t.Error("run lock held when done was called")
		}
		results <- s
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := o.Start(context.Background(), runOpts(false), nil); !errors.Is(err, ErrBatchRunning) {
		t.Fatalf("second Start error = %v", err)
	}
	close(release)

	select {
	case s := <-results:
		if s.Done != 2 {
			t.Fatalf("summary = %+v", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("background run did not finish")
	}

	bad := runOpts(false)
	bad.Processing.MaxWidth = 0
	if err := o.Start(context.Background(), bad, nil); !errors.Is(err, domain.ErrInvalidOptions) {
		t.Fatalf("error = %v", err)
	}
}
