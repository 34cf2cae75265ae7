// Package batch owns the in-session collection of work items and drives the
// sequential transcode and describe pipeline over it.
package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"listingprep/internal/descriptor"
	"listingprep/internal/domain"
	"listingprep/internal/infra"
	"listingprep/internal/transcode"
)

var (
	ErrNoImages     = errors.New("no image files in selection")
	ErrBatchRunning = errors.New("batch already running")
)

const defaultRetryBackoff = 2 * time.Second

// Transcoder renders one source image. *transcode.Engine satisfies it.
type Transcoder interface {
	Transcode(ctx context.Context, source []byte, opts domain.ProcessingOptions) (*transcode.Result, error)
}

// Source is one file handed to intake.
type Source struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Options configures an Orchestrator.
type Options struct {
	Logger          *infra.Logger
	DescribeRetries int
	RetryBackoff    time.Duration
	NewID           func() string
}

// RunOptions parameterises one RunBatch call.
type RunOptions struct {
	Processing   domain.ProcessingOptions
	AutoDescribe bool
}

// Orchestrator holds the ordered collection. All methods are safe for
// concurrent use; runs themselves are serialised.
type Orchestrator struct {
	engine    Transcoder
	describer descriptor.Describer
	logger    *infra.Logger
	retries   int
	backoff   time.Duration
	newID     func() string

	mu        sync.RWMutex
	items     []*domain.WorkItem
	index     map[string]*domain.WorkItem
	observers map[int]Observer
	nextObs   int

	running sync.Mutex
}

// New wires an orchestrator. describer may be nil, in which case describe
// steps are skipped and manual Describe fails.
func New(engine Transcoder, describer descriptor.Describer, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	retries := opts.DescribeRetries
	if retries < 0 {
		retries = 0
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	return &Orchestrator{
		engine:    engine,
		describer: describer,
		logger:    logger,
		retries:   retries,
		backoff:   backoff,
		newID:     newID,
		index:     make(map[string]*domain.WorkItem),
		observers: make(map[int]Observer),
	}
}

// Add appends the image files among files, in order, as pending items.
func (o *Orchestrator) Add(files ...Source) ([]domain.WorkItem, error) {
	var accepted []*domain.WorkItem
	for _, f := range files {
		mime, ok := imageMIMEType(f)
		if !ok {
			o.logger.Debug().Str("name", f.Name).Str("mime", f.MIMEType).Msg("batch: skipped non-image file")
			continue
		}
		accepted = append(accepted, &domain.WorkItem{
			ID:       o.newID(),
			Name:     f.Name,
			MIMEType: mime,
			Source:   f.Data,
			Status:   domain.StatusPending,
			Metrics:  domain.Metrics{OriginalSize: int64(len(f.Data))},
		})
	}
	if len(accepted) == 0 {
		return nil, ErrNoImages
	}

	o.mu.Lock()
	out := make([]domain.WorkItem, 0, len(accepted))
	for _, item := range accepted {
		o.items = append(o.items, item)
		o.index[item.ID] = item
		out = append(out, item.Clone())
	}
	o.mu.Unlock()

	o.logger.Info().Int("count", len(out)).Msg("batch: items added")
	o.publish()
	return out, nil
}

// Remove drops an item. A run that has not reached it yet skips it; a result
// for an item removed mid-flight is discarded.
func (o *Orchestrator) Remove(id string) error {
	o.mu.Lock()
	if _, ok := o.index[id]; !ok {
		o.mu.Unlock()
		return fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	delete(o.index, id)
	for i, item := range o.items {
		if item.ID == id {
			o.items = append(o.items[:i], o.items[i+1:]...)
			break
		}
	}
	o.mu.Unlock()

	o.publish()
	return nil
}

// Get returns a copy of one item.
func (o *Orchestrator) Get(id string) (domain.WorkItem, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	item, ok := o.index[id]
	if !ok {
		return domain.WorkItem{}, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	return item.Clone(), nil
}

// Snapshot returns a copy of the collection in insertion order.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	items := make([]domain.WorkItem, len(o.items))
	for i, item := range o.items {
		items[i] = item.Clone()
	}
	return Snapshot{Items: items}
}

// Running reports whether a batch is in progress.
func (o *Orchestrator) Running() bool {
	if o.running.TryLock() {
		o.running.Unlock()
		return false
	}
	return true
}

// RunBatch processes every item present at call time, strictly in order.
// Per-item failures are recorded on the item and never stop the run.
func (o *Orchestrator) RunBatch(ctx context.Context, opts RunOptions) (Summary, error) {
	if err := opts.Processing.Validate(); err != nil {
		return Summary{}, err
	}
	if !o.running.TryLock() {
		return Summary{}, ErrBatchRunning
	}
	defer o.running.Unlock()
	return o.run(ctx, opts)
}

// Start runs a batch on a new goroutine. Option errors and ErrBatchRunning
// are returned synchronously; done, when set, receives the outcome after
// the run lock is released.
func (o *Orchestrator) Start(ctx context.Context, opts RunOptions, done func(Summary, error)) error {
	if err := opts.Processing.Validate(); err != nil {
		return err
	}
	if !o.running.TryLock() {
		return ErrBatchRunning
	}
	go func() {
		summary, err := o.run(ctx, opts)
		o.running.Unlock()
		if done != nil {
			done(summary, err)
		}
	}()
	return nil
}

func (o *Orchestrator) run(ctx context.Context, opts RunOptions) (Summary, error) {
	o.mu.RLock()
	ids := make([]string, len(o.items))
	for i, item := range o.items {
		ids[i] = item.ID
	}
	o.mu.RUnlock()

	log := o.logger.With().Int("items", len(ids)).Bool("auto_describe", opts.AutoDescribe).Logger()
	log.Info().Msg("batch: run started")

	summary := Summary{Total: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("batch: run cancelled")
			o.tally(&summary)
			return summary, err
		}
		o.step(ctx, id, opts, &summary)
	}
	o.tally(&summary)
	log.Info().
		Int("done", summary.Done).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("described", summary.Described).
		Msg("batch: run finished")
	return summary, nil
}

func (o *Orchestrator) step(ctx context.Context, id string, opts RunOptions, summary *Summary) {
	item, ok := o.lookup(id)
	if !ok {
		summary.Skipped++
		return
	}

	if item.Status == domain.StatusDone {
		if !opts.AutoDescribe || item.HasDescriptor() {
			summary.Skipped++
			return
		}
		o.autoDescribe(ctx, item, summary)
		return
	}

	if !o.mutate(id, func(w *domain.WorkItem) {
		w.Status = domain.StatusProcessing
		w.Error = ""
	}) {
		summary.Skipped++
		return
	}
	o.publish()

	result, err := o.engine.Transcode(ctx, item.Source, opts.Processing)
	if err != nil {
		o.logger.Warn().Err(err).Str("item_id", id).Str("name", item.Name).Msg("batch: transcode failed")
		if o.mutate(id, func(w *domain.WorkItem) {
			w.Status = domain.StatusError
			w.Error = err.Error()
		}) {
			summary.Failed++
		}
		o.publish()
		return
	}

	var done domain.WorkItem
	if !o.mutate(id, func(w *domain.WorkItem) {
		w.Status = domain.StatusDone
		w.Rendered = &domain.Rendered{Data: result.Data, MIMEType: result.MIMEType, Encoding: result.Encoding}
		w.Metrics = domain.Metrics{
			OriginalSize:  int64(len(w.Source)),
			ProcessedSize: result.Size,
			Width:         result.Width,
			Height:        result.Height,
		}
		done = w.Clone()
	}) {
		o.logger.Debug().Str("item_id", id).Msg("batch: discarded result for removed item")
		return
	}
	summary.Done++
	o.publish()

	if opts.AutoDescribe && !done.HasDescriptor() {
		o.autoDescribe(ctx, done, summary)
	}
}

func (o *Orchestrator) autoDescribe(ctx context.Context, item domain.WorkItem, summary *Summary) {
	if o.describer == nil {
		return
	}
	desc, err := o.describeWithRetry(ctx, item.BestImage())
	if err != nil {
		summary.DescribeFailed++
		o.logger.Warn().Err(err).Str("item_id", item.ID).Msg("batch: describe failed")
		return
	}
	if o.mutate(item.ID, func(w *domain.WorkItem) { w.Descriptor = &desc }) {
		summary.Described++
		o.publish()
	}
}

func (o *Orchestrator) describeWithRetry(ctx context.Context, image []byte) (domain.Descriptor, error) {
	var lastErr error
	for attempt := 0; attempt <= o.retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(o.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return domain.Descriptor{}, ctx.Err()
			case <-timer.C:
			}
		}
		desc, err := o.describer.Describe(ctx, image)
		if err == nil {
			return desc, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return domain.Descriptor{}, lastErr
}

// Describe requests copy for one item on demand, using the rendered artifact
// when present and the original upload otherwise. Failures are returned.
func (o *Orchestrator) Describe(ctx context.Context, id string) (domain.Descriptor, error) {
	item, ok := o.lookup(id)
	if !ok {
		return domain.Descriptor{}, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	if o.describer == nil {
		return domain.Descriptor{}, &domain.DescriptorError{Reason: "describer not configured"}
	}
	desc, err := o.describer.Describe(ctx, item.BestImage())
	if err != nil {
		return domain.Descriptor{}, err
	}
	if !o.mutate(id, func(w *domain.WorkItem) { w.Descriptor = &desc }) {
		return domain.Descriptor{}, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	o.publish()
	return desc, nil
}

// Subscribe registers obs for snapshots published after every mutation.
func (o *Orchestrator) Subscribe(obs Observer) func() {
	o.mu.Lock()
	key := o.nextObs
	o.nextObs++
	o.observers[key] = obs
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.observers, key)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) lookup(id string) (domain.WorkItem, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	item, ok := o.index[id]
	if !ok {
		return domain.WorkItem{}, false
	}
	return item.Clone(), true
}

// mutate applies fn under the lock. It reports false when the item is gone.
func (o *Orchestrator) mutate(id string, fn func(*domain.WorkItem)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.index[id]
	if !ok {
		return false
	}
	fn(item)
	return true
}

func (o *Orchestrator) publish() {
	o.mu.RLock()
	snap := o.snapshotLocked()
	observers := make([]Observer, 0, len(o.observers))
	for _, obs := range o.observers {
		observers = append(observers, obs)
	}
	o.mu.RUnlock()
	for _, obs := range observers {
		obs.Notify(snap)
	}
}

func (o *Orchestrator) tally(s *Summary) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s.OriginalBytes, s.ProcessedBytes = 0, 0
	for _, item := range o.items {
		if item.Status != domain.StatusDone {
			continue
		}
		s.OriginalBytes += item.Metrics.OriginalSize
		s.ProcessedBytes += item.Metrics.ProcessedSize
	}
}

func imageMIMEType(f Source) (string, bool) {
	declared := strings.ToLower(strings.TrimSpace(f.MIMEType))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if strings.HasPrefix(declared, "image/") {
		return declared, true
	}
	if declared != "" && declared != "application/octet-stream" {
		return "", false
	}
	if len(f.Data) == 0 {
		return "", false
	}
	sniffed := http.DetectContentType(f.Data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed, true
	}
	return "", false
}
