package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"listingprep/internal/domain"
	"listingprep/internal/host"
	"listingprep/internal/infra"
	"listingprep/pkg/zip"
)

// DefaultSaveDelay spaces sequential saves so hosts do not throttle them.
const DefaultSaveDelay = 300 * time.Millisecond

var (
	ErrNothingToExport = errors.New("no finished items to export")
	ErrNoSaveTarget    = errors.New("no save target configured")
)

// Saver persists one artifact and returns where it landed.
// *storage.FileStore and *storage.S3Store satisfy it.
type Saver interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Outcome is how a delivery ended.
type Outcome string

const (
	OutcomeShared    Outcome = "shared"
	OutcomeSaved     Outcome = "saved"
	OutcomeCancelled Outcome = "cancelled"
)

// Delivery reports a finished Deliver or DeliverBatch call.
type Delivery struct {
	Outcome Outcome  `json:"outcome"`
	Files   []string `json:"files"`
}

// Options configures an Adapter.
type Options struct {
	Sharer    Sharer
	Saver     Saver
	Host      host.Host
	Prefix    string
	SaveDelay time.Duration
	Logger    *infra.Logger
}

// Adapter delivers artifacts through the share capability when there is
// one and falls back to direct saves.
type Adapter struct {
	sharer    Sharer
	saver     Saver
	host      host.Host
	prefix    string
	saveDelay time.Duration
	logger    *infra.Logger
}

func NewAdapter(opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	delay := opts.SaveDelay
	if delay < 0 {
		delay = 0
	}
	return &Adapter{
		sharer:    opts.Sharer,
		saver:     opts.Saver,
		host:      host.Resolve(opts.Host),
		prefix:    prefix,
		saveDelay: delay,
		logger:    logger,
	}
}

// Prefix returns the fallback filename prefix.
func (a *Adapter) Prefix() string { return a.prefix }

// Deliver exports one done item. A share abort is silent; a share target
// that rejects the file triggers one alert and a save instead.
func (a *Adapter) Deliver(ctx context.Context, item domain.WorkItem) (Delivery, error) {
	art, err := ArtifactFor(item, a.prefix)
	if err != nil {
		return Delivery{}, err
	}
	arts := []Artifact{art}

	if a.sharer != nil {
		if a.sharer.CanShare(arts) {
			err := a.sharer.Share(ctx, arts)
			var unsupported *ShareUnsupportedError
			switch {
			case err == nil:
				a.host.HapticFeedback(host.HapticSuccess)
				return Delivery{Outcome: OutcomeShared, Files: []string{art.Name}}, nil
			case errors.Is(err, ErrShareAbort):
				a.logger.Debug().Str("item_id", item.ID).Msg("export: share cancelled")
				return Delivery{Outcome: OutcomeCancelled}, nil
			case errors.As(err, &unsupported):
				a.host.ShowAlert(host.Localize(ctx, host.MsgShareUnsupported))
			default:
				a.logger.Error().Err(err).Str("item_id", item.ID).Msg("export: share failed")
				a.host.ShowAlert(host.Localize(ctx, host.MsgSaveFailed, err.Error()))
				a.host.HapticFeedback(host.HapticError)
				return Delivery{}, fmt.Errorf("share %s: %w", art.Name, err)
			}
		} else {
			a.host.ShowAlert(host.Localize(ctx, host.MsgShareUnsupported))
		}
	}

	key, err := a.save(ctx, art)
	if err != nil {
		a.host.ShowAlert(host.Localize(ctx, host.MsgSaveFailed, err.Error()))
		a.host.HapticFeedback(host.HapticError)
		return Delivery{}, err
	}
	a.host.HapticFeedback(host.HapticSuccess)
	return Delivery{Outcome: OutcomeSaved, Files: []string{key}}, nil
}

// DeliverBatch exports every done item in items. One combined share is
// tried first; if the target cannot take them all, or the share fails or is
// dismissed, the files are saved one by one with SaveDelay between them.
func (a *Adapter) DeliverBatch(ctx context.Context, items []domain.WorkItem) (Delivery, error) {
	arts := ArtifactsFor(items, a.prefix)
	if len(arts) == 0 {
		return Delivery{}, ErrNothingToExport
	}
	log := a.logger.With().Int("files", len(arts)).Logger()

	if a.sharer != nil && a.sharer.CanShare(arts) {
		err := a.sharer.Share(ctx, arts)
		if err == nil {
			a.host.HapticFeedback(host.HapticSuccess)
			names := make([]string, len(arts))
			for i, art := range arts {
				names[i] = art.Name
			}
			return Delivery{Outcome: OutcomeShared, Files: names}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Delivery{}, ctxErr
		}
		log.Info().Err(err).Msg("export: combined share did not complete, saving individually")
	} else if a.sharer != nil {
		log.Info().Msg("export: share target rejects multiple files, saving individually")
	}

	var (
		saved []string
		errs  []error
	)
	for i, art := range arts {
		if i > 0 && a.saveDelay > 0 {
			if err := sleep(ctx, a.saveDelay); err != nil {
				return Delivery{Outcome: OutcomeSaved, Files: saved}, err
			}
		}
		key, err := a.save(ctx, art)
		if err != nil {
			log.Error().Err(err).Str("file", art.Name).Msg("export: save failed")
			errs = append(errs, err)
			continue
		}
		saved = append(saved, key)
	}
	if len(errs) > 0 {
		joined := errors.Join(errs...)
		a.host.ShowAlert(host.Localize(ctx, host.MsgSaveFailed, errs[0].Error()))
		a.host.HapticFeedback(host.HapticError)
		return Delivery{Outcome: OutcomeSaved, Files: saved}, joined
	}
	a.host.HapticFeedback(host.HapticSuccess)
	return Delivery{Outcome: OutcomeSaved, Files: saved}, nil
}

// Archive zips the artifacts of every done item.
func (a *Adapter) Archive(items []domain.WorkItem) ([]byte, error) {
	return Archive(items, a.prefix)
}

// Archive zips the artifacts of every done item using prefix for fallback
// names.
func Archive(items []domain.WorkItem, prefix string) ([]byte, error) {
	arts := ArtifactsFor(items, prefix)
	if len(arts) == 0 {
		return nil, ErrNothingToExport
	}
	entries := make([]zip.Entry, len(arts))
	for i, art := range arts {
		entries[i] = zip.Entry{Filename: art.Name, Data: art.Data}
	}
	return zip.Archive(entries)
}

func (a *Adapter) save(ctx context.Context, art Artifact) (string, error) {
	if a.saver == nil {
		return "", ErrNoSaveTarget
	}
	key, err := a.saver.Write(ctx, art.Name, art.Data)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", art.Name, err)
	}
	return key, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
