// Command listingprep batch-converts photos for marketplace listings: it
// crops and downscales them, optionally asks the vision model for listing
// copy, and exports the results to a folder, a bucket, a share command or a
// zip archive.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"math"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"listingprep/internal/batch"
	"listingprep/internal/bootstrap"
	"listingprep/internal/domain"
	"listingprep/internal/export"
	"listingprep/internal/host"
	"listingprep/internal/infra"
	"listingprep/internal/transcode"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "listingprep: %v\n", err)
		}
		os.Exit(1)
	}
}

type cliFlags struct {
	quality  float64
	maxWidth int
	format   string
	crop     bool
	describe bool
	out      string
	zipPath  string
	locale   string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}

	fl := cliFlags{}
	fset := flag.NewFlagSet("listingprep", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.Float64Var(&fl.quality, "quality", cfg.Quality, "encoder quality, snapped to 0.4..1.0")
	fset.IntVar(&fl.maxWidth, "max-width", cfg.MaxWidth, "maximum output width in pixels")
	fset.StringVar(&fl.format, "format", cfg.OutputFormat, "output format (webp, jpeg, png)")
	fset.BoolVar(&fl.crop, "crop", cfg.CropToFixedAspect, "center-crop to 4:3 before scaling")
	fset.BoolVar(&fl.describe, "describe", cfg.AutoDescribe, "generate listing copy for each processed image")
	fset.StringVar(&fl.out, "out", cfg.ExportDir, "directory for exported files")
	fset.StringVar(&fl.zipPath, "zip", "", "write one zip archive instead of separate files")
	fset.StringVar(&fl.locale, "locale", cfg.DefaultLocale, "language for alerts (en, ru)")
	fset.Usage = func() {
		fmt.Fprintln(fset.Output(), "usage: listingprep [flags] <file-or-folder>...")
		fset.PrintDefaults()
	}
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() == 0 {
		fset.Usage()
		return errors.New("no input paths")
	}

	enc, err := domain.ParseEncoding(fl.format)
	if err != nil {
		return err
	}
	opts := batch.RunOptions{
		Processing: domain.ProcessingOptions{
			Quality:           domain.ClampQuality(fl.quality),
			MaxWidth:          fl.maxWidth,
			Encoding:          enc,
			CropToFixedAspect: fl.crop,
		},
		AutoDescribe: fl.describe,
	}

	logger := infra.NewLoggerTo(stderr, cfg.AppEnv)
	ctx = host.WithLocale(ctx, fl.locale)
	console := host.NewConsole(stdout, cfg.ThemeBG)

	gemini, err := bootstrap.Gemini(cfg, &logger)
	if err != nil {
		return err
	}
	describer, err := bootstrap.Describer(cfg, gemini, &logger)
	if err != nil {
		return err
	}
	if opts.AutoDescribe && describer == nil {
		logger.Warn().Msg("cli: -describe set but neither GEMINI_API_KEY nor DESCRIPTOR_URL is configured")
	}

	orch := bootstrap.Orchestrator(cfg, transcode.NewEngine(transcode.Options{Logger: &logger}), describer, &logger)
	closeEvents, err := bootstrap.Events(cfg, orch, &logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeEvents()
	}()
	orch.Subscribe(batch.ObserverFunc(func(s batch.Snapshot) {
		finished := s.Count(domain.StatusDone) + s.Count(domain.StatusError)
		logger.Debug().Int("finished", finished).Int("total", len(s.Items)).Msg("cli: progress")
	}))

	sources, err := collect(fset.Args())
	if err != nil {
		return err
	}
	if _, err := orch.Add(sources...); err != nil {
		if errors.Is(err, batch.ErrNoImages) {
			console.ShowAlert(host.Localize(ctx, host.MsgNoImages))
		}
		return err
	}

	summary, err := orch.RunBatch(ctx, opts)
	if err != nil {
		return err
	}
	for _, item := range orch.Snapshot().Items {
		if item.Status == domain.StatusError {
			fmt.Fprintf(stdout, "failed: %s: %s\n", item.Name, item.Error)
		}
	}

	done := orch.Snapshot().Done()
	if len(done) == 0 {
		printSummary(stdout, summary)
		return errors.New("no image could be processed")
	}

	if fl.zipPath != "" {
		data, err := export.Archive(done, cfg.ExportPrefix)
		if err != nil {
			return err
		}
		if err := os.WriteFile(fl.zipPath, data, 0o644); err != nil {
			return fmt.Errorf("write archive: %w", err)
		}
		fmt.Fprintf(stdout, "archive: %s (%s)\n", fl.zipPath, humanize.Bytes(uint64(len(data))))
	} else {
		saver, target, err := bootstrap.Saver(ctx, cfg, fl.out)
		if err != nil {
			return err
		}
		adapter := export.NewAdapter(export.Options{
			Sharer:    bootstrap.Sharer(cfg, &logger),
			Saver:     saver,
			Host:      console,
			Prefix:    cfg.ExportPrefix,
			SaveDelay: cfg.SaveDelay,
			Logger:    &logger,
		})
		delivery, err := adapter.DeliverBatch(ctx, done)
		for _, name := range delivery.Files {
			fmt.Fprintf(stdout, "%s: %s\n", delivery.Outcome, name)
		}
		if err != nil {
			return err
		}
		if delivery.Outcome == export.OutcomeSaved {
			fmt.Fprintf(stdout, "saved to %s\n", target)
		}
	}

	printSummary(stdout, summary)
	return nil
}

// collect reads files and the regular files directly or transitively under
// folders, in path order.
func collect(paths []string) ([]batch.Source, error) {
	var sources []batch.Source
	add := func(p string) error {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		sources = append(sources, batch.Source{
			Name:     filepath.Base(p),
			MIMEType: mime.TypeByExtension(strings.ToLower(filepath.Ext(p))),
			Data:     data,
		})
		return nil
	}
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if err := add(root); err != nil {
				return nil, err
			}
			continue
		}
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
				return nil
			}
			return add(p)
		})
		if err != nil {
			return nil, err
		}
	}
	return sources, nil
}

func printSummary(w io.Writer, s batch.Summary) {
	fmt.Fprintf(w, "processed %d/%d images", s.Done, s.Total)
	if s.Failed > 0 {
		fmt.Fprintf(w, ", %d failed", s.Failed)
	}
	if s.Described > 0 || s.DescribeFailed > 0 {
		fmt.Fprintf(w, ", %d described", s.Described)
		if s.DescribeFailed > 0 {
			fmt.Fprintf(w, " (%d without copy)", s.DescribeFailed)
		}
	}
	if s.OriginalBytes > 0 {
		fmt.Fprintf(w, ", %s -> %s (saved %d%%)",
			humanize.Bytes(uint64(s.OriginalBytes)),
			humanize.Bytes(uint64(s.ProcessedBytes)),
			int(math.Round(s.Ratio()*100)))
	}
	fmt.Fprintln(w)
}
