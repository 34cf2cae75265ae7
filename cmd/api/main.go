package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"listingprep/internal/bootstrap"
	"listingprep/internal/export"
	"listingprep/internal/host"
	"listingprep/internal/http/handlers"
	httpapi "listingprep/internal/http/httpapi"
	"listingprep/internal/infra"
	"listingprep/internal/transcode"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	gemini, err := bootstrap.Gemini(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure gemini client")
	}
	if !gemini.Configured() {
		logger.Warn().Str("model", gemini.Model()).Msg("api: GEMINI_API_KEY missing, /api/generate will fail")
	}
	describer, err := bootstrap.Describer(cfg, gemini, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure describer")
	}

	engine := transcode.NewEngine(transcode.Options{Logger: &logger})
	orch := bootstrap.Orchestrator(cfg, engine, describer, &logger)

	closeEvents, err := bootstrap.Events(cfg, orch, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to connect progress events")
	}
	defer func() {
		if err := closeEvents(); err != nil {
			logger.Warn().Err(err).Msg("api: close progress events")
		}
	}()

	saver, target, err := bootstrap.Saver(runCtx, cfg, "")
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure export target")
	}

	inbox := host.NewInbox(cfg.ThemeBG)
	inbox.Ready()
	inbox.Expand()

	adapter := export.NewAdapter(export.Options{
		Sharer:    bootstrap.Sharer(cfg, &logger),
		Saver:     saver,
		Host:      inbox,
		Prefix:    cfg.ExportPrefix,
		SaveDelay: cfg.SaveDelay,
		Logger:    &logger,
	})

	app := &handlers.App{
		Config:     cfg,
		Logger:     &logger,
		Generator:  gemini,
		Batch:      orch,
		Export:     adapter,
		Host:       inbox,
		RunContext: runCtx,
	}
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("export_target", target).
			Bool("auto_describe", cfg.AutoDescribe).
			Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancelRuns()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: server stopped")
}
