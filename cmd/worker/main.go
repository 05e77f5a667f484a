package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"happysd/internal/dispatch"
	"happysd/internal/domain"
	"happysd/internal/infra"
	"happysd/internal/runner"
	"happysd/internal/store"
	"happysd/internal/translate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(store.Options{
		DBPath:    cfg.DBPath,
		LockPath:  cfg.LockPath,
		ImageDir:  cfg.ImageDir,
		InlineMax: cfg.InlineImageMax,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to open database")
	}
	defer db.Close()

	httpClient := &http.Client{Timeout: 10 * time.Minute}

	diffusion := runner.NewDiffusion(runner.DiffusionOptions{
		BaseURL:    cfg.DiffusionURL,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	restore := runner.NewRestore(cfg.RestoreTool, cfg.RestoreToolArgs, logger)
	if cfg.DiffusionURL == "" {
		logger.Warn().Msg("worker: no diffusion sidecar configured, using synthetic image generation")
	}

	var translator translate.Translator = translate.Nop{}
	if cfg.TranslatorURL != "" {
		translator = translate.NewHTTP(cfg.TranslatorURL, nil, logger)
	}

	dispatcher := dispatch.New(dispatch.Options{
		Jobs: db,
		Runners: runner.Registry{
			domain.JobTypeText2Img:    diffusion,
			domain.JobTypeImg2Img:     diffusion,
			domain.JobTypeInpainting:  diffusion,
			domain.JobTypeRestoration: restore,
		},
		Translator:   translator,
		PollInterval: cfg.PollInterval,
		RunTimeout:   cfg.RunTimeout,
		Logger:       logger,
	})

	if err := dispatcher.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: dispatcher failed")
	}
	logger.Info().Msg("worker stopped")
}
