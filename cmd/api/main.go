package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ziadismael/DevPath/interviewer/internal/config"
	"github.com/ziadismael/DevPath/interviewer/internal/handler"
	"github.com/ziadismael/DevPath/interviewer/internal/logging"
	"github.com/ziadismael/DevPath/interviewer/internal/metrics"
	"github.com/ziadismael/DevPath/interviewer/internal/model/persona"
	"github.com/ziadismael/DevPath/interviewer/internal/service/ai"
	"github.com/ziadismael/DevPath/interviewer/internal/service/analysis"
	"github.com/ziadismael/DevPath/interviewer/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Warn("no .env file loaded, using process environment", zap.Error(envErr))
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("configuration error", zap.Error(err))
	}

	recorder := metrics.NewRecorder()

	registry := persona.NewDefaultRegistry()
	if cfg.Session.PersonaFile != "" {
		watcher, err := persona.NewWatcher(cfg.Session.PersonaFile, registry, logger.Named("persona"))
		if err != nil {
			logger.Fatal("failed to load persona file", zap.String("path", cfg.Session.PersonaFile), zap.Error(err))
		}
		go watcher.Run(ctx)
		logger.Info("persona overrides loaded", zap.String("path", cfg.Session.PersonaFile))
	}

	chatModel, err := cfg.LLM.NewChatModel(ctx)
	if err != nil {
		logger.Fatal("failed to create chat model", zap.Error(err))
	}
	responder := ai.NewService(chatModel, cfg.LLM.MaxToolRounds, logger.Named("ai"))

	backend, err := newAnalysisBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to create analysis backend", zap.Error(err))
	}
	analyzer := analysis.NewService(backend, analysis.Options{
		Timeout: cfg.Analysis.Timeout,
		Workers: cfg.Analysis.Workers,
	}, logger.Named("analysis"), recorder)
	logger.Info("analysis backend ready",
		zap.String("provider", cfg.Analysis.Provider),
		zap.Duration("timeout", cfg.Analysis.Timeout),
		zap.Int("workers", cfg.Analysis.Workers))

	router := handler.NewRouter(handler.Dependencies{
		Registry:    registry,
		Sessions:    chat.NewService(),
		Analyzer:    analyzer,
		Responder:   responder,
		Metrics:     recorder,
		Logger:      logger,
		Greeting:    cfg.Session.Greeting,
		ReadTimeout: cfg.Session.ReadTimeout,
	})

	startServer(ctx, logger, cfg.Server, router)
}

func newAnalysisBackend(ctx context.Context, cfg *config.Config) (analysis.Backend, error) {
	switch cfg.Analysis.Provider {
	case config.ProviderArk:
		m, err := cfg.Analysis.NewArkAnalysisModel(ctx, cfg.LLM)
		if err != nil {
			return nil, err
		}
		return analysis.NewChatModelBackend(m), nil
	default:
		return analysis.NewHuggingFaceBackend(cfg.Analysis.Token, cfg.Analysis.BaseURL, cfg.Analysis.Model, cfg.Analysis.MaxTokens), nil
	}
}

func startServer(ctx context.Context, logger *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("interviewer listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
