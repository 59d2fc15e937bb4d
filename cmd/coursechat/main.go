package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Haoxincode/coursechat/internal/config"
	dbRedis "github.com/Haoxincode/coursechat/internal/db/redis"
	logpkg "github.com/Haoxincode/coursechat/internal/logger"
	"github.com/Haoxincode/coursechat/internal/metrics"
	budgetrepo "github.com/Haoxincode/coursechat/internal/repository/budget"
	documentrepo "github.com/Haoxincode/coursechat/internal/repository/document"
	historyrepo "github.com/Haoxincode/coursechat/internal/repository/history"
	"github.com/Haoxincode/coursechat/internal/stream"
	chiTransport "github.com/Haoxincode/coursechat/internal/transport/chi"
	openaiLLM "github.com/Haoxincode/coursechat/internal/transport/openai"
	budgetuc "github.com/Haoxincode/coursechat/internal/usecase/budget"
	chatuc "github.com/Haoxincode/coursechat/internal/usecase/chat"
	documentuc "github.com/Haoxincode/coursechat/internal/usecase/document"
	healthuc "github.com/Haoxincode/coursechat/internal/usecase/health"
	usageuc "github.com/Haoxincode/coursechat/internal/usecase/usage"
	"github.com/Haoxincode/coursechat/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting coursechat API server",
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register LLM and stream metrics explicitly (no init())
	metrics.RegisterLLMMetrics()

	prefix := cfg.Storage.KeyPrefix

	// Single budget tracker shared by the streamer and the usage service.
	// Counters are kept even without limits so /usage can report them.
	action := budgetuc.ActionWarn
	if cfg.LLM.Budget.Action == string(budgetuc.ActionReject) {
		action = budgetuc.ActionReject
	}
	budget := budgetuc.NewTracker(
		cfg.LLM.Provider, prefix,
		cfg.LLM.Budget.DailyTokenLimit, cfg.LLM.Budget.MonthlyTokenLimit,
		action, logger,
	).WithStore(ctx, budgetrepo.New(store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))

	// LLM chain: OpenAI-compatible client -> budget + metrics
	llm := openaiLLM.NewClient(&openaiLLM.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Provider:    cfg.LLM.Provider,
		Logger:      logger,
	})
	streamer := budgetuc.NewInstrumentedStreamer(llm, cfg.LLM.Provider, cfg.LLM.Model, budget, logger)

	// Repositories
	docRepo := documentrepo.New(store, prefix)
	historyRepo := historyrepo.New(store, prefix, cfg.Storage.HistoryMaxTurns, cfg.Storage.HistoryTTL())

	// Use case services
	docSvc := documentuc.New(docRepo)
	if cfg.Storage.SeedDefaultDocument() {
		created, err := docSvc.EnsureDefault(ctx)
		if err != nil {
			logger.Fatal("Failed to seed default document", zap.Error(err))
		}
		if created {
			logger.Info("Seeded default course document", zap.String("document_id", documentuc.DefaultDocumentID))
		}
	}

	chatSvc := chatuc.New(docSvc, streamer, historyRepo, logger,
		stream.WithThrottle(cfg.Stream.Throttle()),
		stream.WithEventCounter(metrics.StreamEventsTotal),
	)
	usageSvc := usageuc.New(budget, cfg.LLM.Provider, cfg.LLM.Budget.CostPerMillionTokens)
	healthSvc := healthuc.New(store, llm)

	server := chiTransport.NewServer(chatSvc, docSvc, historyRepo, usageSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
