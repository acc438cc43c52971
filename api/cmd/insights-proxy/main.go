package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"insights-proxy/api/internal/config"
	"insights-proxy/api/internal/generate"
	"insights-proxy/api/internal/generate/gemini"
	"insights-proxy/api/internal/handle"
	"insights-proxy/api/internal/httpserver"
	"insights-proxy/api/internal/insights"
	"insights-proxy/api/internal/logging"
	"insights-proxy/api/internal/normalize"
	"insights-proxy/api/internal/prompt"
	"insights-proxy/api/internal/store"
)

func main() {
	os.Exit(start())
}

// start returns the process exit code once the deferred log flush has run.
func start() int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		return 1
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		_, _ = os.Stderr.WriteString("logging: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("insights-proxy stopped", zap.Error(err))
		return 1
	}
	return 0
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cacheStore, pinger, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var backend generate.Backend
	switch cfg.GeminiTransport {
	case "rest":
		backend = gemini.NewREST(cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.HTTPTimeout())
	default:
		backend = gemini.NewSDK(cfg.GeminiAPIKey)
	}
	if cfg.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY is not set; generation requests will fail")
	}

	prompts := prompt.New(cfg.PromptDir, time.Minute, log)
	gen := generate.New(backend, prompts, generate.Options{
		APIKey:          cfg.GeminiAPIKey,
		Model:           cfg.GeminiModel,
		Temperature:     cfg.GeminiTemperature,
		MaxOutputTokens: cfg.GeminiMaxOutputTokens,
	}, log)
	svc := insights.New(gen, normalize.New(log), store.NewCache(cacheStore, cfg.CacheTTL(), log), log)

	var saver handle.PromptSaver
	if cfg.PromptDir != "" {
		saver = prompts
	}
	h := handle.New(svc, saver, pinger, cfg.HTTPTimeout(), log)
	mux := http.NewServeMux()
	h.Routes(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("insights-proxy starting",
		zap.String("backend", backend.Name()), zap.String("model", gen.Model()), zap.String("cache", cfg.CacheDriver))
	return httpserver.Serve(ctx, srv, 10*time.Second, log)
}

// openStore picks the cache backend. The returned pinger is nil for the in-memory store.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, handle.Pinger, func(), error) {
	switch cfg.CacheDriver {
	case "postgres":
		// an empty DATABASE_URL leaves host, user and database to pgx's PG* variables
		s, err := store.OpenSQL(ctx, store.DialectPostgres, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, eris.Wrap(err, store.DescribeDSN(cfg.DatabaseURL))
		}
		log.Info("db connected", zap.String("dsn", store.DescribeDSN(cfg.DatabaseURL)))
		return s, s, func() { _ = s.Close() }, nil
	case "sqlite":
		s, err := store.OpenSQL(ctx, store.DialectSQLite, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("sqlite cache opened", zap.String("path", cfg.SQLitePath))
		return s, s, func() { _ = s.Close() }, nil
	}
	return store.NewMemoryStore(), nil, func() {}, nil
}
