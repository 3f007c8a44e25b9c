package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/mstgnz/gohuifu/handler"
	"github.com/mstgnz/gohuifu/infra/config"
	"github.com/mstgnz/gohuifu/infra/logger"
	"github.com/mstgnz/gohuifu/infra/metrics"
	"github.com/mstgnz/gohuifu/infra/middle"
	"github.com/mstgnz/gohuifu/infra/opensearch"
	"github.com/mstgnz/gohuifu/infra/storage"
	"github.com/mstgnz/gohuifu/infra/validate"
	"github.com/mstgnz/gohuifu/provider"
	"github.com/mstgnz/gohuifu/provider/huifu"
	"github.com/mstgnz/gohuifu/router"
	v1 "github.com/mstgnz/gohuifu/router/v1"
)

var (
	searchClient *opensearch.Client
	searchLogger *opensearch.Logger
)

func init() {
	// Load Env
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	// init conf
	_ = config.App()
	validate.CustomValidate()

	cfg := config.GetAppConfig()
	if cfg.EnableLogging {
		client, err := opensearch.NewClient(cfg, "huifu")
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			searchClient = client
			searchLogger = opensearch.NewLogger(client)
		}
	}

	logger.InitGlobalLogger(searchLogger)
}

func main() {
	if err := run(); err != nil {
		logger.Fatal("Server stopped", err)
	}
}

func run() error {
	cfg := config.GetAppConfig()

	gateway, err := config.LoadGateway()
	if err != nil {
		return err
	}

	journal, err := storage.NewJournal(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer journal.Close()

	recorders := provider.Recorders{journal}
	var search handler.SearchReader
	if searchLogger != nil {
		recorders = append(recorders, storage.NewSearchRecorder(searchLogger))
		search = searchLogger
	}

	service, err := huifu.New(gateway, provider.WithRecorder(recorders))
	if err != nil {
		return err
	}

	verifier, err := provider.NewVerifier(gateway.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid gateway public key: %w", err)
	}
	callbacks := handler.NewCallbackHandler(provider.NewCallbackHandler("huifu", verifier, recorders))

	var searchStatus handler.SearchStatus
	if searchClient != nil {
		searchStatus = searchClient
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rateLimiter := middle.NewRateLimiter(cfg.RateLimit)
	go rateLimiter.Run(ctx)

	// Chi Define Routes
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middle.RequestLoggingMiddleware())
	r.Use(metrics.Middleware)
	r.Use(middle.SecurityHeadersMiddleware())

	// CORS
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300, // Preflight cache time (second)
	}))

	router.Routes(r, router.Options{
		APIKey:      cfg.APIKey,
		RateLimiter: rateLimiter,
		CallbackIPs: cfg.CallbackIPs,
		Health:      handler.NewHealthHandler(journal, searchStatus, &gateway, service),
		Callbacks:   callbacks,
		V1: v1.Handlers{
			Operations: handler.NewOperationHandler(service, config.App().Validator),
			Logs:       handler.NewLogsHandler(journal, search),
		},
	})

	if cfg.APIKey == "" {
		logger.Warn("API_KEY is not set, /v1 is served without authentication")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("API is running", logger.LogContext{
		Provider: "huifu",
		Fields:   map[string]any{"port": cfg.Port, "sandbox": gateway.Sandbox},
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
