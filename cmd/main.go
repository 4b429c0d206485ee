package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kkkkikiki/loyalty/internal/config"
	"github.com/kkkkikiki/loyalty/internal/database"
	"github.com/kkkkikiki/loyalty/internal/server"
	"github.com/kkkkikiki/loyalty/internal/service"
	"github.com/kkkkikiki/loyalty/internal/sweeper"
	"github.com/kkkkikiki/loyalty/internal/telemetry"
	"github.com/kkkkikiki/loyalty/internal/tiers"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting loyalty service in %s mode", cfg.App.Environment)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("Error flushing traces: %v", err)
		}
	}()

	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database connections: %v", err)
		}
	}()

	catalog := tiers.NewCatalog()
	if cfg.Loyalty.TiersFile != "" {
		catalog, err = tiers.LoadFile(cfg.Loyalty.TiersFile)
		if err != nil {
			log.Fatalf("Failed to load tier table: %v", err)
		}
		log.Printf("Loaded tier table from %s", cfg.Loyalty.TiersFile)
	}

	loyaltyService := service.NewLoyaltyService(db.Conn, service.OptionsFromConfig(cfg.Loyalty, catalog))

	sw := sweeper.New(loyaltyService, cfg.Loyalty.SweepInterval)
	sw.Start(ctx)
	defer sw.Stop()

	handler := server.NewHandler(loyaltyService, sw, cfg.Loyalty)
	router := server.NewRouter(handler, server.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DB:             db,
		Sweeper:        sw,
	})

	srv := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(router, &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}

	go func() {
		log.Printf("Starting loyalty service on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Failed to start server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited gracefully")
}
