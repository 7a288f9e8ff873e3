package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/Jashank06/Email-Sender-App/internal/api"
	"github.com/Jashank06/Email-Sender-App/internal/config"
	"github.com/Jashank06/Email-Sender-App/internal/live"
	"github.com/Jashank06/Email-Sender-App/internal/mailing"
	"github.com/Jashank06/Email-Sender-App/internal/tracking"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	log.Println("[Server] Connected to database")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	var locator tracking.GeoLocator = tracking.NopLocator{}
	if cfg.Tracking.GeoIPDatabase != "" {
		maxmind, err := tracking.NewMaxMindLocator(cfg.Tracking.GeoIPDatabase)
		if err != nil {
			log.Printf("[Server] geoip disabled: %v", err)
		} else {
			defer maxmind.Close()
			locator = maxmind
			log.Printf("[Server] GeoIP database loaded from %s", cfg.Tracking.GeoIPDatabase)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := mailing.NewStore(db)
	publisher := live.NewPublisher(rdb)
	hub := live.NewHub(rdb)
	hub.Start(ctx)

	orchestrator := mailing.NewOrchestrator(store, mailing.NewTemplateService(), publisher, cfg.Tracking.BaseURL)
	handlers := api.NewHandlers(store, orchestrator, publisher, locator, hub, cfg.Sending.Delay())
	router := api.SetupRoutes(handlers, cfg.CORS.AllowedOrigins)

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// No write timeout: SSE streams and throttled send loops stay open.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Printf("[Server] Listening on %s (tracking base %s)", srv.Addr, cfg.Tracking.BaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[Server] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
