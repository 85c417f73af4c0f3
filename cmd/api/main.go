package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mosaic/api/internal/app"
	"mosaic/api/internal/assets"
	"mosaic/api/internal/config"
	"mosaic/api/internal/export"
	"mosaic/api/internal/realtime"
	"mosaic/api/internal/search"
	"mosaic/api/internal/session"
	"mosaic/api/internal/snapshot"
	"mosaic/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.SnapshotsDir, 0o755); err != nil {
		log.Fatalf("failed to create snapshots dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer sessions.Close()

	broadcaster, err := realtime.NewRedisBroadcaster(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis pub/sub connection failed: %v", err)
	}
	defer broadcaster.Close()
	gateway := realtime.NewGateway(broadcaster)

	sqlCatalog := search.NewSQLCatalog(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		if err := meiliClient.EnsureIndex(); err != nil {
			log.Printf("WARNING: meilisearch index setup failed: %v", err)
		}
	}
	catalog := search.NewService(meiliClient, sqlCatalog)
	defer catalog.Close()
	if err := catalog.Reindex(ctx); err != nil {
		log.Printf("WARNING: template reindex failed (SQL fallback remains available): %v", err)
	}

	var assetStore *assets.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		assetStore, err = assets.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("object storage connection failed: %v", err)
		}
		if err := assetStore.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: asset bucket setup failed: %v", err)
		}
	} else {
		log.Printf("MINIO_ENDPOINT not set, asset uploads disabled")
	}

	snapshots := snapshot.New(cfg.SnapshotsDir)
	exporter := export.NewService()

	service := app.New(cfg, dataStore, sessions, broadcaster, catalog, snapshots, exporter, assetStore)
	httpServer := app.NewHTTPServer(service, gateway, cfg.CORSOrigin)

	// No ReadTimeout/WriteTimeout: the realtime relay holds websocket
	// connections open indefinitely.
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Mosaic API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
