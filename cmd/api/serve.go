package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mybeatfi/api/internal/app"
	"mybeatfi/api/internal/config"
	"mybeatfi/api/internal/email"
	"mybeatfi/api/internal/license"
	"mybeatfi/api/internal/objectstore"
	"mybeatfi/api/internal/payment"
	"mybeatfi/api/internal/realtime"
	"mybeatfi/api/internal/search"
	"mybeatfi/api/internal/session"
	"mybeatfi/api/internal/store"
)

func newServeCmd() *cobra.Command {
	var skipMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(config.Load(), skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")
	return cmd
}

func serve(cfg config.Config, skipMigrations bool) error {
	ctx := context.Background()

	db, err := store.OpenPool(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpen: cfg.DBMaxConns, Wait: cfg.DBWait})
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if !skipMigrations {
		if err := store.ApplyMigrations(ctx, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
	}

	dataStore := store.NewPostgresStore(db)
	opts := app.Options{
		Payments: payment.NewClient(payment.Config{
			FunctionsURL: cfg.FunctionsURL,
			FunctionsKey: cfg.FunctionsKey,
			PriceID:      cfg.StripeSyncPriceID,
			Timeout:      cfg.PaymentTimeout,
		}),
		Mailer: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			AppURL:   cfg.AppURL,
		}),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Printf("WARNING: redis unavailable, refresh tokens fall back to postgres and realtime is off: %v", err)
		} else {
			defer redisStore.Close()
			log.Printf("Using Redis for refresh tokens and proposal events")
			opts.Sessions = redisStore
			opts.Events = realtime.NewHub(redisStore.Client())
		}
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	defer searchService.Close()
	opts.Search = searchService
	if meiliClient != nil {
		go func() {
			reindexCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			searchService.ReindexAllFromPG(reindexCtx)
		}()
	}

	if licenses := licenseService(ctx, cfg); licenses != nil {
		opts.Licenses = licenses
	}

	service, err := app.New(cfg, dataStore, opts)
	if err != nil {
		return fmt.Errorf("service init failed: %w", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Proposal event streams stay open; handlers bound their own work.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("MyBeatFi API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}

// licenseService returns nil when no storage is configured and Chrome is
// missing, since neither path could produce a PDF.
func licenseService(ctx context.Context, cfg config.Config) *license.Service {
	renderer := license.ChromeRenderer{Timeout: 30 * time.Second}

	objects, err := objectstore.New(objectstore.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	})
	switch {
	case errors.Is(err, objectstore.ErrNotConfigured):
		if !renderer.Available() {
			log.Printf("License agreements disabled: no object storage and no chromium")
			return nil
		}
		return license.NewService(renderer, nil)
	case err != nil:
		log.Printf("WARNING: object storage init failed, agreements are rendered inline: %v", err)
		return license.NewService(renderer, nil)
	}

	bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := objects.EnsureBucket(bucketCtx); err != nil {
		log.Printf("WARNING: agreement bucket check failed: %v", err)
	}
	return license.NewService(renderer, objects)
}
