package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appdownloader/config"
	"appdownloader/database"
	"appdownloader/middleware"
	"appdownloader/routes"
	"appdownloader/services"
	"appdownloader/utils"
)

func main() {
	// Load .env if present (do not overwrite already-set environment variables).
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		utils.Log.WithError(err).Fatal("invalid configuration")
	}
	utils.ConfigureLogger(cfg.Log.Level, cfg.Log.Format, cfg.IsDevelopment())
	utils.ConfigureTokens(cfg.JWT.Secret, cfg.JWT.Issuer)
	utils.InitRedis(cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB)

	// Connect to the database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		utils.Log.WithError(err).Fatal("failed to connect database")
	}
	if err := database.Migrate(db); err != nil {
		utils.Log.WithError(err).Fatal("failed to migrate database")
	}
	if err := database.SeedTaxonomy(db, database.ParseTaxonomy(cfg.SeedTaxonomy)); err != nil {
		utils.Log.WithError(err).Fatal("failed to seed categories")
	}
	if cfg.Admin.Username != "" && cfg.Admin.Password != "" {
		if err := services.EnsureAdmin(context.Background(), db, cfg.Admin.Username, cfg.Admin.Password); err != nil {
			utils.Log.WithError(err).Fatal("failed to create admin account")
		}
	}

	opts := routes.Options{
		CORSAllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		TrustedProxies:     cfg.HTTP.TrustedProxies,
	}
	switch cfg.Storage.Driver {
	case "s3", "r2":
		store, err := utils.NewS3Store(context.Background(), utils.S3Config{
			AccountID:  cfg.Storage.AccountID,
			AccessKey:  cfg.Storage.AccessKey,
			SecretKey:  cfg.Storage.SecretKey,
			Bucket:     cfg.Storage.Bucket,
			Endpoint:   cfg.Storage.Endpoint,
			Region:     cfg.Storage.Region,
			PresignTTL: cfg.Storage.PresignTTL,
		})
		if err != nil {
			utils.Log.WithError(err).Fatal("failed to configure object storage")
		}
		utils.Storage = store
	default:
		store, err := utils.NewLocalStore(cfg.Storage.MediaRoot, cfg.Storage.MediaURL)
		if err != nil {
			utils.Log.WithError(err).Fatal("failed to prepare media directory")
		}
		utils.Storage = store
		opts.MediaRoot, opts.MediaURL = store.Root, cfg.Storage.MediaURL
	}

	// Initialize router
	router := routes.InitRouter(opts)

	// Wrap router with global middleware in recommended order
	// Logging -> Security headers -> Request ID -> Max Body -> Timeout -> Recovery -> router (metrics run inside it)
	handler := middleware.RequestLogMiddleware(
		middleware.SecurityHeadersMiddleware(middleware.SecurityOptions{
			Development: cfg.IsDevelopment(),
			HSTS:        cfg.HTTP.HSTS,
			CSP:         cfg.HTTP.CSP,
		})(
			middleware.RequestIDMiddleware(
				middleware.MaxBodyMiddleware(cfg.HTTP.MaxBodyBytes)(
					middleware.TimeoutMiddleware(cfg.HTTP.RequestTimeout)(
						middleware.RecoveryMiddleware(router),
					),
				),
			),
		),
	)

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		utils.Log.WithField("port", cfg.Port).WithField("env", cfg.Env).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Log.WithError(err).Fatal("server error")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	utils.Log.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		utils.Log.WithError(err).Fatal("server forced to shutdown")
	}
	if utils.RedisClient != nil {
		_ = utils.RedisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	utils.Log.Info("server exited")
}
