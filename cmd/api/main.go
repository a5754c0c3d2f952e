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

	"praxis/api/internal/app"
	"praxis/api/internal/config"
	"praxis/api/internal/email"
	"praxis/api/internal/files"
	"praxis/api/internal/mirror"
	"praxis/api/internal/notify"
	"praxis/api/internal/realtime"
	"praxis/api/internal/session"
	"praxis/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer sessions.Close()

	fanout, err := realtime.NewFanout(cfg.RedisURL, log.Default())
	if err != nil {
		log.Fatalf("redis fanout failed: %v", err)
	}
	defer fanout.Close()

	var searchMirror mirror.Mirror = mirror.Disabled{}
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := mirror.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meili.Close()
		searchMirror = meili
	}

	var fileStore *files.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		fileStore, err = files.NewStore(ctx, files.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("object storage failed: %v", err)
		}
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.EmailUsername,
		Password: cfg.EmailPassword,
		From:     cfg.EmailFrom,
		FromName: cfg.FirmName,
	})
	dispatcher := notify.NewDispatcher(emailService, cfg.FirmName, cfg.AppBaseURL, log.Default())

	service := app.New(cfg, app.Deps{
		Store:    dataStore,
		Sessions: sessions,
		Notify:   dispatcher,
		Fanout:   fanout,
		Mirror:   searchMirror,
		Files:    fileStore,
		Logger:   log.Default(),
	})
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Praxis API listening on %s", cfg.Addr)
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
