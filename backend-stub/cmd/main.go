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

	"github.com/fjod/go_storefront/pkg/shopapi/fakebackend"
)

type Config struct {
	HTTPPort        string
	AdminToken      string
	Seed            bool
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	_ = godotenv.Load()
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8081"),
		AdminToken:      getEnv("ADMIN_TOKEN", fakebackend.DefaultAdminToken),
		Seed:            getEnv("SEED", "true") == "true",
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	store := fakebackend.NewStore(nil)
	defer store.Close()
	if cfg.Seed {
		fakebackend.Seed(store)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      fakebackend.New(store, fakebackend.WithAdminToken(cfg.AdminToken)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Shop backend stub listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down backend stub...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("backend stub stopped")
}
