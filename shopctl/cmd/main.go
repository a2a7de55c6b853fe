package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/fjod/go_storefront/pkg/shopapi"
	"github.com/fjod/go_storefront/shopctl/internal/session"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("api", getEnv("SHOP_API_URL", "http://localhost:8081"), "shop backend base URL")
	token := flag.String("token", getEnv("SHOP_TOKEN", ""), "bearer token for cart commands")
	debounce := flag.Duration("debounce", 400*time.Millisecond, "keyword search delay")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", "warn"), "log level")
	flag.Parse()

	lg := logger.NewWithWriter(os.Stderr, "shopctl", *logLevel)

	client, err := shopapi.New(shopapi.Config{
		BaseURL: *baseURL,
		Token:   *token,
		Logger:  lg,
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := session.New(client, os.Stdin, os.Stdout, session.Options{Debounce: *debounce, Logger: lg})
	if err := s.Run(ctx); err != nil {
		log.Fatalf("shopctl: %v", err)
	}
}
