package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_storefront/api-gateway/internal/cache"
	"github.com/fjod/go_storefront/api-gateway/internal/events"
	h "github.com/fjod/go_storefront/api-gateway/internal/http"
	"github.com/fjod/go_storefront/api-gateway/internal/service"
	"github.com/fjod/go_storefront/pkg/cart"
	"github.com/fjod/go_storefront/pkg/circuitbreaker"
	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/fjod/go_storefront/pkg/shopapi"
)

type Config struct {
	HTTPPort           string
	ShopAPIURL         string
	LoginURL           string
	RedisAddr          string
	RedisPassword      string
	KafkaBrokers       []string
	CacheTTL           time.Duration
	RequestTimeout     time.Duration
	BackendTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	MaxCartQuantity    int
	RateLimitRPS       float64
	RateLimitBurst     int
	BreakerFailures    int
	BreakerOpenFor     time.Duration
	LogLevel           string
}

func loadConfig() *Config {
	_ = godotenv.Load() // .env is optional

	var brokers []string
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		brokers = strings.Split(v, ",")
	}

	return &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		ShopAPIURL:         getEnv("SHOP_API_URL", "http://localhost:8081"),
		LoginURL:           getEnv("LOGIN_URL", "/login"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:       brokers,
		CacheTTL:           getDuration("CACHE_TTL", 15*time.Minute),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		BackendTimeout:     getDuration("BACKEND_TIMEOUT", 10*time.Second),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: 1 << 20, // 1MB
		MaxCartQuantity:    getInt("MAX_CART_QUANTITY", cart.DefaultMaxLineQuantity),
		RateLimitRPS:       getFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getInt("RATE_LIMIT_BURST", 40),
		BreakerFailures:    getInt("BREAKER_FAILURES", 5),
		BreakerOpenFor:     getDuration("BREAKER_OPEN_FOR", 30*time.Second),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func main() {
	cfg := loadConfig()
	lg := logger.New("api-gateway", cfg.LogLevel)
	slog.SetDefault(lg)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	client, err := shopapi.New(shopapi.Config{
		BaseURL: cfg.ShopAPIURL,
		Timeout: cfg.BackendTimeout,
		Breaker: circuitbreaker.Config{
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             cfg.BreakerOpenFor,
			ConsecutiveFailures: uint32(cfg.BreakerFailures),
		},
		Logger: lg,
	})
	if err != nil {
		log.Fatalf("Failed to create shop API client: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The catalog still works without a cache, just slower.
		lg.Warn("redis ping failed", slog.Any("error", err))
	}

	var (
		notifier    cart.Notifier = cart.NopNotifier{}
		orderEvents service.OrderEvents
		publisher   *events.Publisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewPublisher(cfg.KafkaBrokers, lg)
		notifier, orderEvents = publisher, publisher
		go publisher.Run(ctx)
		lg.Info("publishing events", slog.Any("brokers", cfg.KafkaBrokers))
	}

	limiter := h.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.RunCleanup(ctx)

	router := h.NewRouter(h.RouterConfig{
		Catalog:            service.NewCatalogService(client, cache.NewRedisCache(redisClient, cfg.CacheTTL)),
		Carts:              service.NewCartService(client, notifier, cfg.MaxCartQuantity),
		Checkout:           service.NewCheckoutService(client, orderEvents),
		Analytics:          service.NewAnalyticsService(client),
		Backend:            client,
		Limiter:            limiter,
		Logger:             lg,
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		LoginURL:           cfg.LoginURL,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "api-gateway"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("API Gateway starting on :%s, backend %s", cfg.HTTPPort, cfg.ShopAPIURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	stop()
	if publisher != nil {
		if err := publisher.Close(shutdownCtx); err != nil {
			lg.Error("close publisher", slog.Any("error", err))
		}
	}

	log.Println("server exited")
}
