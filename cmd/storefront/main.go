package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/checkout"
	"github.com/vasiliy-maslov/storefront/internal/config"
	"github.com/vasiliy-maslov/storefront/internal/db"
	"github.com/vasiliy-maslov/storefront/internal/events"
	storefrontHttp "github.com/vasiliy-maslov/storefront/internal/handler/http"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/outbox"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/product"
	"github.com/vasiliy-maslov/storefront/internal/session"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "storefront").Logger()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.App)

	log.Info().Msg("Storefront starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	if err := pg.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	var (
		cartCache cart.Cache = cart.NoopCache{}
		broker    events.Broker
		hub       = events.NewHub()
	)
	broker = hub
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to redis")
		}
		redisBroker := events.NewRedisBroker(rdb, hub)
		if err := redisBroker.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start cart event relay")
		}
		cartCache = cart.NewRedisCache(rdb)
		broker = redisBroker
	} else {
		log.Warn().Msg("REDIS_ADDR not set: cart cache disabled, cart events are local to this instance")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		writer := outbox.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic)
		defer func() {
			if err := writer.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close kafka writer")
			}
		}()
		publisher := outbox.NewPublisher(outbox.NewRepository(pg.Pool), writer)
		go publisher.Run(ctx)
	} else {
		log.Warn().Msg("KAFKA_BROKERS not set: order events stay in the outbox table")
	}

	var verifier payment.Verifier
	if cfg.Payment.GatewayURL != "" {
		verifier = payment.NewGatewayClient(cfg.Payment)
	} else {
		log.Warn().Msg("PAYMENT_GATEWAY_URL not set: gateway payment references are accepted unverified")
		verifier = payment.AcceptingVerifier{}
	}

	tokens := session.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	userSvc := user.NewService(user.NewRepository(pg.Pool), tokens)
	productSvc := product.NewService(product.NewRepository(pg.Pool, pg.SQLX()))
	cartSvc := cart.NewService(cart.NewRepository(pg.Pool), cartCache, broker)
	orderSvc := order.NewService(order.NewRepository(pg.Pool))
	checkoutSvc := checkout.NewService(checkout.NewRepository(pg.Pool), verifier, cartSvc)

	router := storefrontHttp.NewRouter(
		storefrontHttp.RouterConfig{
			AllowedOrigins: cfg.App.AllowedOrigins,
			RequestTimeout: cfg.App.RequestTimeout,
		},
		tokens,
		storefrontHttp.Handlers{
			Users:    storefrontHttp.NewUserHandler(userSvc),
			Products: storefrontHttp.NewProductHandler(productSvc),
			Carts:    storefrontHttp.NewCartHandler(cartSvc, broker),
			Orders:   storefrontHttp.NewOrderHandler(orderSvc, checkoutSvc),
		},
	)

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// WriteTimeout stays 0: /api/cart/events is a long-lived stream.
		// Other routes are bounded by the request timeout middleware.
		IdleTimeout: 120 * time.Second,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Storefront stopped")
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "storefront").Logger()
	}
}
