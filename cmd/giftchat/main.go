package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"GiftChat/internal/backend"
	"GiftChat/internal/cache"
	"GiftChat/internal/catalog"
	"GiftChat/internal/chatbot"
	"GiftChat/internal/config"
	"GiftChat/internal/fulfillment"
	"GiftChat/internal/payment"
	"GiftChat/internal/server"
	"GiftChat/internal/session"
	"GiftChat/internal/telemetry"
	"GiftChat/internal/tools"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, using environment variables")
	}

	cfg := config.Load()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	flag.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "Path to a TOML product catalog (built-in catalog when empty)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite database")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.InitLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	db, err := telemetry.InitDB(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.LiveMode() {
		logger.Warn("Stripe key is a live mode key, real charges are possible")
	} else {
		logger.Info("Stripe key is a test mode key")
	}
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, incoming webhooks cannot be verified")
	}

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		cat, err = catalog.Load(cfg.CatalogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load catalog: %v\n", err)
			os.Exit(1)
		}
	}
	logger.Info("catalog loaded", "products", cat.Len())

	httpClient := &http.Client{Timeout: 60 * time.Second}

	bk := backend.NewClient(cfg.OpenAIKey, cfg.Model, httpClient, logger, tracer, meter)
	payments := payment.NewClient(payment.Config{
		APIKey:        cfg.StripeKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    cfg.CheckoutSuccessURL,
		CancelURL:     cfg.CheckoutCancelURL,
	}, httpClient, logger, tracer)
	registry := tools.NewRegistry(cat, payments, logger, tracer)
	store := session.NewSQLiteStore(db, chatbot.SystemPrompt)
	bot := chatbot.New(bk, registry, store, logger, tracer)

	notifier := fulfillment.NewTwilioNotifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber, logger)
	fulfiller := fulfillment.NewService(db, cat, notifier, logger)

	srv := server.New(bot, payments, fulfiller, cache.NewEventCache(), logger)

	logger.Info("starting giftchat server", "addr", cfg.Addr, "model", cfg.Model)
	if err := srv.Run(ctx, cfg.Addr); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
