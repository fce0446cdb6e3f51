package config

import (
	"fmt"
	"os"
	"strings"
)

// Payment key prefixes recognized at startup. Anything else is
// rejected before the server starts.
const (
	TestKeyPrefix = "sk_test_"
	LiveKeyPrefix = "sk_live_"
)

// Defaults for optional settings.
const (
	DefaultAddr       = ":5000"
	DefaultModel      = "gpt-4o-mini"
	DefaultDBPath     = "giftchat.db"
	DefaultSuccessURL = "https://example.com/success?session_id={CHECKOUT_SESSION_ID}"
	DefaultCancelURL  = "https://example.com/cancel"
)

// Config holds application configuration
type Config struct {
	Addr  string
	Debug bool

	OpenAIKey string
	Model     string

	StripeKey           string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	CatalogPath string
	DBPath      string

	// Twilio credentials for SMS order confirmations (optional)
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
}

// Load populates a Config from the environment.
func Load() Config {
	return Config{
		Addr:                getEnv("GIFTCHAT_ADDR", DefaultAddr),
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		Model:               getEnv("GIFTCHAT_MODEL", DefaultModel),
		StripeKey:           os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", DefaultSuccessURL),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", DefaultCancelURL),
		CatalogPath:         os.Getenv("GIFTCHAT_CATALOG"),
		DBPath:              getEnv("GIFTCHAT_DB", DefaultDBPath),
		TwilioAccountSID:    os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber:   os.Getenv("TWILIO_PHONE_NUMBER"),
	}
}

// Validate checks that the required credentials are present and that
// the payment key has a recognized prefix.
func (c Config) Validate() error {
	if c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY not found in environment variables")
	}
	if c.StripeKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY not found in environment variables")
	}
	if !strings.HasPrefix(c.StripeKey, TestKeyPrefix) && !strings.HasPrefix(c.StripeKey, LiveKeyPrefix) {
		return fmt.Errorf("invalid Stripe API key format: key must start with %q or %q", TestKeyPrefix, LiveKeyPrefix)
	}
	return nil
}

// LiveMode reports whether the payment key is a live-mode key, meaning
// real charges are possible.
func (c Config) LiveMode() bool {
	return strings.HasPrefix(c.StripeKey, LiveKeyPrefix)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
