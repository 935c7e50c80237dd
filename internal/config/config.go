// Package config defines the top-level configuration for the webpay demo
// server and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WEBPAY_* environment variables.
type Config struct {
	Merchant  MerchantConfig  `toml:"merchant"`
	Payment   PaymentConfig   `toml:"payment"`
	Session   SessionConfig   `toml:"session"`
	Redis     RedisConfig     `toml:"redis"`
	Server    ServerConfig    `toml:"server"`
	Simulator SimulatorConfig `toml:"simulator"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// MerchantConfig locates the merchant backend that quotes shipping and
// accepts instruments.
type MerchantConfig struct {
	BaseURL  string   `toml:"base_url"`
	ShipPath string   `toml:"ship_path"`
	BuyPath  string   `toml:"buy_path"`
	Timeout  duration `toml:"timeout"`
}

// PaymentConfig shapes every payment request.
type PaymentConfig struct {
	Methods    []string `toml:"methods"`
	Currency   string   `toml:"currency"`
	TotalLabel string   `toml:"total_label"`
	// Timeout is how long the payment sheet may stay open before the
	// request is aborted.
	Timeout                   duration `toml:"timeout"`
	AssumeCapableWithoutProbe bool     `toml:"assume_capable_without_probe"`
	CacheKey                  string   `toml:"cache_key"`
	InstallURL                string   `toml:"install_url"`
	InstallPrompt             string   `toml:"install_prompt"`

	RequestShipping   bool   `toml:"request_shipping"`
	RequestPayerName  bool   `toml:"request_payer_name"`
	RequestPayerPhone bool   `toml:"request_payer_phone"`
	RequestPayerEmail bool   `toml:"request_payer_email"`
	ShippingType      string `toml:"shipping_type"`

	Form FormConfig `toml:"form"`
}

// FormConfig holds the defaults of the demo's instrument form.
type FormConfig struct {
	PayeeAddress  string `toml:"pa"`
	PayeeName     string `toml:"pn"`
	Note          string `toml:"tn"`
	MerchantCode  string `toml:"mc"`
	Reference     string `toml:"tr"`
	TransactionID string `toml:"tid"`
	URL           string `toml:"url"`
	Amount        string `toml:"amount"`
}

// SessionConfig selects where session-scoped state lives.
type SessionConfig struct {
	Backend string   `toml:"backend"`
	TTL     duration `toml:"ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// PayRateLimit caps POST /api/pay per client IP within PayRateWindow.
	// Zero disables the limit.
	PayRateLimit  int      `toml:"pay_rate_limit"`
	PayRateWindow duration `toml:"pay_rate_window"`
}

// SimulatorConfig scripts the payer used by simulate mode.
type SimulatorConfig struct {
	Session        string        `toml:"session"`
	Capability     string        `toml:"capability"`
	MethodName     string        `toml:"method_name"`
	Address        AddressConfig `toml:"address"`
	OptionID       string        `toml:"option_id"`
	PayerName      string        `toml:"payer_name"`
	PayerPhone     string        `toml:"payer_phone"`
	PayerEmail     string        `toml:"payer_email"`
	ThinkTime      duration      `toml:"think_time"`
	AcceptRedirect bool          `toml:"accept_redirect"`
	AbortFails     bool          `toml:"abort_fails"`
}

// AddressConfig is the simulated payer's shipping address.
type AddressConfig struct {
	Recipient   string   `toml:"recipient"`
	AddressLine []string `toml:"address_line"`
	City        string   `toml:"city"`
	Region      string   `toml:"region"`
	PostalCode  string   `toml:"postal_code"`
	Country     string   `toml:"country"`
	Phone       string   `toml:"phone"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Merchant: MerchantConfig{
			BaseURL:  "http://localhost:8080",
			ShipPath: "ship",
			BuyPath:  "buy",
			Timeout:  duration{15 * time.Second},
		},
		Payment: PaymentConfig{
			Methods:                   []string{"https://tez.google.com/pay"},
			Currency:                  "INR",
			TotalLabel:                "Total",
			Timeout:                   duration{20 * time.Minute},
			AssumeCapableWithoutProbe: true,
			CacheKey:                  "canMakePaymentCache",
			InstallURL:                "https://play.google.com/store/apps/details?id=com.google.android.apps.nbu.paisa.user",
			InstallPrompt:             "Google Pay is not set up on this device. Install it now?",
			RequestShipping:           true,
			ShippingType:              "shipping",
			Form: FormConfig{
				PayeeName: "Merchant",
				Note:      "Test payment",
				Amount:    "1.00",
			},
		},
		Session: SessionConfig{
			Backend: "memory",
			TTL:     duration{24 * time.Hour},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "webpay:",
		},
		Server: ServerConfig{
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			PayRateLimit:  10,
			PayRateWindow: duration{time.Minute},
		},
		Simulator: SimulatorConfig{
			Capability: "yes",
			Address: AddressConfig{
				Recipient:   "Demo Payer",
				AddressLine: []string{"1 MG Road"},
				City:        "Bengaluru",
				Region:      "KA",
				PostalCode:  "560001",
				Country:     "IN",
			},
			PayerName: "Demo Payer",
			ThinkTime: duration{500 * time.Millisecond},
		},
		Notify: NotifyConfig{
			Events: []string{"payment_completed", "payment_failed", "negotiation_aborted", "not_capable"},
		},
		Mode:     "bridge",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"bridge":   true,
	"simulate": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validShippingTypes = map[string]bool{
	"shipping": true,
	"delivery": true,
	"pickup":   true,
}

var validCapabilities = map[string]bool{
	"yes":      true,
	"no":       true,
	"unprobed": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: bridge, simulate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Merchant
	if u, err := url.Parse(c.Merchant.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("merchant: base_url must be an absolute URL, got %q", c.Merchant.BaseURL))
	}
	if c.Merchant.Timeout.Duration < 0 {
		errs = append(errs, "merchant: timeout must not be negative")
	}

	// Payment
	if len(c.Payment.Methods) == 0 {
		errs = append(errs, "payment: at least one method is required")
	}
	if len(strings.TrimSpace(c.Payment.Currency)) != 3 {
		errs = append(errs, fmt.Sprintf("payment: currency must be a 3-letter code, got %q", c.Payment.Currency))
	}
	if c.Payment.Timeout.Duration <= 0 {
		errs = append(errs, "payment: timeout must be > 0")
	}
	if !validShippingTypes[c.Payment.ShippingType] {
		errs = append(errs, fmt.Sprintf("payment: unknown shipping_type %q (valid: shipping, delivery, pickup)", c.Payment.ShippingType))
	}

	// Session
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when session.backend is redis")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Session.TTL.Duration <= 0 {
			errs = append(errs, "session: ttl must be > 0 for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("session: unknown backend %q (valid: memory, redis)", c.Session.Backend))
	}

	// Server
	if c.Mode == "bridge" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.PayRateLimit < 0 {
		errs = append(errs, "server: pay_rate_limit must not be negative")
	}
	if c.Server.PayRateLimit > 0 && c.Server.PayRateWindow.Duration <= 0 {
		errs = append(errs, "server: pay_rate_window must be > 0 when pay_rate_limit is set")
	}

	// Simulator
	if c.Mode == "simulate" {
		if !validCapabilities[c.Simulator.Capability] {
			errs = append(errs, fmt.Sprintf("simulator: unknown capability %q (valid: yes, no, unprobed)", c.Simulator.Capability))
		}
		if strings.TrimSpace(c.Payment.Form.Amount) == "" {
			errs = append(errs, "payment.form: amount is required for simulate mode")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
