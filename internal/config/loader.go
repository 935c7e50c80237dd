package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WEBPAY_* environment variable overrides, and
// returns the final Config. A missing file leaves the defaults in place. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WEBPAY_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Merchant ──
	setStr(&cfg.Merchant.BaseURL, "WEBPAY_MERCHANT_BASE_URL")
	setStr(&cfg.Merchant.ShipPath, "WEBPAY_MERCHANT_SHIP_PATH")
	setStr(&cfg.Merchant.BuyPath, "WEBPAY_MERCHANT_BUY_PATH")
	setDuration(&cfg.Merchant.Timeout, "WEBPAY_MERCHANT_TIMEOUT")

	// ── Payment ──
	setStringSlice(&cfg.Payment.Methods, "WEBPAY_PAYMENT_METHODS")
	setStr(&cfg.Payment.Currency, "WEBPAY_PAYMENT_CURRENCY")
	setStr(&cfg.Payment.TotalLabel, "WEBPAY_PAYMENT_TOTAL_LABEL")
	setDuration(&cfg.Payment.Timeout, "WEBPAY_PAYMENT_TIMEOUT")
	setBool(&cfg.Payment.AssumeCapableWithoutProbe, "WEBPAY_PAYMENT_ASSUME_CAPABLE_WITHOUT_PROBE")
	setStr(&cfg.Payment.InstallURL, "WEBPAY_PAYMENT_INSTALL_URL")
	setBool(&cfg.Payment.RequestShipping, "WEBPAY_PAYMENT_REQUEST_SHIPPING")
	setStr(&cfg.Payment.ShippingType, "WEBPAY_PAYMENT_SHIPPING_TYPE")
	setStr(&cfg.Payment.Form.PayeeAddress, "WEBPAY_PAYMENT_FORM_PA")
	setStr(&cfg.Payment.Form.PayeeName, "WEBPAY_PAYMENT_FORM_PN")
	setStr(&cfg.Payment.Form.Amount, "WEBPAY_PAYMENT_FORM_AMOUNT")

	// ── Session ──
	setStr(&cfg.Session.Backend, "WEBPAY_SESSION_BACKEND")
	setDuration(&cfg.Session.TTL, "WEBPAY_SESSION_TTL")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "WEBPAY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WEBPAY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WEBPAY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WEBPAY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WEBPAY_REDIS_MAX_RETRIES")
	setStr(&cfg.Redis.KeyPrefix, "WEBPAY_REDIS_KEY_PREFIX")
	setBool(&cfg.Redis.TLSEnabled, "WEBPAY_REDIS_TLS_ENABLED")

	// ── Server ──
	setInt(&cfg.Server.Port, "WEBPAY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "WEBPAY_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "WEBPAY_SERVER_API_KEY")
	setInt(&cfg.Server.PayRateLimit, "WEBPAY_SERVER_PAY_RATE_LIMIT")
	setDuration(&cfg.Server.PayRateWindow, "WEBPAY_SERVER_PAY_RATE_WINDOW")

	// ── Simulator ──
	setStr(&cfg.Simulator.Capability, "WEBPAY_SIMULATOR_CAPABILITY")
	setStr(&cfg.Simulator.OptionID, "WEBPAY_SIMULATOR_OPTION_ID")
	setDuration(&cfg.Simulator.ThinkTime, "WEBPAY_SIMULATOR_THINK_TIME")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WEBPAY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WEBPAY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WEBPAY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WEBPAY_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "WEBPAY_MODE")
	setStr(&cfg.LogLevel, "WEBPAY_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
