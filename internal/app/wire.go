package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/webpay/internal/cache/memory"
	"github.com/alanyoungcy/webpay/internal/cache/redis"
	"github.com/alanyoungcy/webpay/internal/config"
	"github.com/alanyoungcy/webpay/internal/domain"
	"github.com/alanyoungcy/webpay/internal/negotiator"
	"github.com/alanyoungcy/webpay/internal/notify"
	"github.com/alanyoungcy/webpay/internal/platform/merchant"
	"github.com/alanyoungcy/webpay/internal/server/handler"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	SessionStore domain.SessionStore
	LockManager  domain.LockManager
	RateLimiter  domain.RateLimiter

	Merchant   *merchant.Client
	Notifier   *notify.Notifier
	Negotiator *negotiator.Negotiator

	// HealthChecks are run by GET /api/health.
	HealthChecks map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: map[string]handler.Check{}}

	// --- Session state ---
	switch cfg.Session.Backend {
	case "redis":
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SessionStore = redis.NewSessionStore(redisClient, cfg.Session.TTL.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	default:
		deps.SessionStore = memory.NewSessionStore()
		deps.LockManager = memory.NewLockManager()
		deps.RateLimiter = memory.NewRateLimiter()
	}

	// --- Merchant ---
	mc, err := merchant.NewClient(merchant.Config{
		BaseURL:  cfg.Merchant.BaseURL,
		ShipPath: cfg.Merchant.ShipPath,
		BuyPath:  cfg.Merchant.BuyPath,
		Timeout:  cfg.Merchant.Timeout.Duration,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: merchant: %w", err)
	}
	deps.Merchant = mc

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Negotiator ---
	deps.Negotiator = negotiator.New(
		negotiatorConfig(cfg.Payment),
		deps.SessionStore,
		mc,
		mc,
		deps.Notifier,
		logger,
	)

	return deps, cleanup, nil
}

func negotiatorConfig(p config.PaymentConfig) negotiator.Config {
	return negotiator.Config{
		Methods:    p.Methods,
		Currency:   p.Currency,
		TotalLabel: p.TotalLabel,
		Options: domain.PaymentOptions{
			RequestShipping:   p.RequestShipping,
			RequestPayerName:  p.RequestPayerName,
			RequestPayerPhone: p.RequestPayerPhone,
			RequestPayerEmail: p.RequestPayerEmail,
			ShippingType:      domain.ShippingType(p.ShippingType),
		},
		Timeout:                   p.Timeout.Duration,
		AssumeCapableWithoutProbe: p.AssumeCapableWithoutProbe,
		CacheKey:                  p.CacheKey,
		InstallURL:                p.InstallURL,
		InstallPrompt:             p.InstallPrompt,
	}
}

func defaultForm(f config.FormConfig) domain.InstrumentForm {
	return domain.InstrumentForm{
		PayeeAddress:  f.PayeeAddress,
		PayeeName:     f.PayeeName,
		Note:          f.Note,
		MerchantCode:  f.MerchantCode,
		Reference:     f.Reference,
		TransactionID: f.TransactionID,
		URL:           f.URL,
		Amount:        f.Amount,
	}
}
