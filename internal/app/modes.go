package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/webpay/internal/config"
	"github.com/alanyoungcy/webpay/internal/domain"
	"github.com/alanyoungcy/webpay/internal/host/bridge"
	"github.com/alanyoungcy/webpay/internal/host/sim"
	"github.com/alanyoungcy/webpay/internal/negotiator"
	"github.com/alanyoungcy/webpay/internal/server"
	"github.com/alanyoungcy/webpay/internal/server/handler"
	"github.com/alanyoungcy/webpay/internal/service"
)

const shutdownGrace = 5 * time.Second

// BridgeMode serves the HTTP API and the bridge WebSocket. Payer browsers
// connect to /ws/host and payments started through POST /api/pay run on
// them until the context is cancelled.
func (a *App) BridgeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting bridge mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := bridge.NewHub(a.logger, a.cfg.Server.CORSOrigins)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		return deps.Notifier.Run(ctx)
	})

	payments := service.NewPaymentService(
		deps.Negotiator,
		hub,
		deps.LockManager,
		a.cfg.Payment.Timeout.Duration,
		defaultForm(a.cfg.Payment.Form),
		a.logger,
	)
	a.closers = append(a.closers, payments.Close)

	srv := server.NewServer(
		server.Config{
			Port:          a.cfg.Server.Port,
			CORSOrigins:   a.cfg.Server.CORSOrigins,
			APIKey:        a.cfg.Server.APIKey,
			PayRateLimit:  a.cfg.Server.PayRateLimit,
			PayRateWindow: a.cfg.Server.PayRateWindow.Duration,
		},
		server.Handlers{
			Health: handler.NewHealthHandler(deps.HealthChecks, a.logger),
			Status: handler.NewStatusHandler(a.cfg.Mode, time.Now(), hub, payments),
			Pay:    handler.NewPayHandler(payments, a.logger),
			Bridge: hub.HandleWS,
		},
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// SimulateMode runs one payment against the scripted payer and prints the
// outcome. The merchant is real; only the device is simulated. A payment the
// merchant declines or the payer abandons is a normal outcome, not an error.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulate mode",
		slog.String("capability", a.cfg.Simulator.Capability),
	)

	// The notifier outlives ctx so the outcome notification is drained
	// before simulate mode returns.
	notifyCtx, stopNotifier := context.WithCancel(context.WithoutCancel(ctx))
	notified := make(chan struct{})
	go func() {
		defer close(notified)
		_ = deps.Notifier.Run(notifyCtx)
	}()

	host := sim.New(simConfig(a.cfg.Simulator), a.out, a.logger)
	outcome, runErr := deps.Negotiator.Run(ctx, host, defaultForm(a.cfg.Payment.Form))

	stopNotifier()
	<-notified

	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return fmt.Errorf("app: simulate: encode outcome: %w", err)
	}
	fmt.Fprintln(a.out, string(data))

	switch outcome.State {
	case negotiator.StateError, negotiator.StateUnsupported:
		return fmt.Errorf("app: simulate: %w", runErr)
	}
	return nil
}

func simConfig(s config.SimulatorConfig) sim.Config {
	return sim.Config{
		Session:    s.Session,
		Capability: s.Capability,
		MethodName: s.MethodName,
		Address: domain.Address{
			Recipient:   s.Address.Recipient,
			AddressLine: s.Address.AddressLine,
			City:        s.Address.City,
			Region:      s.Address.Region,
			PostalCode:  s.Address.PostalCode,
			Country:     s.Address.Country,
			Phone:       s.Address.Phone,
		},
		OptionID:       s.OptionID,
		PayerName:      s.PayerName,
		PayerPhone:     s.PayerPhone,
		PayerEmail:     s.PayerEmail,
		ThinkTime:      s.ThinkTime.Duration,
		AcceptRedirect: s.AcceptRedirect,
		AbortFails:     s.AbortFails,
	}
}
