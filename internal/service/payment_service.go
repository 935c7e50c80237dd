// Package service holds the application services behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/webpay/internal/domain"
	"github.com/alanyoungcy/webpay/internal/negotiator"
)

const (
	// finishedRetention is how long a finished payment stays queryable.
	finishedRetention = time.Hour
	lockMargin        = time.Minute
)

// Runner performs negotiations.
type Runner interface {
	Build(form domain.InstrumentForm) ([]domain.PaymentMethodData, domain.PaymentDetails, error)
	Run(ctx context.Context, host domain.Host, form domain.InstrumentForm) (negotiator.Outcome, error)
}

// HostResolver finds the payer's device for a session.
type HostResolver interface {
	Host(session string) (domain.Host, error)
}

// Payment is the tracked state of one purchase attempt.
type Payment struct {
	ID         string             `json:"id"`
	SessionID  string             `json:"session_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Outcome    negotiator.Outcome `json:"outcome"`
}

// PaymentService starts negotiations in the background and remembers how
// they ended. A session runs at most one negotiation at a time.
type PaymentService struct {
	runner   Runner
	hosts    HostResolver
	locks    domain.LockManager
	lockTTL  time.Duration
	defaults domain.InstrumentForm
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	payments map[string]*Payment
}

// NewPaymentService creates a PaymentService. paymentTimeout bounds how long
// a session lock is held if a run never returns. Empty form fields are
// filled from defaults.
func NewPaymentService(
	runner Runner,
	hosts HostResolver,
	locks domain.LockManager,
	paymentTimeout time.Duration,
	defaults domain.InstrumentForm,
	logger *slog.Logger,
) *PaymentService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PaymentService{
		runner:   runner,
		hosts:    hosts,
		locks:    locks,
		lockTTL:  paymentTimeout + lockMargin,
		defaults: defaults,
		logger:   logger.With(slog.String("component", "payment_service")),
		ctx:      ctx,
		cancel:   cancel,
		payments: make(map[string]*Payment),
	}
}

// Start validates the form and launches a negotiation on the session's
// device. It returns domain.ErrHostDisconnected when no device is connected
// and domain.ErrSessionBusy while another negotiation is open.
func (s *PaymentService) Start(ctx context.Context, session string, form domain.InstrumentForm) (Payment, error) {
	session = strings.TrimSpace(session)
	if session == "" {
		return Payment{}, fmt.Errorf("payment_service: session is required: %w", domain.ErrHostDisconnected)
	}
	form = s.withDefaults(form)
	if _, _, err := s.runner.Build(form); err != nil {
		return Payment{}, fmt.Errorf("payment_service: %w", err)
	}

	host, err := s.hosts.Host(session)
	if err != nil {
		return Payment{}, fmt.Errorf("payment_service: %w", err)
	}

	unlock, err := s.locks.Acquire(ctx, "pay:"+session, s.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return Payment{}, fmt.Errorf("payment_service: session %s: %w", session, domain.ErrSessionBusy)
		}
		return Payment{}, fmt.Errorf("payment_service: lock: %w", err)
	}

	p := &Payment{
		ID:        uuid.NewString(),
		SessionID: session,
		StartedAt: time.Now().UTC(),
		Outcome:   negotiator.Outcome{State: negotiator.StateRunning},
	}
	s.mu.Lock()
	s.pruneLocked(p.StartedAt)
	s.payments[p.ID] = p
	snapshot := *p
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unlock()
		s.run(p.ID, host, form)
	}()

	s.logger.InfoContext(ctx, "payment started",
		slog.String("payment_id", p.ID),
		slog.String("session_id", session),
	)
	return snapshot, nil
}

func (s *PaymentService) run(id string, host domain.Host, form domain.InstrumentForm) {
	out, err := s.runner.Run(s.ctx, host, form)
	finished := time.Now().UTC()

	s.mu.Lock()
	if p, ok := s.payments[id]; ok {
		p.Outcome = out
		p.FinishedAt = &finished
	}
	s.mu.Unlock()

	attrs := []any{
		slog.String("payment_id", id),
		slog.String("state", string(out.State)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.Info("payment finished", attrs...)
}

// Get returns the payment with id.
func (s *PaymentService) Get(id string) (Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, fmt.Errorf("payment_service: payment %s: %w", id, domain.ErrNotFound)
	}
	return *p, nil
}

// Counts returns the number of tracked payments per state.
func (s *PaymentService) Counts() map[negotiator.State]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[negotiator.State]int)
	for _, p := range s.payments {
		out[p.Outcome.State]++
	}
	return out
}

// Recent returns up to limit payments, newest first.
func (s *PaymentService) Recent(limit int) []Payment {
	s.mu.RLock()
	out := make([]Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, *p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Close cancels running negotiations and waits for them to finish.
func (s *PaymentService) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *PaymentService) pruneLocked(now time.Time) {
	for id, p := range s.payments {
		if p.FinishedAt != nil && now.Sub(*p.FinishedAt) > finishedRetention {
			delete(s.payments, id)
		}
	}
}

func (s *PaymentService) withDefaults(f domain.InstrumentForm) domain.InstrumentForm {
	d := s.defaults
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&f.PayeeAddress, d.PayeeAddress)
	fill(&f.PayeeName, d.PayeeName)
	fill(&f.Note, d.Note)
	fill(&f.MerchantCode, d.MerchantCode)
	fill(&f.Reference, d.Reference)
	fill(&f.TransactionID, d.TransactionID)
	fill(&f.URL, d.URL)
	fill(&f.Amount, d.Amount)
	return f
}
