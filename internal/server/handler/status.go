package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/webpay/internal/negotiator"
)

// SessionCounter reports connected payer devices.
type SessionCounter interface {
	Sessions() int
}

// PaymentCounter reports tracked payments per state.
type PaymentCounter interface {
	Counts() map[negotiator.State]int
}

// StatusHandler serves the backend status for the demo page.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	sessions  SessionCounter
	payments  PaymentCounter
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, sessions SessionCounter, payments PaymentCounter) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, sessions: sessions, payments: payments}
}

// GetStatus responds with the mode, uptime, connected devices and payment
// counts.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"sessions":       h.sessions.Sessions(),
		"payments":       h.payments.Counts(),
	})
}
