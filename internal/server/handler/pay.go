package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/webpay/internal/domain"
	"github.com/alanyoungcy/webpay/internal/service"
)

// Payments is the payment service as seen by the API.
type Payments interface {
	Start(ctx context.Context, session string, form domain.InstrumentForm) (service.Payment, error)
	Get(id string) (service.Payment, error)
	Recent(limit int) []service.Payment
}

// PayHandler starts and reports payments.
type PayHandler struct {
	payments Payments
	logger   *slog.Logger
}

// NewPayHandler creates a PayHandler.
func NewPayHandler(payments Payments, logger *slog.Logger) *PayHandler {
	return &PayHandler{payments: payments, logger: logger.With(slog.String("handler", "pay"))}
}

// payRequest is the demo form as posted by the page. Empty fields take the
// configured defaults.
type payRequest struct {
	Session       string `json:"session"`
	PayeeAddress  string `json:"pa"`
	PayeeName     string `json:"pn"`
	Note          string `json:"tn"`
	MerchantCode  string `json:"mc"`
	Reference     string `json:"tr"`
	TransactionID string `json:"tid"`
	URL           string `json:"url"`
	Amount        string `json:"amount"`
}

func (p payRequest) form() domain.InstrumentForm {
	return domain.InstrumentForm{
		PayeeAddress:  p.PayeeAddress,
		PayeeName:     p.PayeeName,
		Note:          p.Note,
		MerchantCode:  p.MerchantCode,
		Reference:     p.Reference,
		TransactionID: p.TransactionID,
		URL:           p.URL,
		Amount:        p.Amount,
	}
}

// StartPayment launches a negotiation on the session's browser and answers
// before the payer does anything.
// POST /api/pay
func (h *PayHandler) StartPayment(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Session) == "" {
		writeError(w, http.StatusBadRequest, "session is required")
		return
	}

	p, err := h.payments.Start(r.Context(), req.Session, req.form())
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "unable to start payment", slog.String("error", err.Error()))
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, p)
}

// GetPayment returns the last known state of a payment.
// GET /api/pay/{id}
func (h *PayHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListPayments returns the most recent payments.
// GET /api/pay
func (h *PayHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.payments.Recent(queryInt(r, "limit", 20, 100)))
}
