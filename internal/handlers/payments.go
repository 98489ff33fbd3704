package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/booking"
	"github.com/barbearia-galileu/booking-server/internal/httpx"
	"github.com/barbearia-galileu/booking-server/internal/model"
	"github.com/barbearia-galileu/booking-server/internal/payments"
	"github.com/barbearia-galileu/booking-server/internal/storage"
)

type PaymentHandler struct {
	bookings   *booking.Service
	reconciler *payments.Reconciler
	appts      *AppointmentHandler
	logger     *slog.Logger
}

func NewPaymentHandler(bookings *booking.Service, reconciler *payments.Reconciler, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		bookings:   bookings,
		reconciler: reconciler,
		appts:      NewAppointmentHandler(bookings, logger),
		logger:     logger,
	}
}

// auditedHeaders are the only request headers persisted with a webhook audit
// row. Everything else (auth material included) is dropped.
var auditedHeaders = []string{"Content-Type", "User-Agent", "X-Signature", "X-Request-Id"}

// MercadoPagoWebhook ingests provider payment notifications. Mercado Pago
// retries on non-2xx, so every delivery is answered 200 once it has been
// audited; failures are visible in the audit trail, not the response code.
func (h *PaymentHandler) MercadoPagoWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	query := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}
	headers := make(map[string]string)
	for _, key := range auditedHeaders {
		if v := r.Header.Get(key); v != "" {
			headers[key] = v
		}
	}

	outcome, err := h.reconciler.ProcessWebhook(r.Context(), payments.WebhookDelivery{
		RequestID: httpx.RequestIDFromContext(r.Context()),
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     query,
		Headers:   headers,
		Body:      body,
	})
	if err != nil {
		h.logger.Error("mercado pago webhook processing failed",
			"payment_id", outcome.PaymentID,
			"event_action", outcome.EventAction,
			"err", err,
		)
		writeJSON(w, http.StatusOK, map[string]any{"status": "error"})
		return
	}

	status := "ok"
	switch {
	case outcome.Duplicate:
		status = "duplicate"
	case outcome.Status == model.ProcessingIgnored:
		status = "ignored"
	}
	h.logger.Info("mercado pago webhook processed",
		"payment_id", outcome.PaymentID,
		"event_action", outcome.EventAction,
		"appointment_id", outcome.AppointmentID,
		"status", status,
	)
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

type paymentBookRequest struct {
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	HaircutID     string `json:"haircut_id"`
	StartTime     string `json:"start_time"`
	Notes         string `json:"notes"`
	PaymentID     string `json:"payment_id"`
}

// CardBooking books a provisional appointment for a card payment processed
// on the storefront. The slot is held while the payment settles; a rejected
// card voids the booking via the webhook.
func (h *PaymentHandler) CardBooking(w http.ResponseWriter, r *http.Request) {
	h.paymentBooking(w, r, model.PaymentCard)
}

// PixBooking holds a slot while the customer completes the pix transfer.
func (h *PaymentHandler) PixBooking(w http.ResponseWriter, r *http.Request) {
	h.paymentBooking(w, r, model.PaymentPix)
}

func (h *PaymentHandler) paymentBooking(w http.ResponseWriter, r *http.Request, method model.PaymentMethod) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req paymentBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	appt, err := h.bookings.Create(r.Context(), booking.Draft{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		HaircutID:     req.HaircutID,
		StartTime:     startTime,
		Notes:         req.Notes,
		PaymentMethod: method,
		MPPaymentID:   strings.TrimSpace(req.PaymentID),
	})
	if err != nil {
		h.appts.writeBookingError(w, r, err)
		return
	}

	// The payment may have settled before the booking request landed; pick
	// up the current provider status right away.
	if synced, err := h.reconciler.SyncAppointment(r.Context(), appt.ID); err != nil {
		h.logger.Warn("initial payment sync failed", "appointment_id", appt.ID, "err", err)
	} else {
		appt = synced
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

type syncRequest struct {
	AppointmentID string `json:"appointment_id"`
}

// Sync re-checks the provider status for one appointment. Staff fallback for
// missed webhooks.
func (h *PaymentHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "missing appointment_id", http.StatusBadRequest)
		return
	}

	appt, err := h.reconciler.SyncAppointment(r.Context(), req.AppointmentID)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrNoProviderPayment):
			http.Error(w, "appointment has no provider payment", http.StatusUnprocessableEntity)
		case errors.Is(err, payments.ErrPaymentNotFound):
			http.Error(w, "payment not found at provider", http.StatusNotFound)
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		default:
			h.logger.Error("payment sync failed", "appointment_id", req.AppointmentID, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
