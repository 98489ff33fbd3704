package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/booking"
	"github.com/barbearia-galileu/booking-server/internal/model"
)

type AppointmentHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewAppointmentHandler(svc *booking.Service, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

type bookRequest struct {
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	HaircutID     string `json:"haircut_id"`
	StartTime     string `json:"start_time"`
	Notes         string `json:"notes"`
}

type appointmentResponse struct {
	ID                string `json:"id"`
	CustomerName      string `json:"customer_name,omitempty"`
	CustomerPhone     string `json:"customer_phone,omitempty"`
	HaircutID         string `json:"haircut_id"`
	Notes             string `json:"notes,omitempty"`
	StartTime         string `json:"start_time"`
	DurationMinutes   int    `json:"duration_minutes"`
	Status            string `json:"status"`
	CancelledAt       string `json:"cancelled_at,omitempty"`
	CancelledByRole   string `json:"cancelled_by_role,omitempty"`
	CancelReason      string `json:"cancel_reason,omitempty"`
	RescheduledFromID string `json:"rescheduled_from_id,omitempty"`
	RescheduledToID   string `json:"rescheduled_to_id,omitempty"`
	PaymentMethod     string `json:"payment_method,omitempty"`
	PaymentStatus     string `json:"payment_status,omitempty"`
	CreatedAt         string `json:"created_at"`
}

func toAppointmentResponse(appt model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:                appt.ID,
		CustomerName:      appt.CustomerName,
		CustomerPhone:     appt.CustomerPhone,
		HaircutID:         appt.HaircutID,
		Notes:             appt.Notes,
		StartTime:         appt.StartTime.UTC().Format(time.RFC3339),
		DurationMinutes:   appt.DurationMinutes,
		Status:            string(appt.Status),
		CancelledByRole:   string(appt.CancelledByRole),
		CancelReason:      appt.CancelReason,
		RescheduledFromID: appt.RescheduledFromID,
		RescheduledToID:   appt.RescheduledToID,
		PaymentMethod:     string(appt.PaymentMethod),
		PaymentStatus:     string(appt.PaymentStatus),
		CreatedAt:         appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.CancelledAt != nil {
		resp.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Create(r.Context(), booking.Draft{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		HaircutID:     req.HaircutID,
		StartTime:     startTime,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toAppointmentResponse(appt))
}

// List is the staff agenda: everything from today onward, cancelled included.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	appts, err := h.svc.ListUpcoming(r.Context())
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		out = append(out, toAppointmentResponse(appt))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"appointments": out})
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "missing appointment_id", http.StatusBadRequest)
		return
	}
	appt, err := h.svc.Cancel(r.Context(), req.AppointmentID, req.Reason)
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toAppointmentResponse(appt))
}

type customerCancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Phone         string `json:"phone"`
	Reason        string `json:"reason"`
}

func (h *AppointmentHandler) CustomerCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req customerCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" || strings.TrimSpace(req.Phone) == "" {
		http.Error(w, "missing appointment_id or phone", http.StatusBadRequest)
		return
	}
	appt, err := h.svc.CancelByCustomer(r.Context(), req.AppointmentID, req.Phone, req.Reason)
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toAppointmentResponse(appt))
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	Phone         string `json:"phone"`
	NewStartTime  string `json:"new_start_time"`
	Reason        string `json:"reason"`
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" || strings.TrimSpace(req.Phone) == "" {
		http.Error(w, "missing appointment_id or phone", http.StatusBadRequest)
		return
	}
	newStart, err := time.Parse(time.RFC3339, req.NewStartTime)
	if err != nil {
		http.Error(w, "invalid new_start_time", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Reschedule(r.Context(), req.AppointmentID, req.Phone, newStart, req.Reason)
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"appointment": toAppointmentResponse(result.New),
		"previous":    toAppointmentResponse(result.Old),
	})
}

type summaryResponse struct {
	ID                string `json:"id"`
	StartTime         string `json:"start_time"`
	HaircutID         string `json:"haircut_id"`
	Status            string `json:"status"`
	CancelledAt       string `json:"cancelled_at,omitempty"`
	CancelReason      string `json:"cancel_reason,omitempty"`
	RescheduledFromID string `json:"rescheduled_from_id,omitempty"`
	RescheduledToID   string `json:"rescheduled_to_id,omitempty"`
	CanCancel         bool   `json:"can_cancel"`
	CanReschedule     bool   `json:"can_reschedule"`
}

// ListByPhone is the customer's "my appointments" view.
func (h *AppointmentHandler) ListByPhone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	phone := r.URL.Query().Get("phone")
	if strings.TrimSpace(phone) == "" {
		http.Error(w, "missing phone", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	summaries, err := h.svc.ListByPhone(r.Context(), phone, limit)
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	out := make([]summaryResponse, 0, len(summaries))
	for _, s := range summaries {
		resp := summaryResponse{
			ID:                s.ID,
			StartTime:         s.StartTime.UTC().Format(time.RFC3339),
			HaircutID:         s.HaircutID,
			Status:            string(s.Status),
			CancelReason:      s.CancelReason,
			RescheduledFromID: s.RescheduledFromID,
			RescheduledToID:   s.RescheduledToID,
			CanCancel:         s.CanCancel,
			CanReschedule:     s.CanReschedule,
		}
		if s.CancelledAt != nil {
			resp.CancelledAt = s.CancelledAt.UTC().Format(time.RFC3339)
		}
		out = append(out, resp)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"appointments": out})
}

func (h *AppointmentHandler) MonthlyMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	month := r.URL.Query().Get("month")
	if month == "" {
		http.Error(w, "missing month", http.StatusBadRequest)
		return
	}
	includeCancelled := r.URL.Query().Get("include_cancelled") == "true"

	summary, err := h.svc.MonthlyMetrics(r.Context(), month, includeCancelled)
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"month":      summary.Month,
		"total":      summary.Total,
		"by_service": summary.ByService,
	})
}

func (h *AppointmentHandler) writeBookingError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrOwnershipMismatch):
		http.Error(w, "appointment belongs to another customer", http.StatusForbidden)
	case errors.Is(err, booking.ErrAlreadyCancelled):
		http.Error(w, "appointment already cancelled", http.StatusConflict)
	case errors.Is(err, booking.ErrSlotUnavailable):
		http.Error(w, "slot unavailable", http.StatusConflict)
	case errors.Is(err, booking.ErrSlotBlocked):
		http.Error(w, "slot blocked", http.StatusConflict)
	case errors.Is(err, booking.ErrOutsideBusinessHours):
		http.Error(w, "time is outside business hours", http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrPaymentCaptured):
		http.Error(w, "paid appointments can only be changed by the barber", http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrNotCancellable):
		http.Error(w, "appointment can no longer be changed", http.StatusUnprocessableEntity)
	default:
		h.logger.Error("appointment request failed", "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
