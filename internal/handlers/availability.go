package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/booking"
	"github.com/barbearia-galileu/booking-server/internal/catalog"
)

type AvailabilityHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewAvailabilityHandler(svc *booking.Service, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc, logger: logger}
}

type slotResponse struct {
	Time   string `json:"time"`
	Status string `json:"status"`
}

// Slots renders the day grid. Defaults to today when no date is given.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	day := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := h.svc.Calendar().ParseLocalDate(raw)
		if err != nil {
			http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = parsed
	}

	slots, err := h.svc.Availability(r.Context(), day)
	if err != nil {
		h.logger.Error("availability lookup failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]slotResponse, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slotResponse{
			Time:   slot.Time.UTC().Format(time.RFC3339),
			Status: string(slot.Status),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"slots": out})
}

// Haircuts serves the static service catalog.
func Haircuts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"haircuts": catalog.List()})
}
