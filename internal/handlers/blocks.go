package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/blocks"
	"github.com/barbearia-galileu/booking-server/internal/model"
)

type BlockHandler struct {
	svc    *blocks.Service
	logger *slog.Logger
}

func NewBlockHandler(svc *blocks.Service, logger *slog.Logger) *BlockHandler {
	return &BlockHandler{svc: svc, logger: logger}
}

type blockResponse struct {
	ID        string `json:"id"`
	StartTime string `json:"start_time"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toBlockResponse(block model.Block) blockResponse {
	return blockResponse{
		ID:        block.ID,
		StartTime: block.StartTime.UTC().Format(time.RFC3339),
		Reason:    block.Reason,
		CreatedAt: block.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type createBlockRequest struct {
	StartTime string `json:"start_time"`
	Reason    string `json:"reason"`
}

// Manage routes the flat /blocks endpoint: GET lists, POST creates.
func (h *BlockHandler) Manage(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BlockHandler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Error("list blocks failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp := make([]blockResponse, 0, len(out))
	for _, block := range out {
		resp = append(resp, toBlockResponse(block))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"blocks": resp})
}

func (h *BlockHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	at, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	block, err := h.svc.Create(r.Context(), at, req.Reason)
	if err != nil {
		h.writeBlockError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toBlockResponse(block))
}

type deleteBlockRequest struct {
	StartTime string `json:"start_time"`
}

func (h *BlockHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req deleteBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	at, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	if err := h.svc.Remove(r.Context(), at); err != nil {
		h.writeBlockError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkBlockRequest struct {
	Date   string   `json:"date"`
	Times  []string `json:"times"`
	Reason string   `json:"reason"`
}

func (h *BlockHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req bulkBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Date == "" || len(req.Times) == 0 {
		http.Error(w, "missing date or times", http.StatusBadRequest)
		return
	}
	report, err := h.svc.BulkCreate(r.Context(), req.Date, req.Times, req.Reason)
	if err != nil {
		h.writeBlockError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

type bulkDeleteRequest struct {
	Date  string   `json:"date"`
	Times []string `json:"times"`
}

func (h *BlockHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Date == "" || len(req.Times) == 0 {
		http.Error(w, "missing date or times", http.StatusBadRequest)
		return
	}
	report, err := h.svc.BulkDelete(r.Context(), req.Date, req.Times)
	if err != nil {
		h.writeBlockError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

func (h *BlockHandler) writeBlockError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, blocks.ErrNotFound):
		http.Error(w, "block not found", http.StatusNotFound)
	case errors.Is(err, blocks.ErrAlreadyBlocked):
		http.Error(w, "slot already blocked", http.StatusConflict)
	case errors.Is(err, blocks.ErrSlotBooked):
		http.Error(w, "slot has an active appointment", http.StatusConflict)
	case errors.Is(err, blocks.ErrOutsideBusinessHours):
		http.Error(w, "time is outside business hours", http.StatusUnprocessableEntity)
	default:
		var parseErr *time.ParseError
		if errors.As(err, &parseErr) {
			http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		h.logger.Error("block request failed", "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
