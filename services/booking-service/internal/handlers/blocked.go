package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/barberbook/barberbook/libs/httpx"
	"github.com/barberbook/barberbook/services/booking-service/internal/availability"
	"github.com/barberbook/barberbook/services/booking-service/internal/model"
	"github.com/barberbook/barberbook/services/booking-service/internal/storage"
)

type BlockedSlotHandler struct {
	repo     *storage.BlockedSlotRepository
	template availability.Template
	logger   *slog.Logger
}

func NewBlockedSlotHandler(repo *storage.BlockedSlotRepository, template availability.Template, logger *slog.Logger) *BlockedSlotHandler {
	return &BlockedSlotHandler{repo: repo, template: template, logger: logger}
}

type blockSlotRequest struct {
	StaffID string `json:"staff_id" validate:"required"`
	Date    string `json:"date" validate:"required,datetime=2006-01-02"`
	Time    string `json:"time" validate:"required,datetime=15:04"`
	Reason  string `json:"reason" validate:"max=200"`
}

type blockedSlotItem struct {
	ID      string `json:"id"`
	StaffID string `json:"staff_id"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Reason  string `json:"reason,omitempty"`
}

func (h *BlockedSlotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// list accepts staff_id and either date or a from/to range.
func (h *BlockedSlotHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	staffID := strings.TrimSpace(q.Get("staff_id"))
	if staffID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "staff_id required")
		return
	}
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	if d := strings.TrimSpace(q.Get("date")); d != "" {
		from, to = d, d
	}
	fromDay, err1 := time.Parse("2006-01-02", from)
	toDay, err2 := time.Parse("2006-01-02", to)
	if err1 != nil || err2 != nil || toDay.Before(fromDay) {
		httpx.WriteError(w, http.StatusBadRequest, "date or from/to (YYYY-MM-DD) required")
		return
	}

	slots, err := h.repo.List(r.Context(), staffID, fromDay, toDay)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "unknown staff")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list blocked slots")
		return
	}
	items := make([]blockedSlotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, toBlockedItem(s))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BlockedSlotHandler) create(w http.ResponseWriter, r *http.Request) {
	var req blockSlotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.Reason = strings.TrimSpace(req.Reason)
	if fields := validationErrors(req); fields != nil {
		writeValidationError(w, fields)
		return
	}
	day, _ := time.Parse("2006-01-02", req.Date)
	clock, err := availability.ParseClock(req.Time)
	if err != nil || !h.template.Contains(clock) {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "time is not part of the daily template")
		return
	}

	slot, err := h.repo.Create(r.Context(), model.BlockedSlot{
		StaffID: req.StaffID,
		Date:    day,
		Time:    clock.String(),
		Reason:  req.Reason,
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrSlotTaken):
			httpx.WriteError(w, http.StatusConflict, "slot has an appointment; cancel it first")
		case errors.Is(err, storage.ErrAlreadyBlocked):
			httpx.WriteError(w, http.StatusConflict, "slot already blocked")
		case errors.Is(err, storage.ErrNotFound):
			httpx.WriteError(w, http.StatusUnprocessableEntity, "unknown staff")
		default:
			h.logger.Error("block slot failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to block slot")
		}
		return
	}
	h.logger.Info("slot blocked", "staff_id", slot.StaffID, "date", req.Date, "time", slot.Time)
	httpx.WriteJSON(w, http.StatusCreated, toBlockedItem(slot))
}

func (h *BlockedSlotHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "id required")
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "blocked slot not found")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "failed to delete blocked slot")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toBlockedItem(s model.BlockedSlot) blockedSlotItem {
	return blockedSlotItem{
		ID:      s.ID,
		StaffID: s.StaffID,
		Date:    s.Date.Format("2006-01-02"),
		Time:    s.Time,
		Reason:  s.Reason,
	}
}
