package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/barberbook/barberbook/libs/httpx"
	"github.com/barberbook/barberbook/services/booking-service/internal/storage"
)

type CatalogHandler struct {
	repo   *storage.CatalogRepository
	logger *slog.Logger
}

func NewCatalogHandler(repo *storage.CatalogRepository, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{repo: repo, logger: logger}
}

type locationItem struct {
	LocationID string   `json:"location_id"`
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Keywords   []string `json:"keywords"`
}

type staffItem struct {
	StaffID string `json:"staff_id"`
	Name    string `json:"name"`
}

type serviceItem struct {
	ServiceID       string `json:"service_id"`
	Name            string `json:"name"`
	Price           string `json:"price"`
	DurationMinutes int    `json:"duration_minutes"`
	IsDefault       bool   `json:"is_default"`
}

func (h *CatalogHandler) Locations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	locations, err := h.repo.ListLocations(r.Context())
	if err != nil {
		h.logger.Error("list locations failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list locations")
		return
	}
	items := make([]locationItem, 0, len(locations))
	for _, l := range locations {
		keywords := l.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		items = append(items, locationItem{LocationID: l.ID, Name: l.Name, Address: l.Address, Keywords: keywords})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *CatalogHandler) Staff(w http.ResponseWriter, r *http.Request) {
	locationID, ok := requireLocation(w, r)
	if !ok {
		return
	}
	staff, err := h.repo.ListStaff(r.Context(), locationID)
	if err != nil {
		h.writeListError(w, "staff", err)
		return
	}
	items := make([]staffItem, 0, len(staff))
	for _, s := range staff {
		items = append(items, staffItem{StaffID: s.ID, Name: s.Name})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *CatalogHandler) Services(w http.ResponseWriter, r *http.Request) {
	locationID, ok := requireLocation(w, r)
	if !ok {
		return
	}
	services, err := h.repo.ListServices(r.Context(), locationID)
	if err != nil {
		h.writeListError(w, "services", err)
		return
	}
	items := make([]serviceItem, 0, len(services))
	for _, s := range services {
		items = append(items, serviceItem{
			ServiceID:       s.ID,
			Name:            s.Name,
			Price:           s.Price,
			DurationMinutes: s.DurationMinutes,
			IsDefault:       s.IsDefault,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func requireLocation(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	locationID := strings.TrimSpace(r.URL.Query().Get("location_id"))
	if locationID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "location_id required")
		return "", false
	}
	return locationID, true
}

func (h *CatalogHandler) writeListError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "unknown location")
		return
	}
	h.logger.Error("list "+what+" failed", "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "failed to list "+what)
}
