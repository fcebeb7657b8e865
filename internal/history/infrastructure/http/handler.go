package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tripvana/travel-booking-system/internal/history/application"
	"github.com/tripvana/travel-booking-system/internal/history/domain"
)

// Handler exposes read-only booking history. Writes go through the
// event stream only.
type Handler struct {
	log     *slog.Logger
	service *application.Service
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/users/{id}/bookings", h.listBookings)
	r.Get("/bookings/{id}", h.getBooking)
	return r
}

type entryResp struct {
	BookingID     string         `json:"booking_id"`
	UserID        string         `json:"user_id"`
	BookingType   string         `json:"booking_type"`
	Status        string         `json:"status"`
	AmountCents   int64          `json:"amount_cents"`
	PaymentMethod string         `json:"payment_method,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	BookedAt      time.Time      `json:"booked_at"`
}

func toEntryResp(e domain.HistoryEntry) entryResp {
	return entryResp{
		BookingID:     e.BookingID,
		UserID:        e.UserID,
		BookingType:   e.BookingType,
		Status:        string(e.Status),
		AmountCents:   e.TotalAmountPaidCents,
		PaymentMethod: e.PaymentMethod,
		Details:       e.Details,
		BookedAt:      e.BookedAt,
	}
}

func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListByUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.log.Error("list bookings failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]entryResp, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toEntryResp(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": resp})
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		h.log.Error("get booking failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toEntryResp(e))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
