package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tripvana/travel-booking-system/internal/reservation/application"
	"github.com/tripvana/travel-booking-system/internal/reservation/domain"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("reservation-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/reservations", h.createReservation)
	r.Get("/reservations/{id}", h.getReservation)
	r.Post("/reservations/{id}/confirm", h.confirmReservation)
	r.Post("/reservations/{id}/release", h.releaseReservation)
	r.Get("/resources/{id}/availability", h.availability)
	return r
}

type createReservationReq struct {
	ResourceID string `json:"resource_id"`
	Quantity   int    `json:"quantity"`
	UserID     string `json:"user_id"`
}

type reservationResp struct {
	ReservationID string    `json:"reservation_id"`
	ResourceID    string    `json:"resource_id"`
	Quantity      int       `json:"quantity"`
	State         string    `json:"state"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (h *Handler) createReservation(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateReservation")
	defer span.End()

	var req createReservationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	res, err := h.service.CreateReservation(ctx, req.ResourceID, req.UserID, req.Quantity)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, reservationResp{
		ReservationID: res.ID,
		ResourceID:    res.ResourceID,
		Quantity:      res.Quantity,
		State:         string(res.State),
		ExpiresAt:     res.ExpiresAt,
	})
}

func (h *Handler) getReservation(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetReservation")
	defer span.End()

	res, err := h.service.GetReservation(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reservationResp{
		ReservationID: res.ID,
		ResourceID:    res.ResourceID,
		Quantity:      res.Quantity,
		State:         string(res.State),
		ExpiresAt:     res.ExpiresAt,
	})
}

func (h *Handler) confirmReservation(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ConfirmReservation")
	defer span.End()

	if err := h.service.ConfirmReservation(ctx, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

func (h *Handler) releaseReservation(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ReleaseReservation")
	defer span.End()

	if err := h.service.CancelReservation(ctx, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Availability")
	defer span.End()

	n, err := h.service.Availability(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"available": n})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientInventory):
		writeError(w, http.StatusConflict, "sold out")
	case errors.Is(err, domain.ErrReservationExpired):
		writeError(w, http.StatusGone, "reservation expired")
	case errors.Is(err, domain.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "reservation not found")
	case errors.Is(err, domain.ErrInvalidStateTransition):
		writeError(w, http.StatusConflict, "invalid state transition")
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "quantity must be positive")
	default:
		h.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
