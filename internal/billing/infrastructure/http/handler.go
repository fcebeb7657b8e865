package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tripvana/travel-booking-system/internal/billing/application"
	"github.com/tripvana/travel-booking-system/internal/billing/domain"
)

type Handler struct {
	log      *slog.Logger
	service  *application.Service
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
		tracer:   otel.Tracer("billing-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/payments", h.submitPayment)
	r.Get("/billings/{id}", h.getBilling)
	r.Post("/billings/{id}/refund", h.refund)
	r.Post("/billings/cancel", h.cancel)
	return r
}

type paymentReq struct {
	ReservationID  string         `json:"reservation_id" validate:"required"`
	BookingID      string         `json:"booking_id"`
	UserID         string         `json:"user_id" validate:"required"`
	BookingType    string         `json:"booking_type" validate:"required,oneof=flight hotel car"`
	AmountCents    int64          `json:"amount_cents" validate:"gte=0"`
	PaymentMethod  string         `json:"payment_method" validate:"required"`
	CardNumber     string         `json:"card_number"`
	BookingDetails map[string]any `json:"booking_details"`
}

type billingResp struct {
	BillingID         string                `json:"billing_id"`
	BookingID         string                `json:"booking_id"`
	UserID            string                `json:"user_id"`
	BookingType       string                `json:"booking_type"`
	AmountCents       int64                 `json:"amount_cents"`
	PaymentMethod     string                `json:"payment_method"`
	TransactionStatus string                `json:"transaction_status"`
	InvoiceNumber     string                `json:"invoice_number,omitempty"`
	RefundDetails     *domain.RefundDetails `json:"refund_details,omitempty"`
}

func toBillingResp(rec domain.BillingRecord) billingResp {
	return billingResp{
		BillingID:         rec.BillingID,
		BookingID:         rec.BookingID,
		UserID:            rec.UserID,
		BookingType:       rec.BookingType,
		AmountCents:       rec.TotalAmountPaidCents,
		PaymentMethod:     rec.PaymentMethod,
		TransactionStatus: string(rec.TransactionStatus),
		InvoiceNumber:     rec.InvoiceNumber,
		RefundDetails:     rec.RefundDetails,
	}
}

func (h *Handler) submitPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SubmitPayment")
	defer span.End()

	var req paymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if !domain.ValidPaymentMethod(req.PaymentMethod) {
		writeError(w, http.StatusUnprocessableEntity, "invalid payment method")
		return
	}

	rec, err := h.service.SubmitPayment(ctx, application.PaymentInput{
		ReservationID:  req.ReservationID,
		BookingID:      req.BookingID,
		UserID:         req.UserID,
		BookingType:    req.BookingType,
		AmountCents:    req.AmountCents,
		PaymentMethod:  req.PaymentMethod,
		CardNumber:     req.CardNumber,
		BookingDetails: req.BookingDetails,
	}, map[string]string{"source": "billing-service"}, r.Header.Get("traceparent"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if rec.TransactionStatus == domain.StatusFailed {
		status = http.StatusPaymentRequired
	}
	writeJSON(w, status, toBillingResp(rec))
}

type refundReq struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Refund")
	defer span.End()

	var req refundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	rec, err := h.service.Refund(ctx, chi.URLParam(r, "id"), req.AmountCents, req.Reason,
		map[string]string{"source": "billing-service"}, r.Header.Get("traceparent"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillingResp(rec))
}

type cancelReq struct {
	BookingID string `json:"booking_id" validate:"required"`
	Reason    string `json:"reason"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelBooking")
	defer span.End()

	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	rec, err := h.service.CancelByBookingID(ctx, req.BookingID, req.Reason,
		map[string]string{"source": "billing-service"}, r.Header.Get("traceparent"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillingResp(rec))
}

func (h *Handler) getBilling(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetBilling")
	defer span.End()

	rec, err := h.service.GetBilling(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillingResp(rec))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBillingNotFound):
		writeError(w, http.StatusNotFound, "billing record not found")
	case errors.Is(err, domain.ErrReservationNotHeld):
		writeError(w, http.StatusGone, "reservation is not payable; restart checkout")
	case errors.Is(err, domain.ErrNotRefundable):
		writeError(w, http.StatusConflict, "billing record not refundable")
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
