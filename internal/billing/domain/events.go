package domain

import "time"

const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingFailed    = "booking.failed"
)

// BookingEvent is the wire entity published to the bookings topic,
// keyed by BookingID. Immutable once published; consumers must
// tolerate unknown fields.
type BookingEvent struct {
	EventType         string         `json:"eventType"`
	Timestamp         time.Time      `json:"timestamp"`
	BookingID         string         `json:"bookingId"`
	BillingID         string         `json:"billingId"`
	UserID            string         `json:"userId"`
	Type              string         `json:"type"`
	TotalAmountPaid   int64          `json:"totalAmountPaid"`
	PaymentMethod     string         `json:"paymentMethod"`
	TransactionStatus string         `json:"transactionStatus"`
	Reason            string         `json:"reason,omitempty"`
	RefundDetails     *RefundDetails `json:"refundDetails,omitempty"`
	Data              EventData      `json:"data"`
}

type EventData struct {
	InvoiceNumber  string         `json:"invoiceNumber,omitempty"`
	BookingDetails map[string]any `json:"bookingDetails,omitempty"`
}

// NewBookingEvent snapshots a billing record into its wire form.
func NewBookingEvent(eventType string, b BillingRecord, details map[string]any, reason string, now time.Time) BookingEvent {
	return BookingEvent{
		EventType:         eventType,
		Timestamp:         now,
		BookingID:         b.BookingID,
		BillingID:         b.BillingID,
		UserID:            b.UserID,
		Type:              b.BookingType,
		TotalAmountPaid:   b.TotalAmountPaidCents,
		PaymentMethod:     b.PaymentMethod,
		TransactionStatus: string(b.TransactionStatus),
		Reason:            reason,
		RefundDetails:     b.RefundDetails,
		Data: EventData{
			InvoiceNumber:  b.InvoiceNumber,
			BookingDetails: details,
		},
	}
}
