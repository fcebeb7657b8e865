package domain

import "time"

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
	StatusRefunded  TransactionStatus = "refunded"
)

// BillingRecord is the authoritative record of a payment attempt.
// Other services learn its outcome only through booking events.
type BillingRecord struct {
	BillingID            string
	BookingID            string
	ReservationID        string
	UserID               string
	BookingType          string
	TotalAmountPaidCents int64
	PaymentMethod        string
	TransactionStatus    TransactionStatus
	InvoiceNumber        string
	RefundDetails        *RefundDetails
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type RefundDetails struct {
	AmountCents int64     `json:"refundAmount"`
	RefundedAt  time.Time `json:"refundDate"`
	Reason      string    `json:"reason"`
	Status      string    `json:"status"`
}

// Decided reports whether the payment outcome is final from the
// caller's point of view.
func (b BillingRecord) Decided() bool {
	return b.TransactionStatus != StatusPending
}

var PaymentMethods = []string{"Credit Card", "Debit Card", "PayPal", "Bank Transfer", "Cash"}

func ValidPaymentMethod(m string) bool {
	for _, pm := range PaymentMethods {
		if pm == m {
			return true
		}
	}
	return false
}

var BookingTypes = []string{"flight", "hotel", "car"}

func ValidBookingType(t string) bool {
	for _, bt := range BookingTypes {
		if bt == t {
			return true
		}
	}
	return false
}
